package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/classifier"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/cursor"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/dispatcher"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/metrics"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
)

// MessageSource lists channel history oldest-first. *slack.Client implements it.
type MessageSource interface {
	ListChannelMessages(ctx context.Context, channelID string, oldest float64) ([]models.Message, error)
}

// MessageSender delivers a reply. *dispatcher.Dispatcher implements it.
type MessageSender interface {
	Send(ctx context.Context, channelID, text string) (*dispatcher.Result, error)
}

// ChannelSource supplies the monitored channel set. *registry.Registry implements it.
type ChannelSource interface {
	Channels() []models.ChannelMeta
}

// Matcher maps message text to an intent. *classifier.Classifier implements it.
type Matcher interface {
	Classify(text string) classifier.Intent
}

// Replier renders the reply for an intent. *responder.Formatter implements it.
type Replier interface {
	Respond(intent classifier.Intent, now time.Time) (string, bool)
}

// AuditLog persists dispatch outcomes. *store.Store implements it.
type AuditLog interface {
	RecordDispatch(entry models.DispatchLog) error
}

// Options bundles the poller's collaborators.
type Options struct {
	Interval   time.Duration
	Source     MessageSource
	Sender     MessageSender
	Channels   ChannelSource
	Classifier Matcher
	Formatter  Replier
	Cursor     *cursor.Cursor
	Audit      AuditLog
	Metrics    *metrics.Metrics
	BotUserID  string
}

// Poller drives the fetch, dedup, classify, reply cycle for every monitored
// channel on a fixed interval. Channels are polled concurrently and a channel
// whose previous cycle is still in flight is skipped rather than queued.
type Poller struct {
	opts Options
	now  func() time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup // the Run goroutine started by Start
	isRunning bool
	lastCycle time.Time
	mu        sync.RWMutex

	inFlight map[string]bool
	fmu      sync.Mutex
}

// Status is a point-in-time view of the poller for the admin API.
type Status struct {
	Running   bool                     `json:"running"`
	Interval  string                   `json:"interval"`
	LastCycle time.Time                `json:"last_cycle"`
	Channels  []cursor.ChannelSnapshot `json:"channels"`
}

// New creates a poller.
func New(opts Options) *Poller {
	return &Poller{
		opts:     opts,
		now:      time.Now,
		inFlight: make(map[string]bool),
	}
}

// Start starts the poll loop.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("poller is already running")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.isRunning = true

	ctx := p.ctx
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Run(ctx); err != nil {
			logrus.Errorf("Poller run loop exited: %v", err)
		}
	}()

	logrus.Infof("Poller started with interval: %s", p.opts.Interval)
	return nil
}

// Stop stops the poll loop and waits for in-flight channel cycles to drain.
// The lock is released before the wait so a cycle racing the cancellation can
// still record its state and finish.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.isRunning = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Poller stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Poller stop timeout, forcing shutdown")
	}

	return nil
}

// IsRunning returns whether the poll loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isRunning
}

// RunOnce runs a single poll cycle across all channels and waits for it to
// finish (for manual triggering). The cycle is tracked by its own WaitGroup,
// so RunOnce is safe while the loop is running or stopping.
func (p *Poller) RunOnce(ctx context.Context) error {
	logrus.Info("Running poll cycle once")
	var cycle sync.WaitGroup
	p.pollAll(ctx, &cycle)
	cycle.Wait()
	return nil
}

// Status reports the poller state and per-channel cursor positions.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Status{
		Running:   p.isRunning,
		Interval:  p.opts.Interval.String(),
		LastCycle: p.lastCycle,
		Channels:  p.opts.Cursor.Snapshot(),
	}
}

// Wait blocks until the run loop, including its in-flight cycles, has
// finished.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Run polls every monitored channel immediately, then again on each tick,
// until ctx is cancelled. In-flight channel cycles drain before Run returns.
func (p *Poller) Run(ctx context.Context) error {
	var lanes sync.WaitGroup

	// The first cycle fires immediately so a fresh start begins watching
	// without waiting out a full interval.
	p.pollAll(ctx, &lanes)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lanes.Wait()
			return nil
		case <-ticker.C:
			p.pollAll(ctx, &lanes)
		}
	}
}

// pollAll launches one poll goroutine per channel, adding each to lanes. It
// does not block, so one slow channel never delays the others' next tick.
func (p *Poller) pollAll(ctx context.Context, lanes *sync.WaitGroup) {
	channels := p.opts.Channels.Channels()
	p.opts.Metrics.MonitoredChannels.Set(float64(len(channels)))
	if len(channels) == 0 {
		logrus.Warn("No channels to monitor")
		return
	}

	p.mu.Lock()
	p.lastCycle = p.now()
	p.mu.Unlock()

	for _, ch := range channels {
		ch := ch
		if !p.acquire(ch.ID) {
			p.opts.Metrics.SkippedCycles.Inc()
			logrus.WithField("channel", ch.ID).Debug("Previous poll still in flight, skipping cycle")
			continue
		}

		lanes.Add(1)
		go func() {
			defer lanes.Done()
			defer p.release(ch.ID)
			p.pollChannel(ctx, ch)
		}()
	}
}

func (p *Poller) acquire(channelID string) bool {
	p.fmu.Lock()
	defer p.fmu.Unlock()

	if p.inFlight[channelID] {
		return false
	}
	p.inFlight[channelID] = true
	return true
}

func (p *Poller) release(channelID string) {
	p.fmu.Lock()
	defer p.fmu.Unlock()
	delete(p.inFlight, channelID)
}
