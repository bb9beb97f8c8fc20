package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/classifier"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/cursor"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/dispatcher"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/metrics"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/responder"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/slack"
)

var testMetrics = metrics.NewMetrics()

var testNow = time.Date(2024, 1, 15, 18, 30, 5, 0, time.UTC)

const wantReply = "The current time is 12:30:05 PM CST on 2024-01-15"

type fetchCall struct {
	channel string
	oldest  float64
}

type stubSource struct {
	mu    sync.Mutex
	fetch func(channelID string, oldest float64) ([]models.Message, error)
	calls []fetchCall
}

func (s *stubSource) ListChannelMessages(ctx context.Context, channelID string, oldest float64) ([]models.Message, error) {
	s.mu.Lock()
	s.calls = append(s.calls, fetchCall{channelID, oldest})
	fn := s.fetch
	s.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(channelID, oldest)
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type sentReply struct {
	channel string
	text    string
}

type stubSender struct {
	mu     sync.Mutex
	errs   []error
	sent   []sentReply
	onSend func(ctx context.Context)
}

func (s *stubSender) Send(ctx context.Context, channelID, text string) (*dispatcher.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.onSend != nil {
		s.onSend(ctx)
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	s.sent = append(s.sent, sentReply{channelID, text})
	return &dispatcher.Result{MessageID: "1700001000.000001", Timestamp: 1700001000.000001, Attempts: 1}, nil
}

type staticChannels []models.ChannelMeta

func (s staticChannels) Channels() []models.ChannelMeta { return s }

type stubAudit struct {
	mu      sync.Mutex
	entries []models.DispatchLog
}

func (a *stubAudit) RecordDispatch(entry models.DispatchLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func msg(id string, ts float64, author, text string) models.Message {
	return models.Message{ID: id, ChannelID: "C1", AuthorID: author, Text: text, Timestamp: ts}
}

func mustFormatter(t *testing.T) *responder.Formatter {
	t.Helper()
	f, err := responder.New("America/Chicago")
	assert.NoError(t, err)
	return f
}

func newTestPoller(t *testing.T, src MessageSource, snd MessageSender, chs ChannelSource, audit AuditLog) *Poller {
	t.Helper()
	p := New(Options{
		Interval:   time.Second,
		Source:     src,
		Sender:     snd,
		Channels:   chs,
		Classifier: classifier.NewDefault(),
		Formatter:  mustFormatter(t),
		Cursor:     cursor.New(),
		Audit:      audit,
		Metrics:    testMetrics,
		BotUserID:  "U0BOT",
	})
	p.now = func() time.Time { return testNow }
	return p
}

// preload gives a channel an established watermark, as if a prior cycle had
// already processed boundary.
func preload(c *cursor.Cursor, channel string, watermark float64, boundary ...models.Message) {
	c.Filter(channel, watermark, boundary)
	if len(boundary) > 0 {
		c.Advance(channel, boundary)
	}
}

func TestRunOncePollsClassifiesAndReplies(t *testing.T) {
	src := &stubSource{fetch: func(channelID string, oldest float64) ([]models.Message, error) {
		return []models.Message{
			msg("m1", 100, "U1", "already handled"),
			msg("m2", 105, "U1", "What time is it?"),
		}, nil
	}}
	snd := &stubSender{}
	audit := &stubAudit{}
	p := newTestPoller(t, src, snd, staticChannels{{ID: "C1", Name: "general"}}, audit)
	preload(p.opts.Cursor, "C1", 100, msg("m1", 100, "U1", "already handled"))

	assert.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, []sentReply{{"C1", wantReply}}, snd.sent)
	assert.Equal(t, []fetchCall{{"C1", 100}}, src.calls)

	wm, tracked := p.opts.Cursor.Since("C1")
	assert.True(t, tracked)
	assert.Equal(t, 105.0, wm)

	assert.Len(t, audit.entries, 1)
	assert.Equal(t, "success", audit.entries[0].Status)
	assert.Equal(t, "m2", audit.entries[0].MessageID)
	assert.Equal(t, "time_query", audit.entries[0].Intent)
	assert.Equal(t, 1, audit.entries[0].Attempts)

	// The same fetch result on the next cycle produces nothing new.
	assert.NoError(t, p.RunOnce(context.Background()))
	assert.Len(t, snd.sent, 1)
}

func TestFirstCycleStartsAtPollTimeNotHistory(t *testing.T) {
	src := &stubSource{fetch: func(channelID string, oldest float64) ([]models.Message, error) {
		// History from before the agent started watching.
		return []models.Message{msg("old", 50, "U1", "what time is it")}, nil
	}}
	snd := &stubSender{}
	p := newTestPoller(t, src, snd, staticChannels{{ID: "C1"}}, nil)

	assert.NoError(t, p.RunOnce(context.Background()))

	assert.Empty(t, snd.sent, "pre-start history must not be replied to")
	wm, tracked := p.opts.Cursor.Since("C1")
	assert.True(t, tracked)
	assert.Equal(t, float64(testNow.UnixNano())/1e9, wm)
}

func TestTransientFailureHaltsBatchAndResurfaces(t *testing.T) {
	batch := []models.Message{
		msg("m1", 10, "U1", "what time is it"),
		msg("m2", 20, "U1", "what time is it"),
		msg("m3", 30, "U1", "what time is it"),
	}
	src := &stubSource{fetch: func(channelID string, oldest float64) ([]models.Message, error) {
		return batch, nil
	}}
	snd := &stubSender{errs: []error{nil, &slack.APIError{Code: "rate_limited", StatusCode: 429}}}
	audit := &stubAudit{}
	p := newTestPoller(t, src, snd, staticChannels{{ID: "C1"}}, audit)
	preload(p.opts.Cursor, "C1", 5)

	assert.NoError(t, p.RunOnce(context.Background()))

	assert.Len(t, snd.sent, 1, "batch halts at the first transient failure")
	wm, _ := p.opts.Cursor.Since("C1")
	assert.Equal(t, 10.0, wm, "watermark covers only the processed prefix")

	snap := p.opts.Cursor.Snapshot()
	assert.Equal(t, 1, snap[0].ConsecutiveErrors)

	// Next cycle resurfaces m2 and m3.
	assert.NoError(t, p.RunOnce(context.Background()))

	assert.Len(t, snd.sent, 3)
	wm, _ = p.opts.Cursor.Since("C1")
	assert.Equal(t, 30.0, wm)
	assert.Equal(t, 0, p.opts.Cursor.Snapshot()[0].ConsecutiveErrors)
}

func TestShutdownLetsInFlightDispatchFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := &stubSource{fetch: func(channelID string, oldest float64) ([]models.Message, error) {
		return []models.Message{
			msg("m1", 10, "U1", "what time is it"),
			msg("m2", 20, "U1", "what time is it"),
		}, nil
	}}
	snd := &stubSender{}
	var sendCtxErr error
	var hasDeadline bool
	snd.onSend = func(c context.Context) {
		// Shutdown arrives while the reply is on the wire.
		cancel()
		sendCtxErr = c.Err()
		_, hasDeadline = c.Deadline()
	}
	p := newTestPoller(t, src, snd, staticChannels{{ID: "C1"}}, nil)
	preload(p.opts.Cursor, "C1", 5)

	assert.NoError(t, p.RunOnce(ctx))

	assert.NoError(t, sendCtxErr, "cancelling the cycle must not abort the dispatch")
	assert.True(t, hasDeadline, "the detached dispatch context still carries a timeout")
	assert.Len(t, snd.sent, 1, "the rest of the batch halts at the next cancellation check")

	wm, _ := p.opts.Cursor.Since("C1")
	assert.Equal(t, 10.0, wm, "the delivered reply advances the cursor; the rest resurfaces")
}

func TestTerminalFailureSkipsMessage(t *testing.T) {
	src := &stubSource{fetch: func(channelID string, oldest float64) ([]models.Message, error) {
		return []models.Message{
			msg("m1", 10, "U1", "what time is it"),
			msg("m2", 20, "U1", "time"),
		}, nil
	}}
	snd := &stubSender{errs: []error{&slack.APIError{Code: "msg_too_long"}}}
	audit := &stubAudit{}
	p := newTestPoller(t, src, snd, staticChannels{{ID: "C1"}}, audit)
	preload(p.opts.Cursor, "C1", 5)

	assert.NoError(t, p.RunOnce(context.Background()))

	assert.Len(t, snd.sent, 1, "processing continues past a terminal failure")
	assert.Equal(t, "m2", audit.entries[1].MessageID)
	assert.Equal(t, "failure", audit.entries[0].Status)
	assert.Equal(t, "success", audit.entries[1].Status)

	wm, _ := p.opts.Cursor.Since("C1")
	assert.Equal(t, 20.0, wm, "skipped message is not resurfaced")
}

func TestOwnMessagesAreSkipped(t *testing.T) {
	src := &stubSource{fetch: func(channelID string, oldest float64) ([]models.Message, error) {
		return []models.Message{
			msg("m1", 10, "U0BOT", "what time is it"),
			msg("m2", 20, "U1", "time"),
		}, nil
	}}
	snd := &stubSender{}
	audit := &stubAudit{}
	p := newTestPoller(t, src, snd, staticChannels{{ID: "C1"}}, audit)
	preload(p.opts.Cursor, "C1", 5)

	assert.NoError(t, p.RunOnce(context.Background()))

	assert.Len(t, snd.sent, 1)
	assert.Len(t, audit.entries, 1)
	assert.Equal(t, "m2", audit.entries[0].MessageID)

	wm, _ := p.opts.Cursor.Since("C1")
	assert.Equal(t, 20.0, wm, "own messages still advance the cursor")
}

func TestFetchErrorIsIsolatedPerChannel(t *testing.T) {
	src := &stubSource{fetch: func(channelID string, oldest float64) ([]models.Message, error) {
		if channelID == "C1" {
			return nil, &slack.APIError{Code: "internal_error", StatusCode: 500}
		}
		return []models.Message{{ID: "m1", ChannelID: "C2", AuthorID: "U1", Text: "time", Timestamp: 10}}, nil
	}}
	snd := &stubSender{}
	p := newTestPoller(t, src, snd, staticChannels{{ID: "C1"}, {ID: "C2"}}, nil)
	preload(p.opts.Cursor, "C1", 5)
	preload(p.opts.Cursor, "C2", 5)

	assert.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, []sentReply{{"C2", wantReply}}, snd.sent, "healthy channel is unaffected")

	snap := p.opts.Cursor.Snapshot()
	assert.Equal(t, "C1", snap[0].ChannelID)
	assert.Equal(t, 1, snap[0].ConsecutiveErrors)
	assert.Equal(t, 5.0, snap[0].Watermark, "failed fetch does not move the cursor")
	assert.Equal(t, 10.0, snap[1].Watermark)
}

func TestOverlappingCycleIsSkippedNotQueued(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	src := &stubSource{fetch: func(channelID string, oldest float64) ([]models.Message, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}}
	p := newTestPoller(t, src, &stubSender{}, staticChannels{{ID: "C1"}}, nil)

	var first sync.WaitGroup
	p.pollAll(context.Background(), &first)
	<-started

	var second sync.WaitGroup
	p.pollAll(context.Background(), &second)
	second.Wait()
	assert.Equal(t, 1, src.callCount(), "overlapping cycle must not fetch again")

	close(block)
	first.Wait()

	var third sync.WaitGroup
	p.pollAll(context.Background(), &third)
	third.Wait()
	assert.Equal(t, 2, src.callCount())
}

func TestEvaluatePanicIsContained(t *testing.T) {
	src := &stubSource{fetch: func(channelID string, oldest float64) ([]models.Message, error) {
		return []models.Message{msg("m1", 10, "U1", "what time is it")}, nil
	}}
	snd := &stubSender{}
	audit := &stubAudit{}
	p := newTestPoller(t, src, snd, staticChannels{{ID: "C1"}}, audit)
	p.opts.Classifier = panicMatcher{}
	preload(p.opts.Cursor, "C1", 5)

	assert.NoError(t, p.RunOnce(context.Background()))

	assert.Empty(t, snd.sent)
	assert.Len(t, audit.entries, 1)
	assert.Equal(t, "skipped", audit.entries[0].Status)
	assert.Contains(t, audit.entries[0].ErrorMsg, "panicked")

	wm, _ := p.opts.Cursor.Since("C1")
	assert.Equal(t, 10.0, wm, "a message that cannot be evaluated is skipped, not retried forever")
}

type panicMatcher struct{}

func (panicMatcher) Classify(text string) classifier.Intent { panic("bad rule") }

func TestStartStopLifecycle(t *testing.T) {
	src := &stubSource{}
	p := newTestPoller(t, src, &stubSender{}, staticChannels{{ID: "C1"}}, nil)
	p.opts.Interval = 10 * time.Millisecond

	assert.False(t, p.IsRunning())
	assert.NoError(t, p.Start())
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(), "double start is rejected")

	time.Sleep(35 * time.Millisecond)

	assert.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.GreaterOrEqual(t, src.callCount(), 2, "first cycle fires immediately, then on the ticker")

	drained := src.callCount()
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, drained, src.callCount(), "no cycles after stop")

	assert.NoError(t, p.Stop(), "stopping a stopped poller is a no-op")
}

func TestRunBlocksUntilCancelled(t *testing.T) {
	src := &stubSource{}
	p := newTestPoller(t, src, &stubSender{}, staticChannels{{ID: "C1"}}, nil)
	p.opts.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, src.callCount(), 2, "immediate cycle plus ticker cycles before cancel")
}

func TestStatusAnswersWhileStopDrains(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	src := &stubSource{fetch: func(channelID string, oldest float64) ([]models.Message, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}}
	p := newTestPoller(t, src, &stubSender{}, staticChannels{{ID: "C1"}}, nil)
	p.opts.Interval = time.Hour

	assert.NoError(t, p.Start())
	<-started

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		assert.NoError(t, p.Stop())
	}()

	// Stop is waiting on the blocked cycle; state queries must not hang
	// behind it.
	unlocked := make(chan struct{})
	go func() {
		defer close(unlocked)
		for p.IsRunning() {
			time.Sleep(time.Millisecond)
		}
	}()
	select {
	case <-unlocked:
	case <-time.After(time.Second):
		t.Fatal("state queries blocked while Stop drained the in-flight cycle")
	}
	assert.False(t, p.Status().Running)

	select {
	case <-stopped:
		t.Fatal("Stop returned before its in-flight cycle drained")
	default:
	}

	close(block)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the cycle drained")
	}
}

func TestRunOnceIsIndependentOfShutdownDrain(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	src := &stubSource{fetch: func(channelID string, oldest float64) ([]models.Message, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}}
	p := newTestPoller(t, src, &stubSender{}, staticChannels{{ID: "C1"}}, nil)
	p.opts.Interval = time.Hour

	assert.NoError(t, p.Start())
	<-started

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		assert.NoError(t, p.Stop())
	}()

	// A manual cycle during shutdown tracks itself; C1 is still in flight,
	// so it skips the channel and returns at once.
	assert.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 1, src.callCount())

	close(block)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the cycle drained")
	}
}

func TestPollerRestart(t *testing.T) {
	p := newTestPoller(t, &stubSource{}, &stubSender{}, staticChannels{{ID: "C1"}}, nil)
	p.opts.Interval = time.Hour

	if err := p.Start(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if !p.IsRunning() {
		t.Fatalf("poller should be running after Start")
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if p.IsRunning() {
		t.Fatalf("poller should not be running after Stop")
	}
	if err := p.Start(); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if !p.IsRunning() {
		t.Fatalf("poller should be running after second Start")
	}
	// context should be active
	if p.ctx == nil || p.ctx.Err() != nil {
		t.Fatalf("poller context should be active after restart")
	}
	p.Stop()
}

func TestStatusReportsCursorPositions(t *testing.T) {
	src := &stubSource{fetch: func(channelID string, oldest float64) ([]models.Message, error) {
		return []models.Message{msg("m1", 10, "U1", "hello")}, nil
	}}
	p := newTestPoller(t, src, &stubSender{}, staticChannels{{ID: "C1"}}, nil)
	preload(p.opts.Cursor, "C1", 5)

	assert.NoError(t, p.RunOnce(context.Background()))

	st := p.Status()
	assert.False(t, st.Running)
	assert.Equal(t, "1s", st.Interval)
	assert.Len(t, st.Channels, 1)
	assert.Equal(t, 10.0, st.Channels[0].Watermark)
}
