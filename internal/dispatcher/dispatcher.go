package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/config"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/metrics"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/slack"
)

// MessagePoster posts a message to a channel.
type MessagePoster interface {
	PostMessage(ctx context.Context, channelID, text string) (*slack.PostedMessage, error)
}

// Result describes a successfully dispatched message.
type Result struct {
	MessageID string
	Timestamp float64
	Attempts  int
}

// CircuitOpenError is returned when the channel's breaker is blocking sends.
type CircuitOpenError struct {
	ChannelID string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for channel %s", e.ChannelID)
}

// ThrottledError is returned when the local rate limiter rejects a send
// before any network call is made.
type ThrottledError struct {
	ChannelID string
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("local rate limit exceeded for channel %s", e.ChannelID)
}

// Transient reports whether a Send error may succeed on a later cycle.
func Transient(err error) bool {
	var open *CircuitOpenError
	if errors.As(err, &open) {
		return true
	}
	var throttled *ThrottledError
	if errors.As(err, &throttled) {
		return true
	}
	return slack.Transient(err)
}

// Dispatcher sends replies through the platform client with retry and
// exponential backoff, a per-channel token bucket, and per-channel circuit
// breaking.
type Dispatcher struct {
	poster      MessagePoster
	limiter     *RateLimiter
	breaker     *Breaker
	metrics     *metrics.Metrics
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates a dispatcher
func New(cfg *config.DispatcherConfig, poster MessagePoster, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		poster:      poster,
		limiter:     NewRateLimiter(cfg.MessagesPerMinute, cfg.Burst),
		breaker:     NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		metrics:     m,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		sleep:       sleepWithContext,
	}
}

// Send delivers text to a channel. Transient errors are retried with
// exponential backoff (a server Retry-After hint overrides the computed
// delay when larger); terminal errors fail immediately. A send blocked by
// the breaker or the local rate limiter returns without a network call and
// without counting against the breaker; once a send is admitted, its
// outcome is always recorded with the breaker.
func (d *Dispatcher) Send(ctx context.Context, channelID, text string) (*Result, error) {
	// The limiter is checked first: a half-open trial must only be consumed
	// by a send that actually goes out on the wire.
	if !d.limiter.Allow(channelID) {
		logrus.WithField("channel", channelID).Warn("Local rate limit exceeded, deferring send")
		return nil, &ThrottledError{ChannelID: channelID}
	}
	if !d.breaker.Allow(channelID) {
		logrus.WithField("channel", channelID).Warn("Circuit open, skipping send")
		return nil, &CircuitOpenError{ChannelID: channelID}
	}

	var lastErr error
	attempts := 0
	for attempts < d.maxAttempts {
		if attempts > 0 {
			delay := d.backoff(attempts, lastErr)
			logrus.WithFields(logrus.Fields{
				"channel": channelID,
				"attempt": attempts + 1,
				"delay":   delay.String(),
			}).Info("Retrying send")
			if err := d.sleep(ctx, delay); err != nil {
				// The preceding attempt already failed; resolve the
				// breaker so a half-open trial is never left dangling.
				d.recordFailure(channelID)
				return nil, err
			}
		}
		attempts++

		posted, err := d.poster.PostMessage(ctx, channelID, text)
		if err == nil {
			d.breaker.RecordSuccess(channelID)
			return &Result{
				MessageID: posted.MessageID,
				Timestamp: posted.Timestamp,
				Attempts:  attempts,
			}, nil
		}

		lastErr = err
		logrus.WithFields(logrus.Fields{
			"channel": channelID,
			"attempt": attempts,
			"code":    slack.ErrorCode(err),
		}).Warnf("Send attempt failed: %v", err)

		if !slack.Transient(err) {
			break
		}
	}

	d.recordFailure(channelID)
	return nil, fmt.Errorf("failed to send to channel %s after %d attempts: %w", channelID, attempts, lastErr)
}

func (d *Dispatcher) recordFailure(channelID string) {
	if d.breaker.RecordFailure(channelID) {
		d.metrics.BreakerTrips.Inc()
		logrus.WithField("channel", channelID).Warn("Circuit breaker opened")
	}
}

// backoff computes the delay before the next attempt given the number of
// attempts already made.
func (d *Dispatcher) backoff(attemptsMade int, lastErr error) time.Duration {
	delay := d.baseDelay * time.Duration(1<<uint(attemptsMade-1))
	if delay > d.maxDelay {
		delay = d.maxDelay
	}
	if hint, ok := slack.RetryAfterHint(lastErr); ok && hint > delay {
		delay = hint
	}
	return delay
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
