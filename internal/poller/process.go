package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/classifier"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/dispatcher"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
)

// dispatchTimeout bounds a single dispatch, retries and backoff included.
// Generous on purpose: it only exists to stop a wedged send from holding a
// channel lane forever.
const dispatchTimeout = 5 * time.Minute

// pollChannel runs one poll cycle for a single channel. Failures stay local:
// an error here never touches other channels' cursors or cycles.
func (p *Poller) pollChannel(ctx context.Context, ch models.ChannelMeta) {
	start := p.now()
	pollStart := float64(start.UnixNano()) / 1e9

	p.opts.Metrics.PollCount.Inc()

	oldest, tracked := p.opts.Cursor.Since(ch.ID)
	if !tracked {
		oldest = pollStart
	}

	fetched, err := p.opts.Source.ListChannelMessages(ctx, ch.ID, oldest)
	if err != nil {
		count := p.opts.Cursor.RecordError(ch.ID)
		p.opts.Metrics.FetchFailures.Inc()
		logrus.WithFields(logrus.Fields{
			"channel":            ch.ID,
			"consecutive_errors": count,
		}).Errorf("Failed to fetch messages: %v", err)
		return
	}

	fresh := p.opts.Cursor.Filter(ch.ID, pollStart, fetched)

	// The watermark only moves past messages that were actually handled.
	// A transient dispatch failure halts the batch so the remainder
	// resurfaces next cycle; a terminal failure skips just that message.
	var processed []models.Message
	halted := false
	for _, msg := range fresh {
		if ctx.Err() != nil {
			halted = true
			break
		}
		if err := p.processMessage(ctx, ch, msg); err != nil {
			if dispatcher.Transient(err) {
				logrus.WithFields(logrus.Fields{
					"channel": ch.ID,
					"message": msg.ID,
				}).Warnf("Deferring message after transient failure: %v", err)
				halted = true
				break
			}
			logrus.WithFields(logrus.Fields{
				"channel": ch.ID,
				"message": msg.ID,
			}).Errorf("Dropping message after terminal failure: %v", err)
		}
		processed = append(processed, msg)
	}

	if len(processed) > 0 {
		p.opts.Cursor.Advance(ch.ID, processed)
	}

	if halted {
		p.opts.Cursor.RecordError(ch.ID)
	} else {
		p.opts.Cursor.ResetErrors(ch.ID)
	}

	duration := p.now().Sub(start)
	p.opts.Metrics.CycleDuration.Observe(duration.Seconds())

	fields := logrus.Fields{
		"channel":   ch.ID,
		"fetched":   len(fetched),
		"fresh":     len(fresh),
		"processed": len(processed),
		"duration":  duration.String(),
	}
	if len(fresh) > 0 {
		logrus.WithFields(fields).Info("Poll cycle completed")
	} else {
		logrus.WithFields(fields).Debug("Poll cycle completed")
	}
}

// processMessage handles a single fresh message. A nil return means the
// message is done with (replied, unmatched, or deliberately skipped) and the
// cursor may advance past it.
func (p *Poller) processMessage(ctx context.Context, ch models.ChannelMeta, msg models.Message) error {
	if p.opts.BotUserID != "" && msg.AuthorID == p.opts.BotUserID {
		logrus.WithFields(logrus.Fields{
			"channel": ch.ID,
			"message": msg.ID,
		}).Debug("Skipping own message")
		return nil
	}

	reply, intent, ok, err := p.evaluate(msg)
	if err != nil {
		p.recordAudit(models.DispatchLog{
			ChannelID: ch.ID,
			MessageID: msg.ID,
			Intent:    string(intent),
			Status:    "skipped",
			ErrorMsg:  err.Error(),
		})
		return err
	}
	if !ok {
		return nil
	}

	p.opts.Metrics.MatchCount.Inc()
	logrus.WithFields(logrus.Fields{
		"channel": ch.ID,
		"message": msg.ID,
		"intent":  string(intent),
	}).Info("Message matched rule")

	// A dispatch in flight is never cut off by shutdown: cancellation is
	// honored between messages, in pollChannel, but once a reply is on its
	// way out it runs to completion on a detached context.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	res, err := p.opts.Sender.Send(sendCtx, ch.ID, reply)
	if err != nil {
		p.opts.Metrics.DispatchFailures.Inc()
		p.recordAudit(models.DispatchLog{
			ChannelID: ch.ID,
			MessageID: msg.ID,
			Intent:    string(intent),
			Status:    "failure",
			ErrorMsg:  err.Error(),
		})
		return fmt.Errorf("dispatching reply: %w", err)
	}

	p.opts.Metrics.DispatchSuccesses.Inc()
	p.recordAudit(models.DispatchLog{
		ChannelID: ch.ID,
		MessageID: msg.ID,
		Intent:    string(intent),
		Status:    "success",
		Attempts:  res.Attempts,
	})
	logrus.WithFields(logrus.Fields{
		"channel":  ch.ID,
		"message":  msg.ID,
		"reply_ts": res.MessageID,
		"attempts": res.Attempts,
	}).Info("Reply dispatched")

	return nil
}

// evaluate runs classification and reply formatting. Both are pure, but a
// broken rule set must not take down the poll loop, so panics become errors.
func (p *Poller) evaluate(msg models.Message) (reply string, intent classifier.Intent, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("message evaluation panicked: %v", r)
		}
	}()

	intent = p.opts.Classifier.Classify(msg.Text)
	if intent == classifier.IntentNone {
		return "", intent, false, nil
	}

	reply, ok = p.opts.Formatter.Respond(intent, p.now())
	return reply, intent, ok, nil
}

func (p *Poller) recordAudit(entry models.DispatchLog) {
	if p.opts.Audit == nil {
		return
	}
	if err := p.opts.Audit.RecordDispatch(entry); err != nil {
		logrus.Errorf("Failed to record dispatch log: %v", err)
	}
}
