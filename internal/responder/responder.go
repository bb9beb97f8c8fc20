package responder

import (
	"fmt"
	"time"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/classifier"
)

const timeReplyLayout = "03:04:05 PM MST on 2006-01-02"

// Formatter renders reply text for classified intents. It is pure: the
// caller injects now, and the civil timezone is fixed at construction.
type Formatter struct {
	loc *time.Location
}

// New creates a formatter rendering times in the given IANA timezone
func New(timezone string) (*Formatter, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Formatter{loc: loc}, nil
}

// Respond returns the reply text for intent, or ok=false when the intent has
// no reply.
func (f *Formatter) Respond(intent classifier.Intent, now time.Time) (string, bool) {
	switch intent {
	case classifier.IntentTimeQuery:
		return "The current time is " + now.In(f.loc).Format(timeReplyLayout), true
	default:
		return "", false
	}
}
