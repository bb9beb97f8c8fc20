package classifier

import (
	"strings"
	"sync"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
)

// Intent is the classification result for a message.
type Intent string

const (
	// IntentNone means no rule matched.
	IntentNone Intent = ""
	// IntentTimeQuery is a request for the current time.
	IntentTimeQuery Intent = "time_query"
)

// Rule is a compiled classification rule. Phrase is stored normalized.
type Rule struct {
	Phrase    string
	MatchKind string
	Intent    Intent
}

// Classifier matches message text against an ordered rule list. Matching is
// first-match-wins; the ruleset can be swapped at runtime without blocking
// concurrent Classify calls for longer than the swap itself.
type Classifier struct {
	mu    sync.RWMutex
	rules []Rule
}

// New creates a classifier with the given compiled rules
func New(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// NewDefault creates a classifier with the built-in time-query rules
func NewDefault() *Classifier {
	return New(Compile(DefaultRules()))
}

// Classify normalizes text and returns the intent of the first matching
// rule, or IntentNone. It performs no I/O and reads no clock.
func (c *Classifier) Classify(text string) Intent {
	norm := Normalize(text)
	if norm == "" {
		return IntentNone
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, r := range c.rules {
		if r.matches(norm) {
			return r.Intent
		}
	}
	return IntentNone
}

// Reload atomically replaces the ruleset.
func (c *Classifier) Reload(rules []Rule) {
	c.mu.Lock()
	c.rules = rules
	c.mu.Unlock()
}

// RuleCount returns the number of active rules.
func (c *Classifier) RuleCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

func (r Rule) matches(norm string) bool {
	switch r.MatchKind {
	case models.MatchContains:
		return strings.Contains(norm, r.Phrase)
	case models.MatchPrefix:
		return strings.HasPrefix(norm, r.Phrase)
	default:
		return norm == r.Phrase
	}
}

// Compile turns stored rules into matchable ones, preserving order. Rules
// whose phrase normalizes to nothing are dropped.
func Compile(specs []models.ReplyRule) []Rule {
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		phrase := Normalize(spec.Phrase)
		if phrase == "" {
			continue
		}
		kind := spec.MatchKind
		if kind != models.MatchContains && kind != models.MatchPrefix {
			kind = models.MatchExact
		}
		rules = append(rules, Rule{Phrase: phrase, MatchKind: kind, Intent: Intent(spec.Intent)})
	}
	return rules
}

// Normalize lowercases, collapses whitespace and strips trailing punctuation
// so that "What time is it?" and "what time is it" compare equal.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, "?!.,;:")
	return strings.TrimSpace(s)
}

// DefaultRules returns the built-in time-query ruleset, used to seed the
// rules table and as a fallback when the table is empty.
func DefaultRules() []models.ReplyRule {
	phrases := []string{
		"what time is it",
		"what's the time",
		"what is the time",
		"time",
		"current time",
	}
	rules := make([]models.ReplyRule, 0, len(phrases))
	for _, p := range phrases {
		rules = append(rules, models.ReplyRule{
			Phrase:    p,
			MatchKind: models.MatchExact,
			Intent:    string(IntentTimeQuery),
			Priority:  10,
			Enabled:   true,
		})
	}
	return rules
}
