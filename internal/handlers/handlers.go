package handlers

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/classifier"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/metrics"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/poller"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/registry"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/store"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db         *gorm.DB
	store      *store.Store
	poller     *poller.Poller
	registry   *registry.Registry
	classifier *classifier.Classifier
	metrics    *metrics.Metrics
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, st *store.Store, p *poller.Poller, r *registry.Registry, cl *classifier.Classifier, m *metrics.Metrics) *Handlers {
	return &Handlers{db: db, store: st, poller: p, registry: r, classifier: cl, metrics: m}
}

// reloadClassifier pushes the current enabled ruleset into the live
// classifier after a rule mutation.
func (h *Handlers) reloadClassifier() {
	rules, err := h.store.LoadRuleset()
	if err != nil {
		logrus.Errorf("Failed to reload ruleset: %v", err)
		return
	}

	compiled := classifier.Compile(rules)
	h.classifier.Reload(compiled)
	h.metrics.ActiveRules.Set(float64(len(compiled)))
	logrus.Infof("Ruleset reloaded: %d active rules", len(compiled))
}
