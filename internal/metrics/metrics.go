package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	PollCount         prometheus.Counter
	MatchCount        prometheus.Counter
	DispatchSuccesses prometheus.Counter
	DispatchFailures  prometheus.Counter
	FetchFailures     prometheus.Counter
	SkippedCycles     prometheus.Counter
	BreakerTrips      prometheus.Counter
	CycleDuration     prometheus.Histogram
	MonitoredChannels prometheus.Gauge
	ActiveRules       prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PollCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slack_agent_poll_count",
			Help: "Total number of channel poll cycles executed",
		}),
		MatchCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slack_agent_match_count",
			Help: "Total number of messages that matched a reply rule",
		}),
		DispatchSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slack_agent_dispatch_successes",
			Help: "Total number of successfully dispatched replies",
		}),
		DispatchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slack_agent_dispatch_failures",
			Help: "Total number of failed reply dispatches",
		}),
		FetchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slack_agent_fetch_failures",
			Help: "Total number of failed channel history fetches",
		}),
		SkippedCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slack_agent_skipped_cycles",
			Help: "Total number of poll cycles skipped because the previous cycle was still running",
		}),
		BreakerTrips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slack_agent_breaker_trips",
			Help: "Total number of times a channel circuit breaker opened",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "slack_agent_cycle_duration_seconds",
			Help:    "Time spent polling and processing a single channel",
			Buckets: prometheus.DefBuckets,
		}),
		MonitoredChannels: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "slack_agent_monitored_channels",
			Help: "Number of channels currently being monitored",
		}),
		ActiveRules: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "slack_agent_active_rules",
			Help: "Number of currently active reply rules",
		}),
	}
}
