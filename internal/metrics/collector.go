// Package metrics holds the Prometheus collectors of a session.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records session activity. A nil *Collector is valid and
// records nothing.
type Collector struct {
	actionsTotal         *prometheus.CounterVec
	actionDuration       *prometheus.HistogramVec
	evaluationsTotal     *prometheus.CounterVec
	readinessWait        prometheus.Histogram
	lifecycleTransitions *prometheus.CounterVec
	registryFetchesTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the collectors on reg under namespace.
func NewCollector(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.actionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total number of interaction commands",
		},
		[]string{"action", "platform", "outcome"},
	)

	c.actionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Interaction command duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"action", "platform"},
	)

	c.evaluationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total number of finished evaluation rounds",
		},
		[]string{"outcome"},
	)

	c.readinessWait = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "readiness_wait_seconds",
			Help:      "Time spent waiting for the environment to become ready",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	c.lifecycleTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Total number of lifecycle state transitions",
		},
		[]string{"from", "to"},
	)

	c.registryFetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_fetches_total",
			Help:      "Task registry reads by the tier that served them",
		},
		[]string{"source"},
	)

	c.logger.Debug("Metrics collectors registered.", zap.String("namespace", namespace))
	return c
}

// RecordAction counts one interaction command and its duration.
func (c *Collector) RecordAction(action, platform, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.actionsTotal.WithLabelValues(action, platform, outcome).Inc()
	c.actionDuration.WithLabelValues(action, platform).Observe(d.Seconds())
}

// RecordEvaluation counts a finished round by outcome: passed, failed or error.
func (c *Collector) RecordEvaluation(outcome string) {
	if c == nil {
		return
	}
	c.evaluationsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordReadinessWait(d time.Duration) {
	if c == nil {
		return
	}
	c.readinessWait.Observe(d.Seconds())
}

func (c *Collector) RecordTransition(from, to string) {
	if c == nil {
		return
	}
	c.lifecycleTransitions.WithLabelValues(from, to).Inc()
}

// RecordRegistryFetch counts a registry read served by source: memory, file, redis or remote.
func (c *Collector) RecordRegistryFetch(source string) {
	if c == nil {
		return
	}
	c.registryFetchesTotal.WithLabelValues(source).Inc()
}
