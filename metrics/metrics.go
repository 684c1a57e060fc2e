// Package metrics provides Prometheus collectors for dispatches, chain steps
// and evaluator candidates.
//
// Information Hiding:
// - Metric names, labels and buckets
// - Registration against a caller-supplied registerer
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "llmchain"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Collector groups every llmchain metric.
type Collector struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	stepsTotal       *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	candidatesTotal  *prometheus.CounterVec
}

// New registers the collectors on reg. Registering twice on the same
// registerer panics, as promauto does.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		dispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Backend dispatches by operation and outcome",
			},
			[]string{"backend", "model", "operation", "status"},
		),
		dispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Backend dispatch latency",
				Buckets:   LLMBuckets,
			},
			[]string{"backend", "model", "operation"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Tokens reported by backends, by direction",
			},
			[]string{"backend", "model", "direction"},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Chain steps by outcome",
			},
			[]string{"chain", "status"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Chain runs by terminal state",
			},
			[]string{"chain", "state"},
		),
		candidatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluation_candidates_total",
				Help:      "Evaluator targets by outcome",
			},
			[]string{"target", "status"},
		),
	}
}

// Status labels.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// RecordDispatch records one backend call.
func (c *Collector) RecordDispatch(backend, model, operation string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	c.dispatchTotal.WithLabelValues(backend, model, operation, status).Inc()
	c.dispatchDuration.WithLabelValues(backend, model, operation).Observe(elapsed.Seconds())
}

// RecordTokens adds prompt and completion token counts.
func (c *Collector) RecordTokens(backend, model string, prompt, completion uint32) {
	if c == nil {
		return
	}
	if prompt > 0 {
		c.tokensTotal.WithLabelValues(backend, model, "input").Add(float64(prompt))
	}
	if completion > 0 {
		c.tokensTotal.WithLabelValues(backend, model, "output").Add(float64(completion))
	}
}

// RecordStep records a step outcome (ok, error or skipped).
func (c *Collector) RecordStep(chain, status string) {
	if c == nil {
		return
	}
	c.stepsTotal.WithLabelValues(chain, status).Inc()
}

// RecordRun records a run reaching a terminal or suspended state.
func (c *Collector) RecordRun(chain, state string) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(chain, state).Inc()
}

// RecordCandidate records one evaluator target outcome.
func (c *Collector) RecordCandidate(target string, err error) {
	if c == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	c.candidatesTotal.WithLabelValues(target, status).Inc()
}
