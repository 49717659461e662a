// Package metrics records the outcome and latency of store operations.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder observes one completed operation.
type Recorder interface {
	Observe(ctx context.Context, op string, success bool, dur time.Duration)
}

// Noop discards observations.
type Noop struct{}

// Observe implements Recorder.
func (Noop) Observe(context.Context, string, bool, time.Duration) {}

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Prometheus records a duration histogram and an outcome counter per
// operation.
type Prometheus struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
}

// NewPrometheus registers the collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lattice",
			Name:      "operation_duration_seconds",
			Help:      "Latency of datastore and graph operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice",
			Name:      "operations_total",
			Help:      "Completed datastore and graph operations by outcome.",
		}, []string{"op", "outcome"}),
	}
	reg.MustRegister(p.duration, p.total)
	return p
}

// Observe implements Recorder.
func (p *Prometheus) Observe(_ context.Context, op string, success bool, dur time.Duration) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeError
	}
	p.duration.WithLabelValues(op).Observe(dur.Seconds())
	p.total.WithLabelValues(op, outcome).Inc()
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Track returns a func that observes op when called with the operation's
// final error. Typical use:
//
//	done := metrics.Track(ctx, rec, "get_entity")
//	defer func() { done(err) }()
func Track(ctx context.Context, rec Recorder, op string) func(error) {
	start := time.Now()
	return func(err error) {
		rec.Observe(ctx, op, err == nil, time.Since(start))
	}
}
