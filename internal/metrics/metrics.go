// Package metrics exports delivery metrics in the Prometheus format.
//
// Features:
//   - Counters for deliveries by outcome and for backend attempts
//   - Histograms for delivery and per-attempt latency
//   - A gauge for in-flight deliveries
//   - A private registry so tests and embedders never collide on the
//     global one
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scrivener/internal/engine"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "scrivener"

// Recorder collects engine events as Prometheus metrics. It implements
// engine.Observer.
type Recorder struct {
	registry *prometheus.Registry

	deliveries       *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	attempts         *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	transitions      *prometheus.CounterVec
	inFlight         prometheus.Gauge
	payloadLength    prometheus.Histogram
}

// New creates a Recorder with its own registry. When withRuntime is set
// the Go runtime and process collectors are registered too.
func New(namespace string, withRuntime bool) (*Recorder, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Deliveries by resolved profile, result and error kind.",
		}, []string{"profile", "result", "error_kind"}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "End to end delivery latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"strategy", "result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_attempts_total",
			Help:      "Backend tries by backend and result.",
		}, []string{"backend", "result"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_attempt_duration_seconds",
			Help:      "Latency of a single backend try.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Engine state transitions by target state.",
		}, []string{"state"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deliveries_in_flight",
			Help:      "Deliveries currently running.",
		}),
		payloadLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payload_length_runes",
			Help:      "Length of shaped payloads.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 7),
		}),
	}

	cs := []prometheus.Collector{
		r.deliveries, r.deliveryDuration, r.attempts, r.attemptDuration,
		r.transitions, r.inFlight, r.payloadLength,
	}
	if withRuntime {
		cs = append(cs,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, c := range cs {
		if err := r.registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) OnTransition(_ context.Context, ev engine.Event) {
	if r == nil {
		return
	}
	switch ev.Type {
	case engine.EventAttempt:
		r.attempts.WithLabelValues(ev.Backend, result(ev.Err == nil)).Inc()
		r.attemptDuration.WithLabelValues(ev.Backend).Observe(ev.Duration.Seconds())
	case engine.EventTransition:
		r.transitions.WithLabelValues(ev.State.String()).Inc()
		if ev.From == engine.StateIdle && ev.State == engine.StatePreparing {
			r.inFlight.Inc()
		}
	}
}

func (r *Recorder) OnOutcome(_ context.Context, out engine.Outcome) {
	if r == nil {
		return
	}
	// Busy outcomes never entered Preparing.
	if out.Kind != engine.KindBusy {
		r.inFlight.Dec()
	}
	profile := out.Profile
	if profile == "" {
		profile = "unresolved"
	}
	r.deliveries.WithLabelValues(profile, result(out.Success), out.Kind.String()).Inc()
	r.deliveryDuration.WithLabelValues(out.Strategy, result(out.Success)).Observe(out.Duration.Seconds())
	if out.Length > 0 {
		r.payloadLength.Observe(float64(out.Length))
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

var _ engine.Observer = (*Recorder)(nil)
