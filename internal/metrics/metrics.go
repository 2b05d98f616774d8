// Package metrics registers the Prometheus collectors for the induction
// core and exposes the scrape handler mounted at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DecisionsGenerated counts induction decisions produced.
	DecisionsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inductor_decisions_generated_total",
		Help: "Number of induction decisions generated.",
	})

	// OptimizerGenerations counts NSGA-II generations evaluated across all runs.
	OptimizerGenerations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inductor_optimizer_generations_total",
		Help: "Number of optimizer generations evaluated.",
	})

	// OptimizerRunsActive tracks runs currently executing in the worker pool.
	OptimizerRunsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inductor_optimizer_runs_active",
		Help: "Optimization runs currently executing.",
	})

	// EventsPublished counts bus publishes per topic.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inductor_events_published_total",
		Help: "Events published on the in-process bus.",
	}, []string{"topic"})

	// EventsDropped counts events discarded by backpressure policy.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inductor_events_dropped_total",
		Help: "Events dropped by subscription backpressure policy.",
	}, []string{"topic", "policy"})

	// SubscriptionsActive tracks live bus subscriptions.
	SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inductor_subscriptions_active",
		Help: "Active event bus subscriptions.",
	})

	// SweepTransitions counts status-loop transitions by target status.
	SweepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inductor_sweep_transitions_total",
		Help: "Status transitions applied by the autonomous status loop.",
	}, []string{"to"})
)

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
