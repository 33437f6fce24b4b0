package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	effectsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policy",
		Subsystem: "dispatch",
		Name:      "effects_dispatched_total",
		Help:      "Effects delivered to their domain handler.",
	}, []string{"domain"})

	effectsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policy",
		Subsystem: "dispatch",
		Name:      "effects_retried_total",
		Help:      "Effect deliveries that failed and were rescheduled.",
	}, []string{"domain"})

	effectsDead = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policy",
		Subsystem: "dispatch",
		Name:      "effects_dead_total",
		Help:      "Effects parked as failed after exhausting retries.",
	}, []string{"domain"})
)
