package policy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "policy",
	Subsystem: "engine",
	Name:      "mutations_total",
	Help:      "Committed override mutations by domain and operation.",
}, []string{"domain", "op"})
