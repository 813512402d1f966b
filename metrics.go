package singleton

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

type metrics struct {
	admitted    prometheus.Counter
	pending     prometheus.Gauge
	stylesheets prometheus.Counter
	fetches     *prometheus.CounterVec
}

// newMetrics builds the collectors and registers them on reg when it is set.
// Runtimes sharing a registerer share the collectors; the pending gauge is
// their summed queue depth.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "singleton",
			Name:      "admitted_instances_total",
			Help:      "Instances moved from the pending queue to the active queue.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "singleton",
			Name:      "pending_instances",
			Help:      "Instances waiting for admission.",
		}),
		stylesheets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "singleton",
			Name:      "stylesheets_appended_total",
			Help:      "Stylesheet links appended to the document.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "singleton",
			Name:      "script_loads_total",
			Help:      "Script loads by result.",
		}, []string{"result"}),
	}
	if reg == nil {
		return m
	}
	m.admitted = register(reg, m.admitted)
	m.pending = register(reg, m.pending)
	m.stylesheets = register(reg, m.stylesheets)
	m.fetches = register(reg, m.fetches)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
