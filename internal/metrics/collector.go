package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes pipeline metrics. A nil collector is valid
// and drops every observation, so callers never need to branch on whether
// metrics are enabled.
type Collector struct {
	registry     *prometheus.Registry
	unitsTotal   *prometheus.CounterVec
	runsTotal    *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
}

// New creates a collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		unitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reeldex_units_total",
				Help: "Units handled per step, by outcome",
			},
			[]string{"step", "outcome"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reeldex_runs_total",
				Help: "Pipeline runs, by outcome",
			},
			[]string{"outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reeldex_step_duration_seconds",
				Help:    "Wall-clock time per step run",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
			},
			[]string{"step"},
		),
	}

	c.registry.MustRegister(c.unitsTotal)
	c.registry.MustRegister(c.runsTotal)
	c.registry.MustRegister(c.stepDuration)

	return c
}

// AddUnits records n units with the given outcome for a step.
func (c *Collector) AddUnits(step, outcome string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.unitsTotal.WithLabelValues(step, outcome).Add(float64(n))
}

// IncRun records one pipeline run with the given outcome.
func (c *Collector) IncRun(outcome string) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStepDuration records how long a step run took.
func (c *Collector) ObserveStepDuration(step string, duration time.Duration) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// Handler returns the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr. Blocks until the listener fails, so
// callers run it in a goroutine for the duration of the process.
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return http.ListenAndServe(addr, mux)
}
