// Package metrics exposes Prometheus metrics for the drain loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Drain passes, by outcome: "work", "idle", "locked" or "error".
	PassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newtnet_drain_passes_total",
			Help: "Total number of drain passes by outcome",
		},
		[]string{"outcome"},
	)

	PassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newtnet_drain_pass_duration_seconds",
			Help:    "Drain pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newtnet_actions_total",
			Help: "Total number of networking actions processed by type and final status",
		},
		[]string{"type", "status"},
	)

	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newtnet_action_duration_seconds",
			Help:    "Time to apply one networking action, by type",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"type"},
	)

	SessionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newtnet_switch_sessions_opened_total",
			Help: "Total number of switch sessions opened",
		},
		[]string{"switch"},
	)

	SwitchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newtnet_switch_errors_total",
			Help: "Total number of switch errors by switch and operation",
		},
		[]string{"switch", "op"},
	)

	JournalActions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "newtnet_journal_actions",
			Help: "Journal entries by status, as of the last collection",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(PassesTotal)
	prometheus.MustRegister(PassDuration)
	prometheus.MustRegister(ActionsTotal)
	prometheus.MustRegister(ActionDuration)
	prometheus.MustRegister(SessionsOpened)
	prometheus.MustRegister(SwitchErrors)
	prometheus.MustRegister(JournalActions)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation for a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on h.
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time on h for labels.
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
