package shuffle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of rewrite passes. A nil *Metrics
// records nothing.
type Metrics struct {
	EntriesIndexed *prometheus.CounterVec
	EntriesEmitted *prometheus.CounterVec
	BytesEmitted   *prometheus.CounterVec
	PassDuration   *prometheus.HistogramVec
	PassFailures   *prometheus.CounterVec
	ClassCount     prometheus.Gauge
}

// NewMetrics creates and registers the rewrite metrics on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		EntriesIndexed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataset_shuffle_entries_indexed_total",
				Help: "Total number of entries indexed by rewrite passes",
			},
			[]string{"mode"},
		),
		EntriesEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataset_shuffle_entries_emitted_total",
				Help: "Total number of entries written in shuffled order",
			},
			[]string{"mode"},
		),
		BytesEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataset_shuffle_bytes_emitted_total",
				Help: "Total number of record payload bytes written by rewrite passes",
			},
			[]string{"mode"},
		),
		PassDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dataset_shuffle_pass_duration_seconds",
				Help:    "Duration of complete rewrite passes",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0, 600.0},
			},
			[]string{"mode", "status"},
		),
		PassFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataset_shuffle_pass_failures_total",
				Help: "Total number of aborted rewrite passes by failure kind",
			},
			[]string{"mode", "kind"},
		),
		ClassCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dataset_shuffle_classes",
				Help: "Number of distinct classes found by the last balanced pass",
			},
		),
	}
}

func (m *Metrics) AddIndexed(mode Mode, n int) {
	if m == nil {
		return
	}
	m.EntriesIndexed.WithLabelValues(string(mode)).Add(float64(n))
}

func (m *Metrics) AddEmitted(mode Mode, entries int, bytes int64) {
	if m == nil {
		return
	}
	m.EntriesEmitted.WithLabelValues(string(mode)).Add(float64(entries))
	m.BytesEmitted.WithLabelValues(string(mode)).Add(float64(bytes))
}

func (m *Metrics) SetClassCount(n int) {
	if m == nil {
		return
	}
	m.ClassCount.Set(float64(n))
}

// ObservePass records a finished pass. kind is empty on success.
func (m *Metrics) ObservePass(mode Mode, kind string, seconds float64) {
	if m == nil {
		return
	}
	status := "success"
	if kind != "" {
		status = "failure"
		m.PassFailures.WithLabelValues(string(mode), kind).Inc()
	}
	m.PassDuration.WithLabelValues(string(mode), status).Observe(seconds)
}
