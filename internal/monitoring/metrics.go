// Package monitoring bundles the Prometheus collectors for a harvest run.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics registers every collector on a dedicated registry so parallel
// runs and tests never collide on the default registerer.
type Metrics struct {
	Registry *prometheus.Registry

	PagesDiscovered   prometheus.Counter
	ProductsProcessed *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	FetchDuration     prometheus.Histogram
	CurrentWave       prometheus.Gauge
	QueuedURLs        prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "harvester_category_pages_total",
		Help: "Category listing pages walked during discovery.",
	})
	products := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_products_processed_total",
		Help: "Product fetch attempts by outcome.",
	}, []string{"outcome"})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_errors_total",
		Help: "Errors encountered, by pipeline layer.",
	}, []string{"kind"})
	fetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvester_fetch_duration_seconds",
		Help:    "Product page fetch and extract latency.",
		Buckets: prometheus.DefBuckets,
	})
	currentWave := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "harvester_current_wave",
		Help: "Fetch wave currently in progress (0 when idle).",
	})
	queued := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "harvester_queued_urls",
		Help: "Product URLs remaining in the current wave.",
	})

	registry.MustRegister(pages, products, errorsTotal, fetchDuration, currentWave, queued)

	return &Metrics{
		Registry:          registry,
		PagesDiscovered:   pages,
		ProductsProcessed: products,
		ErrorsTotal:       errorsTotal,
		FetchDuration:     fetchDuration,
		CurrentWave:       currentWave,
		QueuedURLs:        queued,
	}
}

// IncProcessed counts one fetch attempt with its outcome label.
func (m *Metrics) IncProcessed(outcome string) {
	if m == nil {
		return
	}
	m.ProductsProcessed.WithLabelValues(outcome).Inc()
}

// IncError counts one error by pipeline layer.
func (m *Metrics) IncError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveFetch records a fetch+extract latency sample.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// SetWave publishes the wave currently in progress.
func (m *Metrics) SetWave(wave int) {
	if m == nil {
		return
	}
	m.CurrentWave.Set(float64(wave))
}

// SetQueued publishes the number of URLs left in the current wave.
func (m *Metrics) SetQueued(n int) {
	if m == nil {
		return
	}
	m.QueuedURLs.Set(float64(n))
}

// AddPages counts category listing pages walked.
func (m *Metrics) AddPages(n int) {
	if m == nil {
		return
	}
	m.PagesDiscovered.Add(float64(n))
}
