// Package metrics exports Prometheus collectors for publication cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline's Prometheus metrics
type Collector struct {
	// Cycle metrics
	CyclesTotal       prometheus.Counter
	ArticlesPublished prometheus.Counter
	TopicsSkipped     *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec

	// Image metrics
	ImageBytes *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Collector{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "blogwire_cycles_total",
			Help: "Total publication cycles run",
		}),
		ArticlesPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "blogwire_articles_published_total",
			Help: "Total articles persisted as published",
		}),
		TopicsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blogwire_topics_skipped_total",
			Help: "Total candidates skipped, by reason",
		}, []string{"reason"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blogwire_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		ImageBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blogwire_image_bytes",
			Help:    "Featured image size before and after optimization",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
		}, []string{"phase"}),
		gatherer: reg,
	}
}

// CycleStarted counts a cycle.
func (c *Collector) CycleStarted() {
	c.CyclesTotal.Inc()
}

// Published counts a published article.
func (c *Collector) Published() {
	c.ArticlesPublished.Inc()
}

// Skipped counts a skipped candidate.
func (c *Collector) Skipped(reason string) {
	c.TopicsSkipped.WithLabelValues(reason).Inc()
}

// ObserveStage records how long stage took since start.
func (c *Collector) ObserveStage(stage string, start time.Time) {
	c.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// ObserveImageBytes records an image size for phase ("original" or "optimized").
func (c *Collector) ObserveImageBytes(phase string, n int) {
	c.ImageBytes.WithLabelValues(phase).Observe(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
