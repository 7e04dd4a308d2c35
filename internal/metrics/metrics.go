// Package metrics exposes Prometheus collectors for the capture service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	capturesTotal        *prometheus.CounterVec
	captureDuration      prometheus.Histogram
	pagesChangedTotal    prometheus.Counter
	activeRenderSessions prometheus.Gauge
	activeWorkers        prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		capturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_captures_total",
				Help: "Total number of capture jobs processed, labeled by outcome.",
			},
			[]string{"status"},
		)
		captureDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagewatch_capture_duration_seconds",
				Help:    "Histogram of end-to-end capture job latencies.",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
			},
		)
		pagesChangedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pagewatch_pages_changed_total",
				Help: "Total number of captures that detected a page change.",
			},
		)
		activeRenderSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagewatch_active_render_sessions",
				Help: "Number of render sessions currently held.",
			},
		)
		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagewatch_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)
	})
}

// ObserveCapture records one finished capture job.
func ObserveCapture(status string, duration time.Duration) {
	if capturesTotal == nil {
		return
	}
	capturesTotal.WithLabelValues(status).Inc()
	captureDuration.Observe(duration.Seconds())
}

// PageChanged counts a capture whose change detector fired.
func PageChanged() {
	if pagesChangedTotal == nil {
		return
	}
	pagesChangedTotal.Inc()
}

// RenderSessionOpened and RenderSessionClosed track the session gauge.
func RenderSessionOpened() {
	if activeRenderSessions != nil {
		activeRenderSessions.Inc()
	}
}

// RenderSessionClosed decrements the session gauge.
func RenderSessionClosed() {
	if activeRenderSessions != nil {
		activeRenderSessions.Dec()
	}
}

// WorkerBusy and WorkerIdle track the worker gauge.
func WorkerBusy() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// WorkerIdle decrements the worker gauge.
func WorkerIdle() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
