// Package metrics exposes lifecycle and HTTP metrics for prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "neurosphere"

// Metrics owns its registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	scansStarted           prometheus.Counter
	scansFinished          *prometheus.CounterVec
	stageTransitions       *prometheus.CounterVec
	scanDuration           prometheus.Histogram
	visualizationsFinished *prometheus.CounterVec
	queueDepth             prometheus.Gauge
	httpRequests           *prometheus.CounterVec
	httpLatency            *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scansStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_started_total",
			Help:      "Number of scans whose processing task was claimed.",
		}),
		scansFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_finished_total",
			Help:      "Number of scans reaching a terminal status, partitioned by status.",
		}, []string{"status"}),
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Number of persisted stage transitions, partitioned by stage.",
		}, []string{"stage"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Time from claim to terminal write of a scan.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		visualizationsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visualizations_finished_total",
			Help:      "Number of visualizations reaching a terminal status, partitioned by status.",
		}, []string{"status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting in the lifecycle worker queue.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Number of HTTP requests partitioned by status code, method and route.",
		}, []string{"code", "method", "path"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_milliseconds",
			Help:      "Time spent on the request partitioned by status code, method and route.",
			Buckets:   []float64{5, 25, 100, 300, 1000, 5000},
		}, []string{"code", "method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.scansStarted,
		m.scansFinished,
		m.stageTransitions,
		m.scanDuration,
		m.visualizationsFinished,
		m.queueDepth,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ScanStarted() { m.scansStarted.Inc() }

func (m *Metrics) StageTransition(stage string) {
	m.stageTransitions.WithLabelValues(stage).Inc()
}

func (m *Metrics) ScanFinished(status string, elapsed time.Duration) {
	m.scansFinished.WithLabelValues(status).Inc()
	m.scanDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) VisualizationFinished(status string) {
	m.visualizationsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) SetQueueDepth(n int) { m.queueDepth.Set(float64(n)) }

// GinMiddleware records request counts and latency by route pattern.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := strconv.Itoa(c.Writer.Status())
		m.httpRequests.WithLabelValues(code, c.Request.Method, path).Inc()
		m.httpLatency.WithLabelValues(code, c.Request.Method, path).Observe(float64(time.Since(start).Milliseconds()))
	}
}
