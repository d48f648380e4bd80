package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for the distribution pipeline.
type Collector struct {
	registry *prometheus.Registry

	uploadsTotal     *prometheus.CounterVec
	uploadDuration   *prometheus.HistogramVec
	queueDepth       prometheus.Gauge
	escalationsTotal prometheus.Counter
	preemptionsTotal prometheus.Counter
	alertsTotal      *prometheus.CounterVec
}

// New constructs a collector with its own registry.
func New() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distributor",
			Subsystem: "uploads",
			Name:      "total",
			Help:      "Upload cascade outcomes by platform, strategy and result.",
		}, []string{"platform", "strategy", "result"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "distributor",
			Subsystem: "uploads",
			Name:      "duration_seconds",
			Help:      "Wall time of one platform cascade.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"platform"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "distributor",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of posts waiting in the priority queue.",
		}),
		escalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "distributor",
			Subsystem: "escalations",
			Name:      "total",
			Help:      "Posts handed to the manual escalation queue.",
		}),
		preemptionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "distributor",
			Subsystem: "queue",
			Name:      "preemptions_total",
			Help:      "In-flight posts cancelled by breaking news.",
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distributor",
			Subsystem: "alerts",
			Name:      "total",
			Help:      "Alerts dispatched by severity.",
		}, []string{"severity"}),
	}

	for _, col := range []prometheus.Collector{
		c.uploadsTotal, c.uploadDuration, c.queueDepth,
		c.escalationsTotal, c.preemptionsTotal, c.alertsTotal,
	} {
		if err := registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an HTTP handler exposing the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveUpload(platform, strategy, result string, took time.Duration) {
	c.uploadsTotal.WithLabelValues(platform, strategy, result).Inc()
	c.uploadDuration.WithLabelValues(platform).Observe(took.Seconds())
}

func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

func (c *Collector) IncEscalations() {
	c.escalationsTotal.Inc()
}

func (c *Collector) IncPreemptions() {
	c.preemptionsTotal.Inc()
}

func (c *Collector) IncAlerts(severity string) {
	c.alertsTotal.WithLabelValues(severity).Inc()
}
