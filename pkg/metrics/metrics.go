// Package metrics provides Prometheus metrics for the API server.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the server.
type Metrics struct {
	// Registry holds every collector below. Each Metrics has its own registry
	// so several servers can live in one process.
	Registry *prometheus.Registry

	// DispositionsTotal counts conditional request outcomes by service and
	// status code.
	DispositionsTotal *prometheus.CounterVec
	// RequestDuration observes handler latency by route.
	RequestDuration *prometheus.HistogramVec
	// DefinitionErrors counts skipped resource and include map entries.
	DefinitionErrors *prometheus.CounterVec
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		DispositionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "j3_dispositions_total",
				Help: "Total number of conditional request dispositions",
			},
			[]string{"service", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "j3_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		DefinitionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "j3_definition_errors_total",
				Help: "Total number of skipped resource definition entries",
			},
			[]string{"service"},
		),
	}
}

// RecordDisposition counts one disposition.
func (m *Metrics) RecordDisposition(service string, status int) {
	m.DispositionsTotal.WithLabelValues(service, strconv.Itoa(status)).Inc()
}

// Middleware observes the duration of every request under its matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		m.RequestDuration.WithLabelValues(c.Route().Path).Observe(time.Since(start).Seconds())
		return err
	}
}

// BindTo exposes the registry at /metrics.
func (m *Metrics) BindTo(parent fiber.Router) {
	parent.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
}
