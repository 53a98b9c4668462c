// Package metrics wraps the Prometheus collectors exported by the bingo hall.
// Every Record method is safe to call on a nil *Collector so components can
// run without metrics in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry and the application collectors.
type Collector struct {
	registry *prometheus.Registry

	connections      prometheus.Gauge
	events           *prometheus.CounterVec
	roundResets      *prometheus.CounterVec
	purchasedColumns prometheus.Gauge
	drawNumbers      prometheus.Counter
	queryErrors      *prometheus.CounterVec
}

// NewCollector creates a collector registered under namespace ("bingohall" when empty).
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "bingohall"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "connections",
		Help:      "Number of open websocket connections.",
	})
	c.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "events_total",
		Help:      "Inbound websocket commands processed, by event name.",
	}, []string{"event"})
	c.roundResets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "round",
		Name:      "resets_total",
		Help:      "Rounds started, by the reason the previous one ended.",
	}, []string{"reason"})
	c.purchasedColumns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "round",
		Name:      "purchased_columns",
		Help:      "Columns purchased in the current round.",
	})
	c.drawNumbers = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "draw",
		Name:      "numbers_total",
		Help:      "Numbers drawn by manual draw sessions.",
	})
	c.queryErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "query_errors_total",
		Help:      "Notification count queries that failed and degraded to zero.",
	}, []string{"count"})

	c.registry.MustRegister(
		c.connections,
		c.events,
		c.roundResets,
		c.purchasedColumns,
		c.drawNumbers,
		c.queryErrors,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connections.Inc()
}

func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connections.Dec()
}

func (c *Collector) RecordEvent(event string) {
	if c == nil {
		return
	}
	if event == "" {
		event = "unknown"
	}
	c.events.WithLabelValues(event).Inc()
}

func (c *Collector) RecordRoundReset(reason string) {
	if c == nil {
		return
	}
	c.roundResets.WithLabelValues(reason).Inc()
}

func (c *Collector) SetPurchasedColumns(n int) {
	if c == nil {
		return
	}
	c.purchasedColumns.Set(float64(n))
}

func (c *Collector) RecordDraw() {
	if c == nil {
		return
	}
	c.drawNumbers.Inc()
}

func (c *Collector) RecordQueryError(count string) {
	if c == nil {
		return
	}
	c.queryErrors.WithLabelValues(count).Inc()
}
