// Package metrics exposes dispatch counters and timings in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names.
const (
	RequestsTotal = "api_dispatch_requests_total"
	ExecutionMs   = "api_dispatch_execution_ms"
)

// Collector records dispatch metrics on its own registry.
type Collector struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	execution *prometheus.HistogramVec
}

// NewCollector creates a Collector with the Go and process collectors
// registered next to the dispatch metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: RequestsTotal,
			Help: "Dispatched requests by method and response code.",
		}, []string{"method", "code"}),
		execution: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    ExecutionMs,
			Help:    "Dispatch execution time in milliseconds, up to the end of process.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"method"}),
	}
	c.registry.MustRegister(
		c.requests,
		c.execution,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveDispatch records one finished dispatch.
func (c *Collector) ObserveDispatch(method string, code int, executionMs float64) {
	c.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	c.execution.WithLabelValues(method).Observe(executionMs)
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
