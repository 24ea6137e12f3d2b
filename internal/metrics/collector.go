// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package metrics exposes Prometheus counters and histograms for HTTP
// traffic and provider transformations. Each Collector owns its registry
// so tests and multiple servers never collide on the global one.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records request and transformation metrics.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	transformsTotal   *prometheus.CounterVec
	transformDuration *prometheus.HistogramVec
	freeGenerations   prometheus.Counter
}

// NewCollector creates a collector with its own registry under namespace.
// Go runtime and process collectors are registered alongside.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		transformsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transforms_total",
				Help:      "Image transformations by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		transformDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transform_duration_seconds",
				Help:      "Image transformation latency in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
			},
			[]string{"provider"},
		),
		freeGenerations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "free_generations_consumed_total",
				Help:      "Free generations charged to user profiles",
			},
		),
	}
}

// ObserveTransform records one gateway outcome. outcome is "success" or
// the error kind.
func (c *Collector) ObserveTransform(provider, outcome string, duration time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	c.transformsTotal.WithLabelValues(provider, outcome).Inc()
	c.transformDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordHTTPRequest records one served request. route should be the
// matched route pattern, not the raw path.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncFreeGenerations counts one consumed free generation.
func (c *Collector) IncFreeGenerations() {
	c.freeGenerations.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
