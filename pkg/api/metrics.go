package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"cassette/pkg/config"
	"cassette/pkg/recorder"
)

// MetricsNamespace prefixes every exported metric
const MetricsNamespace = "cassette"

// Metrics holds the Prometheus collectors of one server
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	StoreErrorsTotal prometheus.Counter
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "requests_total",
				Help:      "Requests seen by the cassette middleware by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: MetricsNamespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Requests currently being served",
			},
		),
		StoreErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "store_errors_total",
				Help:      "Recording reads or writes that failed",
			},
		),
	}
}

// Registry returns the registry the collectors live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOutcome counts one request handled by the cassette engine
func (m *Metrics) ObserveOutcome(mode config.Mode, outcome recorder.Outcome) {
	m.RequestsTotal.WithLabelValues(string(mode), string(outcome)).Inc()
	if outcome == recorder.OutcomeError {
		m.StoreErrorsTotal.Inc()
	}
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Instrument middleware records request latency and in-flight requests
func Instrument(metrics *Metrics) MiddlewareFunc {
	if metrics == nil {
		return passthrough
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			metrics.RequestsInFlight.Inc()
			defer metrics.RequestsInFlight.Dec()

			next(ctx)

			metrics.RequestDuration.
				WithLabelValues(string(ctx.Method()), strconv.Itoa(ctx.Response.StatusCode())).
				Observe(time.Since(start).Seconds())
		}
	}
}
