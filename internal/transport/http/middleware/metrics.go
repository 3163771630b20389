package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute replaces the path of requests that hit no route, keeping label cardinality bounded.
const unmatchedRoute = "unmatched"

var (
	requestLabels = []string{"method", "route", "status"}
	sizeBuckets   = prometheus.ExponentialBuckets(64, 4, 8)
)

// HTTPMetricsOptions configures the HTTP metrics middleware. Zero values select the
// default registerer, the "akira_http" prefix and the client library latency buckets.
type HTTPMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
	Buckets    []float64
}

// HTTPMetrics holds the request collectors shared by every route.
type HTTPMetrics struct {
	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	ResponseSize *prometheus.HistogramVec
	InFlight     prometheus.Gauge
}

// NewHTTPMetrics registers the collectors on opts.Registerer. A second call against the
// same registerer returns the collectors registered by the first.
func NewHTTPMetrics(opts HTTPMetricsOptions) (*HTTPMetrics, error) {
	if opts.Namespace == "" {
		opts.Namespace = "akira"
	}
	if opts.Subsystem == "" {
		opts.Subsystem = "http"
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if len(opts.Buckets) == 0 {
		opts.Buckets = prometheus.DefBuckets
	}

	var (
		m   HTTPMetrics
		err error
	)
	if m.Requests, err = registerOrReuse(opts.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "requests_total",
		Help:      "HTTP requests by method, route template and status code.",
	}, requestLabels)); err != nil {
		return nil, err
	}
	if m.Duration, err = registerOrReuse(opts.Registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, route template and status code.",
		Buckets:   opts.Buckets,
	}, requestLabels)); err != nil {
		return nil, err
	}
	if m.ResponseSize, err = registerOrReuse(opts.Registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "response_size_bytes",
		Help:      "HTTP response body size by method, route template and status code.",
		Buckets:   sizeBuckets,
	}, requestLabels)); err != nil {
		return nil, err
	}
	if m.InFlight, err = registerOrReuse(opts.Registerer, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      "in_flight_requests",
		Help:      "HTTP requests currently being served.",
	})); err != nil {
		return nil, err
	}
	return &m, nil
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var dup prometheus.AlreadyRegisteredError
	if !errors.As(err, &dup) {
		return collector, fmt.Errorf("register http collector: %w", err)
	}
	existing, ok := dup.ExistingCollector.(C)
	if !ok {
		return collector, fmt.Errorf("registered http collector has type %T", dup.ExistingCollector)
	}
	return existing, nil
}

// Handler records every request. A nil receiver yields a pass-through middleware.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		m.InFlight.Inc()
		start := time.Now()
		defer func() {
			m.InFlight.Dec()
			m.observe(c, time.Since(start))
		}()
		c.Next()
	}
}

func (m *HTTPMetrics) observe(c *gin.Context, elapsed time.Duration) {
	route := c.FullPath()
	if route == "" {
		route = unmatchedRoute
	}
	labels := prometheus.Labels{
		"method": c.Request.Method,
		"route":  route,
		"status": strconv.Itoa(c.Writer.Status()),
	}

	m.Requests.With(labels).Inc()
	m.Duration.With(labels).Observe(elapsed.Seconds())
	if size := c.Writer.Size(); size > 0 {
		m.ResponseSize.With(labels).Observe(float64(size))
	}
}
