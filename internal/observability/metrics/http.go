package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics holds the per-request instruments.
type HTTPMetrics struct {
	inflight metric.Int64UpDownCounter
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	meter := provider.Meter(serviceName(cfg))

	inflight, err := meter.Int64UpDownCounter("referral_http_requests_in_flight")
	if err != nil {
		return nil, err
	}
	requests, err := meter.Int64Counter("referral_http_requests_total")
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("referral_http_request_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &HTTPMetrics{inflight: inflight, requests: requests, duration: duration}, nil
}

func (m *HTTPMetrics) begin(ctx context.Context) {
	if m != nil {
		m.inflight.Add(ctx, 1)
	}
}

func (m *HTTPMetrics) end(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inflight.Add(ctx, -1)
	attrs := metric.WithAttributes(FilterAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status_code", strconv.Itoa(status)),
	)...)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// GinMiddleware records one sample per request. Unmatched paths share a
// single route label so scanners cannot inflate cardinality.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		m.begin(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.end(ctx, c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
