package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// unmatchedRoute labels requests that hit no registered route, so path scanners cannot
// grow the label set.
const unmatchedRoute = "unmatched"

// healthRoutes are polled by orchestrators and are not recorded.
var healthRoutes = map[string]bool{
	"/health": true,
	"/ready":  true,
}

type httpInstruments struct {
	requests  metric.Int64Counter
	durations metric.Float64Histogram
	inFlight  metric.Int64UpDownCounter
}

func newHTTPInstruments(provider *Provider) (*httpInstruments, error) {
	meter := provider.Meter()
	prefix := provider.Namespace() + "_"

	requests, reqErr := meter.Int64Counter(
		prefix+"http_requests_total",
		metric.WithDescription("HTTP requests by method, route and status code"),
		metric.WithUnit("{request}"),
	)
	durations, durErr := meter.Float64Histogram(
		prefix+"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	inFlight, flightErr := meter.Int64UpDownCounter(
		prefix+"http_requests_in_flight",
		metric.WithDescription("HTTP requests currently being served by route"),
		metric.WithUnit("{request}"),
	)
	if err := errors.Join(reqErr, durErr, flightErr); err != nil {
		return nil, err
	}
	return &httpInstruments{requests: requests, durations: durations, inFlight: inFlight}, nil
}

// HTTPMetricsMiddleware records request count, latency and in-flight requests per route
// pattern. If the instruments cannot be created the middleware only calls c.Next.
func HTTPMetricsMiddleware(provider *Provider) gin.HandlerFunc {
	instruments, err := newHTTPInstruments(provider)
	if err != nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		route := routeLabel(c.FullPath())
		if healthRoutes[route] {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		routeAttr := metric.WithAttributes(attribute.String("route", route))

		instruments.inFlight.Add(ctx, 1, routeAttr)
		start := time.Now()

		c.Next()

		instruments.inFlight.Add(ctx, -1, routeAttr)

		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)
		instruments.requests.Add(ctx, 1, attrs)
		instruments.durations.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

func routeLabel(fullPath string) string {
	if fullPath == "" {
		return unmatchedRoute
	}
	return fullPath
}
