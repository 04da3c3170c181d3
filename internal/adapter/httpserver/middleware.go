package httpserver

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/trafficpulse/internal/metrics"
)

// requestMetricsMiddleware records request latency by route. It skips /metrics and /health/*.
func requestMetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if path == "/metrics" || strings.HasPrefix(path, "/health/") {
				return next(c)
			}
			if path == "" {
				path = "unmatched"
			}

			var err error
			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
				status := responseStatus(c, err)
				metrics.HTTPRequestDuration.WithLabelValues(path, c.Request().Method, strconv.Itoa(status)).Observe(v)
			}))

			err = next(c)
			timer.ObserveDuration()
			return err
		}
	}
}

// responseStatus prefers the code of an unhandled echo.HTTPError, which is only written after middleware returns.
func responseStatus(c echo.Context, err error) int {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return c.Response().Status
}
