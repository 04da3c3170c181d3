package httpserver

import (
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pscheid92/trafficpulse/internal/platform/correlation"
	apperrors "github.com/pscheid92/trafficpulse/internal/platform/errors"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlation.Middleware())
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(requestMetricsMiddleware())
	s.echo.Use(apperrors.Middleware())

	s.echo.GET("/ws", s.handleWebSocket)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.registerHealthRoutes()
	s.registerAPIRoutes()
}

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api", newRateLimiter(s.config.APIRate, s.config.APIBurst))
	api.GET("/messages", s.handleMessages)
	api.GET("/messages/history", s.handleHistory)
	api.GET("/status", s.handleStatus)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/metrics" || strings.HasPrefix(p, "/health/")
		},
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
