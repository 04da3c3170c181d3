package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/trafficpulse/internal/broadcast"
	"github.com/pscheid92/trafficpulse/internal/domain"
	"github.com/pscheid92/trafficpulse/internal/metrics"
	apperrors "github.com/pscheid92/trafficpulse/internal/platform/errors"
)

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	if ok, reason := s.admission.Acquire(ip); !ok {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		if reason == broadcast.LimitReasonRate {
			return apperrors.RateLimitedError("too many connection attempts").
				WithContext("remote_ip", ip)
		}
		return apperrors.UnavailableError("connection limit reached", nil).
			WithContext("remote_ip", ip).
			WithContext("reason", string(reason))
	}
	defer s.admission.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		slog.WarnContext(c.Request().Context(), "WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	err = s.sessions.Serve(conn)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTooManySessions), errors.Is(err, domain.ErrSessionExists), errors.Is(err, domain.ErrRegistryStopped):
		slog.InfoContext(c.Request().Context(), "WebSocket session rejected", "remote_ip", ip, "error", err)
	default:
		slog.WarnContext(c.Request().Context(), "WebSocket session failed", "remote_ip", ip, "error", fmt.Errorf("serve session: %w", err))
	}

	// The connection is hijacked; echo must not write a response.
	return nil
}
