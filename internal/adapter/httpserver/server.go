// Package httpserver exposes the subscriber websocket endpoint and a small read API over echo.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/trafficpulse/internal/app"
	"github.com/pscheid92/trafficpulse/internal/broadcast"
	"github.com/pscheid92/trafficpulse/internal/domain"
	"github.com/pscheid92/trafficpulse/internal/platform/config"
)

type poller interface {
	Ready() bool
	Snapshot() ([]domain.TrafficRecord, error)
	Status() app.Status
}

type historySource interface {
	FetchAll(ctx context.Context) ([]domain.TrafficRecord, error)
}

type sessionServer interface {
	Serve(conn *websocket.Conn) error
	SessionCount() int
}

type admission interface {
	Acquire(ip string) (bool, broadcast.LimitReason)
	Release(ip string)
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Poller       poller
	History      historySource
	Sessions     sessionServer
	Admission    admission
	Clock        clockwork.Clock
	HealthChecks []HealthCheck
	// UpstreamState reports the upstream circuit breaker state, if known.
	UpstreamState func() string
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	poller        poller
	history       historySource
	sessions      sessionServer
	admission     admission
	upstreamState func() string

	upgrader     websocket.Upgrader
	clock        clockwork.Clock
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:          e,
		config:        cfg,
		poller:        deps.Poller,
		history:       deps.History,
		sessions:      deps.Sessions,
		admission:     deps.Admission,
		upstreamState: deps.UpstreamState,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newCheckOrigin(cfg.AllowedOriginList(), cfg.IsDevelopment()),
		},
		clock:        clock,
		healthChecks: append([]HealthCheck{bootstrapCheck(deps.Poller)}, deps.HealthChecks...),
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	addr := s.config.ListenAddress()
	slog.Info("Starting server", "address", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
