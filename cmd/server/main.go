package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/trafficpulse/internal/adapter/httpserver"
	"github.com/pscheid92/trafficpulse/internal/adapter/upstream"
	"github.com/pscheid92/trafficpulse/internal/app"
	"github.com/pscheid92/trafficpulse/internal/broadcast"
	"github.com/pscheid92/trafficpulse/internal/dedup"
	"github.com/pscheid92/trafficpulse/internal/feed"
	"github.com/pscheid92/trafficpulse/internal/platform/config"
	"github.com/pscheid92/trafficpulse/internal/platform/logging"
	"github.com/pscheid92/trafficpulse/internal/platform/retry"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupSource(cfg *config.Config, clock clockwork.Clock) (*feed.Source, *upstream.Client) {
	client, err := upstream.NewClient(upstream.Config{
		BaseURL: cfg.UpstreamURL,
		Indent:  cfg.UpstreamIndent,
		Timeout: cfg.UpstreamTimeout,
	})
	if err != nil {
		slog.Error("Failed to create upstream client", "error", err)
		os.Exit(1)
	}

	policy := retry.Policy{
		MaxAttempts:      cfg.FetchMaxAttempts,
		InitialBackoff:   cfg.FetchBackoff,
		MaxBackoff:       8 * cfg.FetchBackoff,
		RateLimitBackoff: 4 * cfg.FetchBackoff,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Retrying upstream fetch", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	return feed.NewSource(client, policy, clock, feed.WithCallTimeout(fetchBudget(cfg, policy))), client
}

// fetchBudget is the longest a page fetch may take with every attempt timing out and every
// backoff at its cap.
func fetchBudget(cfg *config.Config, policy retry.Policy) time.Duration {
	attempts := time.Duration(max(policy.MaxAttempts, 1))
	return attempts*cfg.UpstreamTimeout + (attempts-1)*max(policy.MaxBackoff, policy.RateLimitBackoff)
}

func setupBroadcast(cfg *config.Config, clock clockwork.Clock) (*broadcast.Hub, *broadcast.Registry, *broadcast.AdmissionControl) {
	encoder, err := broadcast.NewEncoder(broadcast.WireFormat(cfg.WireFormat))
	if err != nil {
		slog.Error("Failed to create encoder", "error", err)
		os.Exit(1)
	}

	hub := broadcast.NewHub(cfg.SubscriberBuffer)
	registry := broadcast.NewRegistry(hub, encoder, clock, cfg.MaxWebSocketConnections)
	admission := broadcast.NewAdmissionControl(broadcast.LimitsConfig{
		MaxConnections:  int64(cfg.MaxWebSocketConnections),
		MaxPerIP:        cfg.MaxConnectionsPerIP,
		ConnectionRate:  cfg.ConnectionRate,
		ConnectionBurst: cfg.ConnectionBurst,
	}, clock)

	return hub, registry, admission
}

func runGracefulShutdown(ctx context.Context, srv *httpserver.Server, registry *broadcast.Registry, pollerDone <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		registry.Stop()

		select {
		case <-pollerDone:
		case <-shutdownCtx.Done():
			slog.Warn("Poller did not stop before shutdown timeout")
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "address", cfg.ListenAddress())
	cfg.LogConfiguration()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, client := setupSource(cfg, clock)
	store := dedup.NewStore()
	hub, registry, admission := setupBroadcast(cfg, clock)

	poller := app.NewPoller(source, store, hub, clock, cfg.PollInterval, app.BootstrapMode(cfg.BootstrapMode))
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Poller stopped", "error", err)
		}
	}()

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		Poller:        poller,
		History:       source,
		Sessions:      registry,
		Admission:     admission,
		Clock:         clock,
		UpstreamState: client.BreakerState,
	})

	done := runGracefulShutdown(ctx, srv, registry, pollerDone)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
