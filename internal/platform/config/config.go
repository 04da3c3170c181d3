package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	BindAddress string `env:"BIND_ADDRESS" default:"0.0.0.0"`
	Port        string `env:"PORT" default:"8080"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	UpstreamURL      string        `env:"UPSTREAM_URL" default:"http://api.sr.se/api/v2/traffic/messages"`
	UpstreamIndent   bool          `env:"UPSTREAM_INDENT" default:"false"`
	UpstreamTimeout  time.Duration `env:"UPSTREAM_TIMEOUT" default:"10s"`
	FetchMaxAttempts int           `env:"FETCH_MAX_ATTEMPTS" default:"1"`
	FetchBackoff     time.Duration `env:"FETCH_BACKOFF" default:"500ms"`

	PollInterval     time.Duration `env:"POLL_INTERVAL" default:"10s"`
	BootstrapMode    string        `env:"BOOTSTRAP_MODE" default:"first_page"`
	SubscriberBuffer int           `env:"SUBSCRIBER_BUFFER" default:"32"`
	WireFormat       string        `env:"WIRE_FORMAT" default:"json"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"50"`
	ConnectionRate          float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"20"`
	APIRate                 float64 `env:"API_RATE" default:"5"`
	APIBurst                int     `env:"API_BURST" default:"10"`

	// Comma-separated browser origins allowed to open /ws. Empty allows any origin.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ListenAddress is the host:port the HTTP server listens on.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.BindAddress, c.Port)
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// AllowedOriginList splits AllowedOrigins, dropping blanks.
func (c *Config) AllowedOriginList() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimSuffix(o, "/"))
		}
	}
	return origins
}

// LogConfiguration logs the effective settings operators usually ask about.
func (c *Config) LogConfiguration() {
	slog.Info("Configuration loaded",
		"env", c.AppEnv,
		"listen_address", c.ListenAddress(),
		"upstream_url", c.UpstreamURL,
		"poll_interval", c.PollInterval.String(),
		"bootstrap_mode", c.BootstrapMode,
		"subscriber_buffer", c.SubscriberBuffer,
		"wire_format", c.WireFormat,
	)
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("PORT is required")
	}

	u, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("UPSTREAM_URL is invalid: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("UPSTREAM_URL must be an absolute http(s) URL, got %q", cfg.UpstreamURL)
	}

	if cfg.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if cfg.UpstreamTimeout <= 0 {
		return errors.New("UPSTREAM_TIMEOUT must be positive")
	}
	if cfg.SubscriberBuffer < 1 {
		return errors.New("SUBSCRIBER_BUFFER must be at least 1")
	}
	if cfg.FetchMaxAttempts < 1 {
		return errors.New("FETCH_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.FetchMaxAttempts > 1 && cfg.FetchBackoff <= 0 {
		return errors.New("FETCH_BACKOFF must be positive when retries are enabled")
	}

	switch cfg.BootstrapMode {
	case "first_page", "all":
	default:
		return fmt.Errorf("BOOTSTRAP_MODE must be first_page or all, got %q", cfg.BootstrapMode)
	}
	switch cfg.WireFormat {
	case "json", "text":
	default:
		return fmt.Errorf("WIRE_FORMAT must be json or text, got %q", cfg.WireFormat)
	}

	if cfg.MaxWebSocketConnections < 0 || cfg.MaxConnectionsPerIP < 0 {
		return errors.New("connection limits must not be negative")
	}
	if cfg.ConnectionRate <= 0 || cfg.ConnectionBurst < 1 {
		return errors.New("CONNECTION_RATE and CONNECTION_BURST must be positive")
	}
	if cfg.APIRate <= 0 || cfg.APIBurst < 1 {
		return errors.New("API_RATE and API_BURST must be positive")
	}

	for _, o := range cfg.AllowedOriginList() {
		if u, err := url.Parse(o); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ALLOWED_ORIGINS entry %q is not an origin", o)
		}
	}

	return nil
}
