package httpserver

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
)

// newCheckOrigin returns the upgrader's CheckOrigin. Requests without an Origin header
// (non-browser clients) are always allowed. An empty allowlist admits every origin; otherwise
// only listed origins pass, plus localhost when isDevelopment is set.
func newCheckOrigin(allowed []string, isDevelopment bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if origin == "" || len(allowed) == 0 {
			return true
		}

		if slices.Contains(allowed, origin) {
			return true
		}

		if isDevelopment && isLocalhostOrigin(origin) {
			return true
		}

		slog.WarnContext(r.Context(), "WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
