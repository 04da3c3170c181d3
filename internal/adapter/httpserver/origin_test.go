package httpserver

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCheckOrigin(t *testing.T) {
	allowed := []string{"https://traffic.example.com"}

	tests := []struct {
		name          string
		allowed       []string
		origin        string
		isDevelopment bool
		want          bool
	}{
		{"empty origin", allowed, "", false, true},
		{"listed origin", allowed, "https://traffic.example.com", false, true},
		{"no allowlist", nil, "https://anything.example.org", false, true},

		{"different host", allowed, "https://evil.com", false, false},
		{"different port", allowed, "https://traffic.example.com:9090", false, false},
		{"http instead of https", allowed, "http://traffic.example.com", false, false},
		{"subdomain", allowed, "https://sub.traffic.example.com", false, false},

		{"localhost dev", allowed, "http://localhost:8080", true, true},
		{"127.0.0.1 dev", allowed, "http://127.0.0.1:3000", true, true},
		{"localhost prod rejected", allowed, "http://localhost:8080", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := newCheckOrigin(tt.allowed, tt.isDevelopment)
			r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checker(r))
		})
	}
}
