package httpserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/trafficpulse/internal/app"
	"github.com/pscheid92/trafficpulse/internal/broadcast"
	"github.com/pscheid92/trafficpulse/internal/domain"
	"github.com/pscheid92/trafficpulse/internal/platform/config"
)

var testRecord = domain.TrafficRecord{
	ID:          4242,
	CreatedAt:   time.Date(2023, 4, 26, 4, 4, 5, 657_000_000, time.UTC),
	Location:    "E4 Norrtull",
	Description: "Stopped traffic",
	Title:       "Accident",
	Latitude:    59.3467,
	Longitude:   18.0401,
	Category:    domain.CategoryRoadTraffic,
	Subcategory: "Olycka",
}

type fakePoller struct {
	mu      sync.Mutex
	ready   bool
	records []domain.TrafficRecord
	status  app.Status
}

func (p *fakePoller) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *fakePoller) Snapshot() ([]domain.TrafficRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return nil, domain.ErrNotBootstrapped
	}
	return append([]domain.TrafficRecord(nil), p.records...), nil
}

func (p *fakePoller) Status() app.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

type fakeHistory struct {
	records []domain.TrafficRecord
	err     error
}

func (h *fakeHistory) FetchAll(context.Context) ([]domain.TrafficRecord, error) {
	return h.records, h.err
}

type fakeSessions struct {
	count int
}

func (s *fakeSessions) Serve(conn *websocket.Conn) error { return conn.Close() }

func (s *fakeSessions) SessionCount() int { return s.count }

type serverOption func(*Deps)

func withPoller(p *fakePoller) serverOption {
	return func(d *Deps) { d.Poller = p }
}

func withHistory(h *fakeHistory) serverOption {
	return func(d *Deps) { d.History = h }
}

func withSessions(s sessionServer) serverOption {
	return func(d *Deps) { d.Sessions = s }
}

func withAdmission(a admission) serverOption {
	return func(d *Deps) { d.Admission = a }
}

func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(d *Deps) { d.HealthChecks = checks }
}

func withUpstreamState(state string) serverOption {
	return func(d *Deps) { d.UpstreamState = func() string { return state } }
}

func testConfig() *config.Config {
	return &config.Config{
		BindAddress: "127.0.0.1",
		Port:        "0",
		APIRate:     1000,
		APIBurst:    1000,
	}
}

func newTestServer(t *testing.T, opts ...serverOption) *Server {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	deps := Deps{
		Poller:    &fakePoller{ready: true},
		History:   &fakeHistory{},
		Sessions:  &fakeSessions{},
		Admission: broadcast.NewAdmissionControl(broadcast.LimitsConfig{}, clock),
		Clock:     clock,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return NewServer(testConfig(), deps)
}
