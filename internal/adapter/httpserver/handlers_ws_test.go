package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/trafficpulse/internal/broadcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsHarness struct {
	hub       *broadcast.Hub
	registry  *broadcast.Registry
	admission *broadcast.AdmissionControl
	url       string
}

func newWSHarness(t *testing.T, limits broadcast.LimitsConfig) *wsHarness {
	t.Helper()
	clock := clockwork.NewRealClock()
	enc, err := broadcast.NewEncoder(broadcast.FormatJSON)
	require.NoError(t, err)

	hub := broadcast.NewHub(8)
	registry := broadcast.NewRegistry(hub, enc, clock, 0)
	t.Cleanup(registry.Stop)
	admission := broadcast.NewAdmissionControl(limits, clock)

	srv := newTestServer(t, withSessions(registry), withAdmission(admission))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &wsHarness{
		hub:       hub,
		registry:  registry,
		admission: admission,
		url:       "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

func (h *wsHarness) dial(t *testing.T) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.url, nil)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func TestWebSocket_ForwardsPublishedRecords(t *testing.T) {
	h := newWSHarness(t, broadcast.LimitsConfig{})

	conn, _, err := h.dial(t)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.hub.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, h.hub.Publish(testRecord))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	got, err := broadcast.ParseJSON(data)
	require.NoError(t, err)
	assert.Equal(t, testRecord.ID, got.ID)
	assert.True(t, testRecord.CreatedAt.Equal(got.CreatedAt))
}

func TestWebSocket_ReleasesAdmissionOnDisconnect(t *testing.T) {
	h := newWSHarness(t, broadcast.LimitsConfig{MaxPerIP: 1})

	conn, _, err := h.dial(t)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.admission.Current() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return h.admission.Current() == 0 && h.hub.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	_, _, err = h.dial(t)
	require.NoError(t, err)
}

func TestWebSocket_PerIPLimit(t *testing.T) {
	h := newWSHarness(t, broadcast.LimitsConfig{MaxPerIP: 1})

	_, _, err := h.dial(t)
	require.NoError(t, err)

	_, resp, err := h.dial(t)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocket_GlobalLimit(t *testing.T) {
	h := newWSHarness(t, broadcast.LimitsConfig{MaxConnections: 1})

	_, _, err := h.dial(t)
	require.NoError(t, err)

	_, resp, err := h.dial(t)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocket_ConnectionRateLimit(t *testing.T) {
	h := newWSHarness(t, broadcast.LimitsConfig{ConnectionRate: 0.01, ConnectionBurst: 1})

	_, _, err := h.dial(t)
	require.NoError(t, err)

	_, resp, err := h.dial(t)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestWebSocket_PlainHTTPIsRejected(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, "/ws")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
