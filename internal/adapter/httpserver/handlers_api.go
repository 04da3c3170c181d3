package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/trafficpulse/internal/broadcast"
	"github.com/pscheid92/trafficpulse/internal/domain"
	apperrors "github.com/pscheid92/trafficpulse/internal/platform/errors"
)

const historyTimeout = 30 * time.Second

type statusResponse struct {
	Bootstrapped  bool    `json:"bootstrapped"`
	KnownRecords  int     `json:"knownRecords"`
	LastID        *int64  `json:"lastId,omitempty"`
	Cycles        uint64  `json:"cycles"`
	FailedCycles  uint64  `json:"failedCycles"`
	LastCycleAt   *string `json:"lastCycleAt,omitempty"`
	LastError     string  `json:"lastError,omitempty"`
	Sessions      int     `json:"sessions"`
	UpstreamState string  `json:"upstreamState,omitempty"`
}

// handleMessages returns every record the poller currently knows, in first-seen order.
func (s *Server) handleMessages(c echo.Context) error {
	records, err := s.poller.Snapshot()
	if errors.Is(err, domain.ErrNotBootstrapped) {
		return apperrors.UnavailableError("feed is still bootstrapping", err)
	}
	if err != nil {
		return apperrors.InternalError("failed to read known records", err)
	}

	if err := c.JSON(http.StatusOK, toWireRecords(records)); err != nil {
		return fmt.Errorf("failed to write messages response: %w", err)
	}
	return nil
}

// handleHistory walks the upstream pagination live and returns the full listing.
func (s *Server) handleHistory(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), historyTimeout)
	defer cancel()

	records, err := s.history.FetchAll(ctx)
	if err != nil {
		appErr := apperrors.ExternalError("failed to fetch upstream history", err)
		var fe *domain.FetchError
		if errors.As(err, &fe) {
			appErr = appErr.WithContext("page", fe.Page).WithContext("kind", fe.Kind.String())
		}
		return appErr
	}

	if err := c.JSON(http.StatusOK, toWireRecords(records)); err != nil {
		return fmt.Errorf("failed to write history response: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(c echo.Context) error {
	st := s.poller.Status()
	resp := statusResponse{
		Bootstrapped: st.Bootstrapped,
		KnownRecords: st.KnownRecords,
		Cycles:       st.Cycles,
		FailedCycles: st.FailedCycles,
		LastError:    st.LastError,
		Sessions:     s.sessions.SessionCount(),
	}
	if st.HasLastID {
		id := st.LastID
		resp.LastID = &id
	}
	if !st.LastCycleAt.IsZero() {
		at := st.LastCycleAt.UTC().Format(time.RFC3339)
		resp.LastCycleAt = &at
	}
	if s.upstreamState != nil {
		resp.UpstreamState = s.upstreamState()
	}

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write status response: %w", err)
	}
	return nil
}

func toWireRecords(records []domain.TrafficRecord) []broadcast.WireRecord {
	out := make([]broadcast.WireRecord, len(records))
	for i, r := range records {
		out[i] = broadcast.ToWire(r)
	}
	return out
}
