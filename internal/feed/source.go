package feed

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/trafficpulse/internal/domain"
	"github.com/pscheid92/trafficpulse/internal/metrics"
	"github.com/pscheid92/trafficpulse/internal/platform/retry"
	"golang.org/x/sync/singleflight"
)

// RateLimited is implemented by transport errors that signal the upstream wants us to back off.
type RateLimited interface {
	RateLimited() bool
}

// Source fetches and decodes upstream pages.
//
// Concurrent fetches of the same page share one upstream call. Returned pages may be shared
// between callers and must be treated as read-only.
type Source struct {
	fetcher     domain.PageFetcher
	policy      retry.Policy
	clock       clockwork.Clock
	callTimeout time.Duration
	group       singleflight.Group
}

type Option func(*Source)

// WithCallTimeout bounds a shared upstream call, including its retries. A shared call does
// not inherit any single caller's cancellation, so this is its only deadline besides the
// transport's own.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Source) { s.callTimeout = d }
}

// NewSource creates a Source. A policy with MaxAttempts <= 1 fetches each page once.
func NewSource(fetcher domain.PageFetcher, policy retry.Policy, clock clockwork.Clock, opts ...Option) *Source {
	if policy.Clock == nil {
		policy.Clock = clock
	}
	s := &Source{fetcher: fetcher, policy: policy, clock: clock}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchPage fetches and decodes page n. Every failure unwraps to a *domain.FetchError.
//
// Cancelling ctx abandons the wait for this caller only; a call other callers have joined
// keeps running for them.
func (s *Source) FetchPage(ctx context.Context, n int) (*domain.Page, error) {
	ch := s.group.DoChan(strconv.Itoa(n), func() (any, error) {
		callCtx, cancel := s.callContext(ctx)
		defer cancel()
		return retry.Do(callCtx, s.policy, classify, func() (*domain.Page, error) {
			return s.fetchOnce(callCtx, n)
		})
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.UpstreamFetchesShared.Inc()
		}
		if res.Err != nil {
			return nil, asFetchError(res.Err, n)
		}
		return res.Val.(*domain.Page), nil
	case <-ctx.Done():
		return nil, &domain.FetchError{Kind: domain.FetchTransport, Page: n, Err: ctx.Err()}
	}
}

// callContext detaches the shared call from the caller that happened to start it, keeping
// its values (correlation id) but not its cancellation.
func (s *Source) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if s.callTimeout > 0 {
		return context.WithTimeout(detached, s.callTimeout)
	}
	return context.WithCancel(detached)
}

func asFetchError(err error, n int) error {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &domain.FetchError{Kind: domain.FetchTransport, Page: n, Err: err}
}

// FetchAll reads page 1 to learn the page count, then fetches pages 1..TotalPages in order
// and concatenates their records, stopping early at a page that reports itself as the last.
// The first failure aborts the walk and no partial result is returned.
func (s *Source) FetchAll(ctx context.Context) ([]domain.TrafficRecord, error) {
	first, err := s.FetchPage(ctx, 1)
	if err != nil {
		return nil, err
	}

	records := make([]domain.TrafficRecord, 0, first.Pagination.TotalHits)
	for n := 1; n <= first.Pagination.TotalPages; n++ {
		page, err := s.FetchPage(ctx, n)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
		if page.Pagination.IsLastPage() {
			break
		}
	}

	slog.DebugContext(ctx, "Fetched all pages", "pages", first.Pagination.TotalPages, "records", len(records))
	return records, nil
}

func (s *Source) fetchOnce(ctx context.Context, n int) (*domain.Page, error) {
	start := s.clock.Now()

	raw, err := s.fetcher.FetchPage(ctx, n)
	if err != nil {
		metrics.UpstreamFetchDuration.WithLabelValues("transport").Observe(s.since(start))
		return nil, &domain.FetchError{Kind: domain.FetchTransport, Page: n, Err: err}
	}

	page, err := Decode(raw)
	if err != nil {
		metrics.UpstreamFetchDuration.WithLabelValues("decode").Observe(s.since(start))
		return nil, &domain.FetchError{Kind: domain.FetchDecode, Page: n, Err: err}
	}

	metrics.UpstreamFetchDuration.WithLabelValues("success").Observe(s.since(start))
	return page, nil
}

func (s *Source) since(start time.Time) float64 {
	return s.clock.Since(start).Seconds()
}

// classify retries transport failures and gives up on payloads we cannot decode.
func classify(err error) retry.Action {
	if domain.IsDecode(err) {
		return retry.Stop
	}
	var rl RateLimited
	if errors.As(err, &rl) && rl.RateLimited() {
		return retry.After
	}
	return retry.Retry
}
