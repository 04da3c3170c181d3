package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/trafficpulse/internal/domain"
	"github.com/pscheid92/trafficpulse/internal/metrics"
	"github.com/pscheid92/trafficpulse/internal/platform/correlation"
)

// BootstrapMode selects how the initial baseline is loaded.
type BootstrapMode string

const (
	BootstrapFirstPage BootstrapMode = "first_page"
	BootstrapAll       BootstrapMode = "all"
)

func (m BootstrapMode) Valid() bool {
	return m == BootstrapFirstPage || m == BootstrapAll
}

// PageSource is the subset of feed.Source the poller needs.
type PageSource interface {
	FetchPage(ctx context.Context, n int) (*domain.Page, error)
	FetchAll(ctx context.Context) ([]domain.TrafficRecord, error)
}

// RecordStore is the subset of dedup.Store the poller needs.
type RecordStore interface {
	Merge(candidates []domain.TrafficRecord) []domain.TrafficRecord
	Len() int
	LastID() (int64, bool)
	Records() []domain.TrafficRecord
}

// Status is a point-in-time view of the poller for diagnostics.
type Status struct {
	Bootstrapped bool
	KnownRecords int
	LastID       int64
	HasLastID    bool
	Cycles       uint64
	FailedCycles uint64
	LastCycleAt  time.Time
	LastError    string
}

// Poller seeds a baseline from the upstream and then, every interval, fetches page 1 and
// publishes the records it has not seen before.
//
// Only Run mutates the store. Ready, Snapshot and Status may be called from other goroutines.
type Poller struct {
	source    PageSource
	store     RecordStore
	publisher domain.RecordPublisher
	clock     clockwork.Clock
	interval  time.Duration
	mode      BootstrapMode

	ready  atomic.Bool
	cycles atomic.Uint64
	failed atomic.Uint64

	mu          sync.Mutex
	lastCycleAt time.Time
	lastError   string
}

func NewPoller(source PageSource, store RecordStore, publisher domain.RecordPublisher, clock clockwork.Clock, interval time.Duration, mode BootstrapMode) *Poller {
	if mode == "" {
		mode = BootstrapFirstPage
	}
	return &Poller{
		source:    source,
		store:     store,
		publisher: publisher,
		clock:     clock,
		interval:  interval,
		mode:      mode,
	}
}

// Run bootstraps and then polls until ctx is cancelled. Cancellation is observed between
// cycles; an in-flight fetch is allowed to finish. Run only returns ctx's error.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.bootstrap(ctx); err != nil {
		return err
	}

	for {
		if err := p.wait(ctx); err != nil {
			slog.InfoContext(ctx, "Poll loop stopped", "cycles", p.cycles.Load())
			return err
		}
		p.cycle(ctx)
	}
}

// Ready reports whether the baseline has been loaded.
func (p *Poller) Ready() bool {
	return p.ready.Load()
}

// Snapshot returns every known record in acceptance order.
func (p *Poller) Snapshot() ([]domain.TrafficRecord, error) {
	if !p.Ready() {
		return nil, domain.ErrNotBootstrapped
	}
	return p.store.Records(), nil
}

func (p *Poller) Status() Status {
	lastID, hasLast := p.store.LastID()

	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Bootstrapped: p.Ready(),
		KnownRecords: p.store.Len(),
		LastID:       lastID,
		HasLastID:    hasLast,
		Cycles:       p.cycles.Load(),
		FailedCycles: p.failed.Load(),
		LastCycleAt:  p.lastCycleAt,
		LastError:    p.lastError,
	}
}

func (p *Poller) bootstrap(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		bootCtx := correlation.WithID(ctx, correlation.NewID())

		records, err := p.loadBaseline(context.WithoutCancel(bootCtx))
		if err == nil {
			p.store.Merge(records)
			p.ready.Store(true)
			metrics.PollBootstrapAttemptsTotal.WithLabelValues("success").Inc()
			metrics.PollKnownRecords.Set(float64(p.store.Len()))
			slog.InfoContext(bootCtx, "Bootstrap complete", "mode", string(p.mode), "known", p.store.Len(), "attempt", attempt)
			return nil
		}

		metrics.PollBootstrapAttemptsTotal.WithLabelValues("failure").Inc()
		p.recordError(err)
		slog.ErrorContext(bootCtx, "Bootstrap failed, retrying", "mode", string(p.mode), "attempt", attempt, "error", err)

		if err := p.wait(ctx); err != nil {
			return err
		}
	}
}

func (p *Poller) loadBaseline(ctx context.Context) ([]domain.TrafficRecord, error) {
	if p.mode == BootstrapAll {
		return p.source.FetchAll(ctx)
	}
	page, err := p.source.FetchPage(ctx, 1)
	if err != nil {
		return nil, err
	}
	return page.Records, nil
}

func (p *Poller) cycle(ctx context.Context) {
	cycleCtx := correlation.WithID(ctx, correlation.NewID())
	start := p.clock.Now()
	p.cycles.Add(1)

	page, err := p.source.FetchPage(context.WithoutCancel(cycleCtx), 1)
	if err != nil {
		outcome := "transport_error"
		if domain.IsDecode(err) {
			outcome = "decode_error"
		}
		p.failed.Add(1)
		p.recordError(err)
		metrics.PollCyclesTotal.WithLabelValues(outcome).Inc()
		slog.WarnContext(cycleCtx, "Poll cycle skipped", "outcome", outcome, "error", err)
		return
	}

	novel := p.store.Merge(page.Records)
	for _, rec := range novel {
		delivered := p.publisher.Publish(rec)
		slog.DebugContext(cycleCtx, "Published record", "record_id", rec.ID, "delivered", delivered)
	}

	p.recordError(nil)
	metrics.PollCyclesTotal.WithLabelValues("success").Inc()
	metrics.PollNovelRecordsTotal.Add(float64(len(novel)))
	metrics.PollKnownRecords.Set(float64(p.store.Len()))
	slog.InfoContext(cycleCtx, "Poll cycle complete",
		"fetched", len(page.Records),
		"novel", len(novel),
		"duration", p.clock.Since(start).String(),
	)
}

func (p *Poller) wait(ctx context.Context) error {
	timer := p.clock.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func (p *Poller) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCycleAt = p.clock.Now()
	if err != nil {
		p.lastError = fmt.Sprint(err)
	} else {
		p.lastError = ""
	}
}
