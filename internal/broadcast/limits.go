package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = 5 * time.Minute
)

// LimitReason describes why a connection was refused admission.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

type LimitsConfig struct {
	MaxConnections  int64
	MaxPerIP        int
	ConnectionRate  float64
	ConnectionBurst int
}

// AdmissionControl gates websocket upgrades: a per-IP token bucket on new connections, a
// global cap and a per-IP cap on live ones.
type AdmissionControl struct {
	clock clockwork.Clock

	current atomic.Int64
	max     int64

	mu       sync.Mutex
	perIP    map[string]int
	maxPerIP int

	rateMu    sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	nextSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAdmissionControl builds the gate. Zero values in cfg disable the matching limit.
func NewAdmissionControl(cfg LimitsConfig, clock clockwork.Clock) *AdmissionControl {
	limit := rate.Limit(cfg.ConnectionRate)
	if cfg.ConnectionRate <= 0 {
		limit = rate.Inf
	}
	return &AdmissionControl{
		clock:     clock,
		max:       cfg.MaxConnections,
		perIP:     make(map[string]int),
		maxPerIP:  cfg.MaxPerIP,
		buckets:   make(map[string]*bucket),
		limit:     limit,
		burst:     cfg.ConnectionBurst,
		nextSweep: clock.Now().Add(limiterSweepInterval),
	}
}

// Acquire admits one connection from ip. Every successful Acquire must be paired with a
// Release for the same ip.
func (a *AdmissionControl) Acquire(ip string) (bool, LimitReason) {
	if !a.allowRate(ip) {
		return false, LimitReasonRate
	}
	if !a.acquireGlobal() {
		return false, LimitReasonGlobal
	}
	if !a.acquireIP(ip) {
		a.current.Add(-1)
		return false, LimitReasonPerIP
	}
	return true, ""
}

func (a *AdmissionControl) Release(ip string) {
	a.mu.Lock()
	if n := a.perIP[ip]; n > 1 {
		a.perIP[ip] = n - 1
	} else {
		delete(a.perIP, ip)
	}
	a.mu.Unlock()
	a.current.Add(-1)
}

// Current is the number of admitted, unreleased connections.
func (a *AdmissionControl) Current() int64 {
	return a.current.Load()
}

func (a *AdmissionControl) CountForIP(ip string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.perIP[ip]
}

func (a *AdmissionControl) acquireGlobal() bool {
	for {
		n := a.current.Load()
		if a.max > 0 && n >= a.max {
			return false
		}
		if a.current.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (a *AdmissionControl) acquireIP(ip string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.maxPerIP > 0 && a.perIP[ip] >= a.maxPerIP {
		return false
	}
	a.perIP[ip]++
	return true
}

func (a *AdmissionControl) allowRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := a.clock.Now()
	if now.After(a.nextSweep) {
		for key, b := range a.buckets {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(a.buckets, key)
			}
		}
		a.nextSweep = now.Add(limiterSweepInterval)
	}

	b, ok := a.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(a.limit, a.burst)}
		a.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (a *AdmissionControl) trackedBuckets() int {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()
	return len(a.buckets)
}
