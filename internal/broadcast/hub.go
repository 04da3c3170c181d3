package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/pscheid92/trafficpulse/internal/domain"
	"github.com/pscheid92/trafficpulse/internal/metrics"
)

// Hub delivers each published record to every subscription that exists when Publish is
// called. A full subscription queue drops the new record for that subscriber only.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	capacity int
}

var _ domain.RecordPublisher = (*Hub)(nil)

func NewHub(capacity int) *Hub {
	if capacity < 1 {
		capacity = 1
	}
	return &Hub{
		subs:     make(map[*Subscription]struct{}),
		capacity: capacity,
	}
}

// Subscription is one subscriber's bounded receive queue.
type Subscription struct {
	hub     *Hub
	ch      chan domain.TrafficRecord
	dropped atomic.Uint64
	once    sync.Once
}

// C yields records in publish order. It is closed once the subscription is closed.
func (s *Subscription) C() <-chan domain.TrafficRecord {
	return s.ch
}

// Dropped is the number of records this subscriber missed because its queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription from the hub and releases its queue. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{hub: h, ch: make(chan domain.TrafficRecord, h.capacity)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	metrics.BroadcastSubscribers.Set(float64(n))
	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	n := len(h.subs)
	// No publisher can hold s once it is out of the map and we hold the write lock.
	close(s.ch)
	h.mu.Unlock()

	metrics.BroadcastSubscribers.Set(float64(n))
}

// Publish never blocks. It returns how many subscribers accepted the record.
func (h *Hub) Publish(record domain.TrafficRecord) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.subs {
		select {
		case s.ch <- record:
			delivered++
		default:
			s.dropped.Add(1)
			metrics.BroadcastDroppedRecordsTotal.Inc()
		}
	}

	metrics.BroadcastPublishedTotal.Inc()
	metrics.BroadcastDeliveriesTotal.Add(float64(delivered))
	return delivered
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
