// Package hub fans decoded reading batches out to subscribers. Each
// subscriber owns a bounded queue drained at its own pace; the publish path
// never blocks on any single subscriber, so one slow consumer cannot back
// up the pipeline or starve its siblings.
package hub

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/sufst/intermediate-server/codec"
)

// State is a subscriber's liveness state.
type State int32

const (
	Connected State = iota
	Slow
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Slow:
		return "slow"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// Delivery is one queued batch. Seq increases by one for every publish
// aimed at this subscriber, so a batch dropped from a full queue shows up
// as a gap the client can detect and report.
type Delivery struct {
	Seq   uint64
	Batch *codec.ReadingBatch
}

// Subscriber is a registered sink with a bounded delivery queue.
type Subscriber struct {
	id    uint64
	ch    chan Delivery
	state atomic.Int32

	// publisher-side bookkeeping, guarded by the hub lock
	seq        uint64
	fullStreak int
	closed     bool
}

// Deliveries is the subscriber's queue. It is closed when the subscriber is
// unsubscribed or forcibly disconnected by the hub.
func (s *Subscriber) Deliveries() <-chan Delivery {
	return s.ch
}

// State reports the subscriber's current liveness state.
func (s *Subscriber) State() State {
	return State(s.state.Load())
}

// Config bounds each subscriber's queue and patience.
type Config struct {
	// QueueSize is the per-subscriber queue bound.
	QueueSize int
	// SlowLimit is how many consecutive publishes may find the queue full
	// before the subscriber is forcibly disconnected.
	SlowLimit int
}

const (
	defaultQueueSize = 16
	defaultSlowLimit = 8
)

// Stats are cumulative hub counters.
type Stats struct {
	Published   uint64
	Dropped     uint64
	Disconnects uint64
}

// Hub maintains the subscriber set and distributes batches.
type Hub struct {
	cfg Config

	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	nextID uint64
	stats  Stats
}

// New returns a hub. Zero config fields take defaults.
func New(cfg Config) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SlowLimit <= 0 {
		cfg.SlowLimit = defaultSlowLimit
	}
	return &Hub{
		cfg:  cfg,
		subs: make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new sink with an empty queue in the Connected state.
func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscriber{
		id: h.nextID,
		ch: make(chan Delivery, h.cfg.QueueSize),
	}
	h.subs[sub] = struct{}{}
	log.WithField("subscriber", sub.id).Info("subscriber registered")
	return sub
}

// Unsubscribe removes sub and closes its queue. It is idempotent.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub, Disconnected)
}

// Publish queues batch for every current subscriber without blocking. A
// full queue loses its oldest batch (bounded staleness beats unbounded
// growth) and marks the subscriber Slow; a subscriber whose queue is full
// for SlowLimit consecutive publishes is disconnected and removed.
func (h *Hub) Publish(batch *codec.ReadingBatch) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.Published++

	var evicted []*Subscriber
	for sub := range h.subs {
		sub.seq++
		d := Delivery{Seq: sub.seq, Batch: batch}

		select {
		case sub.ch <- d:
			sub.fullStreak = 0
			sub.state.Store(int32(Connected))
			continue
		default:
		}

		// queue full: shed the oldest delivery to make room. Only the
		// publisher sends on ch, so after the pop the send cannot block.
		select {
		case <-sub.ch:
			h.stats.Dropped++
		default:
		}
		sub.ch <- d

		sub.fullStreak++
		sub.state.Store(int32(Slow))
		if sub.fullStreak >= h.cfg.SlowLimit {
			evicted = append(evicted, sub)
		}
	}

	for _, sub := range evicted {
		log.WithField("subscriber", sub.id).
			WithField("streak", sub.fullStreak).
			Warn("subscriber too slow, disconnecting")
		h.stats.Disconnects++
		h.remove(sub, Disconnected)
	}
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// remove must be called with the hub lock held.
func (h *Hub) remove(sub *Subscriber, final State) {
	if sub.closed {
		return
	}
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	sub.closed = true
	sub.state.Store(int32(final))
	close(sub.ch)
	log.WithField("subscriber", sub.id).Info("subscriber removed")
}
