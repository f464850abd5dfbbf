// Package hub fans subtitle events out from the pipeline to an arbitrary
// number of subscribers (websocket viewers, the local overlay, recorders).
//
// Each subscriber owns a bounded queue. Publish never blocks: when a
// subscriber's queue is full its oldest event is dropped to make room, so
// one stalled consumer can neither slow the pipeline nor other subscribers.
// A fast viewer loses nothing; a slow one sees the freshest lines, which for
// live subtitles is the right failure mode.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"

	"github.com/sorane/livetl/internal/observe"
	"github.com/sorane/livetl/pkg/types"
)

// defaultQueueDepth is the per-subscriber queue bound.
const defaultQueueDepth = 16

// Option configures a Hub.
type Option func(*Hub)

// WithQueueDepth sets the per-subscriber queue bound. Default: 16.
func WithQueueDepth(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueDepth = n
		}
	}
}

// WithMetrics attaches metric instruments. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// Hub is the subtitle broadcast point. Safe for concurrent use.
type Hub struct {
	queueDepth int
	metrics    *observe.Metrics

	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	latest *types.SubtitleEvent
	closed bool
}

// Subscriber is one bounded-queue consumer of the subtitle stream.
type Subscriber struct {
	name    string
	ch      chan types.SubtitleEvent
	dropped atomic.Uint64
	hub     *Hub
	once    sync.Once
}

// New creates a Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		queueDepth: defaultQueueDepth,
		subs:       make(map[*Subscriber]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// Subscribe registers a named subscriber. The name appears in drop metrics
// and logs. Returns nil if the hub is already closed.
func (h *Hub) Subscribe(name string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	s := &Subscriber{
		name: name,
		ch:   make(chan types.SubtitleEvent, h.queueDepth),
		hub:  h,
	}
	h.subs[s] = struct{}{}
	return s
}

// Latest returns the most recently published event, if any. New viewers use
// it as a join snapshot so they are not blank until the next line.
func (h *Hub) Latest() (types.SubtitleEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return types.SubtitleEvent{}, false
	}
	return *h.latest, true
}

// Publish delivers ev to every subscriber without blocking. Full queues
// drop their oldest event to make room.
func (h *Hub) Publish(ctx context.Context, ev types.SubtitleEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.latest = &ev
	h.metrics.EventsPublished.Add(ctx, 1)

	for s := range h.subs {
		select {
		case s.ch <- ev:
			continue
		default:
		}
		// Queue full: evict the oldest, then retry once. The consumer may
		// have drained concurrently, in which case nothing was lost.
		evicted := false
		select {
		case <-s.ch:
			evicted = true
		default:
		}
		select {
		case s.ch <- ev:
		default:
			evicted = true // no room even after evicting; ev itself is lost
		}
		if !evicted {
			continue
		}
		s.dropped.Add(1)
		h.metrics.EventsDropped.Add(ctx, 1,
			metric.WithAttributes(observe.Attr("subscriber", s.name)))
		slog.Debug("subtitle dropped for slow subscriber",
			"subscriber", s.name,
			"sequence", ev.Sequence,
			"total_dropped", s.dropped.Load())
	}
}

// Run publishes every event from the pipeline stream until it closes or ctx
// ends, then closes the hub.
func (h *Hub) Run(ctx context.Context, events <-chan types.SubtitleEvent) {
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Publish(ctx, ev)
		}
	}
}

// Close closes every subscriber channel and rejects further subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		close(s.ch)
	}
	h.subs = nil
}

// Events returns the subscriber's stream. The channel closes when the
// subscriber or the hub is closed.
func (s *Subscriber) Events() <-chan types.SubtitleEvent { return s.ch }

// Name returns the subscriber's registered name.
func (s *Subscriber) Name() string { return s.name }

// Dropped returns how many events were evicted from this subscriber's queue.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// Close unregisters the subscriber and closes its channel. Safe to call more
// than once.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if s.hub.closed {
			return
		}
		delete(s.hub.subs, s)
		close(s.ch)
	})
}
