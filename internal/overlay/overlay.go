// Package overlay feeds subtitle events to an in-process consumer, typically
// a local render loop drawing on top of the stream. It is a thin adapter
// over a hub subscription that additionally remembers the last line so a
// renderer can repaint without waiting for the next utterance.
package overlay

import (
	"sync"

	"github.com/sorane/livetl/internal/hub"
	"github.com/sorane/livetl/pkg/types"
)

// Sink consumes subtitle events for a local overlay renderer.
type Sink struct {
	sub *hub.Subscriber
	out chan types.SubtitleEvent

	mu      sync.Mutex
	current types.SubtitleEvent
	hasLine bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewSink subscribes to h and starts forwarding events. Returns nil if the
// hub has already been closed.
func NewSink(h *hub.Hub) *Sink {
	sub := h.Subscribe("overlay")
	if sub == nil {
		return nil
	}
	s := &Sink{
		sub:  sub,
		out:  make(chan types.SubtitleEvent, 1),
		done: make(chan struct{}),
	}
	go s.forward()
	return s
}

// forward tracks the latest line and pushes events to the renderer channel.
// The renderer only ever needs the newest line, so a pending older event is
// replaced rather than queued behind it.
func (s *Sink) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.sub.Events():
			if !ok {
				return
			}
			s.mu.Lock()
			s.current = ev
			s.hasLine = true
			s.mu.Unlock()

			select {
			case s.out <- ev:
			default:
				select {
				case <-s.out:
				default:
				}
				select {
				case s.out <- ev:
				default:
				}
			}
		}
	}
}

// Events returns the channel of subtitle events. Only the newest undelivered
// event is retained; a slow renderer sees the latest line, not a backlog.
func (s *Sink) Events() <-chan types.SubtitleEvent { return s.out }

// Current returns the most recent subtitle line, if any.
func (s *Sink) Current() (types.SubtitleEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.hasLine
}

// Close stops the sink and releases its hub subscription.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.sub.Close()
	})
}
