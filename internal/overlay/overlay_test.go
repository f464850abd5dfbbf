package overlay

import (
	"context"
	"testing"
	"time"

	"github.com/sorane/livetl/internal/hub"
	"github.com/sorane/livetl/pkg/types"
)

func event(seq uint64, text string) types.SubtitleEvent {
	return types.SubtitleEvent{
		Sequence:   seq,
		Original:   text,
		Translated: text,
		EmittedAt:  time.Now(),
	}
}

func TestSinkDeliversEvents(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s := NewSink(h)
	defer s.Close()

	h.Publish(context.Background(), event(1, "hello"))

	select {
	case ev := <-s.Events():
		if ev.Sequence != 1 {
			t.Fatalf("sequence = %d, want 1", ev.Sequence)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSinkKeepsOnlyNewestPendingEvent(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s := NewSink(h)
	defer s.Close()

	for seq := uint64(1); seq <= 5; seq++ {
		h.Publish(context.Background(), event(seq, "line"))
	}

	// The forwarder replaces the pending event, so after all publishes
	// settle the channel holds the newest line.
	deadline := time.Now().Add(2 * time.Second)
	var last types.SubtitleEvent
	for time.Now().Before(deadline) {
		if cur, ok := s.Current(); ok && cur.Sequence == 5 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	for {
		select {
		case ev := <-s.Events():
			last = ev
			continue
		case <-time.After(100 * time.Millisecond):
		}
		break
	}
	if last.Sequence != 5 {
		t.Fatalf("last delivered sequence = %d, want 5", last.Sequence)
	}
}

func TestCurrentTracksLatestLine(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s := NewSink(h)
	defer s.Close()

	if _, ok := s.Current(); ok {
		t.Fatal("expected no current line before first event")
	}

	h.Publish(context.Background(), event(3, "latest"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cur, ok := s.Current(); ok && cur.Sequence == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("current line never updated")
}

func TestCloseStopsDelivery(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s := NewSink(h)
	s.Close()

	if _, ok := <-s.Events(); ok {
		t.Fatal("expected events channel to be closed")
	}
}

func TestNewSinkOnClosedHub(t *testing.T) {
	h := hub.New()
	h.Close()
	if s := NewSink(h); s != nil {
		t.Fatal("expected nil sink on closed hub")
	}
}
