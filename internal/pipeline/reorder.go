package pipeline

import (
	"github.com/sorane/livetl/pkg/types"
)

// reorderBuffer restores broadcast order over segments that complete out of
// order. Sealed segments carry consecutive sequence numbers; results are
// held until every earlier sequence has either completed or been abandoned,
// then released as a batch in sequence order.
//
// Not safe for concurrent use; the coordinator serialises access under its
// emit lock.
type reorderBuffer struct {
	next    uint64                         // lowest sequence not yet released
	pending map[uint64]*types.SubtitleEvent // nil marks an abandoned sequence
}

func newReorderBuffer(first uint64) *reorderBuffer {
	return &reorderBuffer{
		next:    first,
		pending: make(map[uint64]*types.SubtitleEvent),
	}
}

// complete records a finished segment and returns every event now releasable
// in sequence order.
func (b *reorderBuffer) complete(seq uint64, ev types.SubtitleEvent) []types.SubtitleEvent {
	b.pending[seq] = &ev
	return b.release()
}

// skip records that a sequence will never produce an event (failed, stale,
// or recognised as empty) and returns any successors this unblocks.
func (b *reorderBuffer) skip(seq uint64) []types.SubtitleEvent {
	b.pending[seq] = nil
	return b.release()
}

// release pops the contiguous run of resolved sequences starting at next.
func (b *reorderBuffer) release() []types.SubtitleEvent {
	var out []types.SubtitleEvent
	for {
		ev, ok := b.pending[b.next]
		if !ok {
			return out
		}
		delete(b.pending, b.next)
		b.next++
		if ev != nil {
			out = append(out, *ev)
		}
	}
}

// waiting reports how many resolved-but-unreleased sequences are held.
func (b *reorderBuffer) waiting() int { return len(b.pending) }
