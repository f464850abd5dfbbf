// Package types defines the shared types used across all livetl packages.
//
// These types form the lingua franca between the segmenter, the pipeline
// coordinator, the provider clients, and the broadcast hub. They are
// intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// AudioFrame represents a single fixed-size frame of audio flowing from the
// capture source into the segmenter. Frames are the atomic unit of audio
// transport; the segmenter either absorbs a frame into the current segment
// or drops it as silence.
type AudioFrame struct {
	// PCM is 16-bit signed little-endian mono audio data.
	PCM []byte

	// SampleRate in Hz (e.g., 16000 for STT-optimised mono).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	samples := len(f.PCM) / 2
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// SegmentState is the lifecycle state of a [Segment].
type SegmentState int

const (
	// SegmentAccumulating means the segmenter is still collecting frames.
	SegmentAccumulating SegmentState = iota

	// SegmentSealed means the utterance boundary has been detected and the
	// segment has been handed to the pipeline coordinator.
	SegmentSealed

	// SegmentDispatched means recognition/translation calls are in flight.
	SegmentDispatched

	// SegmentCompleted means a SubtitleEvent was produced for this segment.
	SegmentCompleted

	// SegmentFailed means the retry budget or staleness ceiling was exhausted.
	SegmentFailed

	// SegmentDiscarded means the segment was dropped before dispatch
	// (too short, or shutdown before dispatch).
	SegmentDiscarded
)

// String returns the human-readable name of the state.
func (s SegmentState) String() string {
	switch s {
	case SegmentAccumulating:
		return "accumulating"
	case SegmentSealed:
		return "sealed"
	case SegmentDispatched:
		return "dispatched"
	case SegmentCompleted:
		return "completed"
	case SegmentFailed:
		return "failed"
	case SegmentDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is one of the three terminal states.
func (s SegmentState) Terminal() bool {
	switch s {
	case SegmentCompleted, SegmentFailed, SegmentDiscarded:
		return true
	}
	return false
}

// Segment is one sealed utterance of contiguous audio awaiting (or
// undergoing) recognition and translation. The pipeline coordinator owns a
// Segment exclusively once it is sealed; no other goroutine may mutate it.
type Segment struct {
	// Sequence is the strictly increasing number assigned at sealing time.
	// It is the sole cross-component ordering key.
	Sequence uint64

	// PCM is the concatenated 16-bit LE mono audio of the utterance.
	PCM []byte

	// SampleRate in Hz of the PCM data.
	SampleRate int

	// Start and End are capture timestamps relative to stream start.
	Start time.Duration
	End   time.Duration

	// SealedAt is the wall-clock time the segmenter sealed the utterance.
	// The coordinator's staleness ceiling is measured from this instant.
	SealedAt time.Time
}

// AudioDuration returns the playback duration of the segment's audio.
func (s *Segment) AudioDuration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	samples := len(s.PCM) / 2
	return time.Duration(samples) * time.Second / time.Duration(s.SampleRate)
}

// RecognitionResult carries the recognised source-language text for one
// segment. It is ephemeral: the coordinator feeds it straight into the
// translation client.
type RecognitionResult struct {
	// Sequence is the segment sequence number this result belongs to.
	Sequence uint64

	// Text is the recognised source-language text.
	Text string

	// Confidence is the recogniser's overall confidence (0.0–1.0).
	// Zero when the backend does not report confidence.
	Confidence float64
}

// SubtitleEvent is the unit delivered to all subtitle consumers. It is
// immutable once created. Events reaching the broadcast hub are strictly
// ordered by Sequence; a failed segment produces no event, so gaps in the
// sequence space are permitted but reordering never is.
type SubtitleEvent struct {
	// Sequence is the originating segment's sequence number.
	Sequence uint64 `json:"sequence"`

	// Original is the recognised source-language text.
	Original string `json:"original"`

	// Translated is the target-language text. May equal Original when the
	// translator passed the line through unchanged.
	Translated string `json:"translated"`

	// EmittedAt is the wall-clock time the event left the reordering buffer.
	EmittedAt time.Time `json:"emitted_at"`
}
