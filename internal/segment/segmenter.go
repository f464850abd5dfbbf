// Package segment implements the voice activity segmenter: the pipeline
// stage that turns a continuous stream of PCM frames into discrete sealed
// utterances.
//
// The segmenter is a two-state machine (silence ↔ speech) driven by RMS
// energy. It is synchronous by design: Push returns immediately, making it
// safe to call from the real-time capture loop — a frame is never blocked
// on for longer than the energy computation itself.
package segment

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sorane/livetl/pkg/audio"
	"github.com/sorane/livetl/pkg/types"
)

// trimWindow is the window size used when stripping trailing silence from a
// sealed utterance. One extra window is kept so trailing syllables are not
// clipped.
const trimWindow = 50 * time.Millisecond

// Config holds the segmentation thresholds. All values must be positive;
// see Validate in internal/config for the cross-field constraints.
type Config struct {
	// SampleRate is the PCM sample rate in Hz of incoming frames.
	SampleRate int

	// EnergyThreshold is the RMS level (in 16-bit PCM units, 0–32767)
	// at or above which a frame counts as speech.
	EnergyThreshold float64

	// SpeechDebounce is how long energy must stay above the threshold
	// before the segmenter commits to the speech state. Guards against
	// transient noise spikes. Frames observed during the debounce window
	// are buffered so utterance onsets are not clipped.
	SpeechDebounce time.Duration

	// MinSpeechDuration is the minimum speech content an utterance must
	// carry to be emitted. Shorter utterances are discarded silently.
	MinSpeechDuration time.Duration

	// HangTime is how long energy must stay below the threshold before an
	// utterance is considered finished. Avoids clipping trailing syllables.
	HangTime time.Duration

	// MaxSegmentDuration force-seals an in-progress utterance, bounding
	// memory during continuous speech. Accumulation reopens immediately.
	MaxSegmentDuration time.Duration
}

// state is the segmenter's detection state.
type state int

const (
	stateSilence state = iota
	stateSpeech
)

// Segmenter consumes PCM frames and emits sealed utterances. It is owned by
// a single capture goroutine; only the tunable thresholds may be adjusted
// concurrently (see SetHangTime / SetMaxSegmentDuration).
type Segmenter struct {
	sampleRate      int
	energyThreshold float64
	debounce        time.Duration
	minSpeech       time.Duration

	// Tunables adjustable at runtime by the adaptive controller.
	mu         sync.Mutex
	hangTime   time.Duration
	maxSegment time.Duration

	st         state
	buf        []byte
	bufStart   time.Duration // capture timestamp of the first buffered frame
	bufEnd     time.Duration // capture timestamp just past the last buffered frame
	speechRun  time.Duration // consecutive above-threshold audio while debouncing
	silenceRun time.Duration // consecutive below-threshold audio in speech state
	speechDur  time.Duration // total above-threshold audio in the current buffer

	nextSeq   uint64
	discarded uint64
}

// New creates a Segmenter. The zero values of SpeechDebounce are replaced
// with one frame's worth of leniency (20 ms); all other fields must be set
// by the caller.
func New(cfg Config) *Segmenter {
	if cfg.SpeechDebounce <= 0 {
		cfg.SpeechDebounce = 20 * time.Millisecond
	}
	return &Segmenter{
		sampleRate:      cfg.SampleRate,
		energyThreshold: cfg.EnergyThreshold,
		debounce:        cfg.SpeechDebounce,
		minSpeech:       cfg.MinSpeechDuration,
		hangTime:        cfg.HangTime,
		maxSegment:      cfg.MaxSegmentDuration,
		nextSeq:         1,
	}
}

// Push feeds one captured frame into the state machine. It returns a sealed
// segment when the frame completed an utterance, or nil. Push never blocks.
func (s *Segmenter) Push(frame types.AudioFrame) *types.Segment {
	rms := audio.RMS(frame.PCM)
	loud := rms >= s.energyThreshold
	dur := frame.Duration()

	switch s.st {
	case stateSilence:
		if !loud {
			// True silence is dropped without buffering; this bounds
			// memory to at most one max-duration utterance.
			s.resetCandidate()
			return nil
		}
		// Candidate speech: buffer while debouncing.
		s.append(frame, dur)
		s.speechRun += dur
		s.speechDur += dur
		if s.speechRun >= s.debounce {
			s.st = stateSpeech
			s.silenceRun = 0
		}
		return s.sealIfOverMax()

	case stateSpeech:
		s.append(frame, dur)
		if loud {
			s.silenceRun = 0
			s.speechDur += dur
		} else {
			s.silenceRun += dur
			if s.silenceRun >= s.hangTimeNow() {
				return s.seal(true)
			}
		}
		return s.sealIfOverMax()
	}
	return nil
}

// Discarded returns how many utterances were dropped for being shorter than
// the minimum speech duration.
func (s *Segmenter) Discarded() uint64 { return s.discarded }

// SetHangTime adjusts the hang-time tunable. Safe to call concurrently with
// Push.
func (s *Segmenter) SetHangTime(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.hangTime = d
	s.mu.Unlock()
}

// SetMaxSegmentDuration adjusts the force-seal ceiling. Safe to call
// concurrently with Push.
func (s *Segmenter) SetMaxSegmentDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.maxSegment = d
	s.mu.Unlock()
}

// HangTime returns the current hang-time tunable.
func (s *Segmenter) HangTime() time.Duration { return s.hangTimeNow() }

// MaxSegmentDuration returns the current force-seal ceiling.
func (s *Segmenter) MaxSegmentDuration() time.Duration { return s.maxSegmentNow() }

func (s *Segmenter) hangTimeNow() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hangTime
}

func (s *Segmenter) maxSegmentNow() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSegment
}

// append adds a frame to the current buffer, tracking timestamps.
func (s *Segmenter) append(frame types.AudioFrame, dur time.Duration) {
	if len(s.buf) == 0 {
		s.bufStart = frame.Timestamp
	}
	s.buf = append(s.buf, frame.PCM...)
	s.bufEnd = frame.Timestamp + dur
}

// sealIfOverMax force-seals when the buffer has reached the maximum segment
// duration. Trailing-silence trimming is skipped — the utterance is still
// mid-speech.
func (s *Segmenter) sealIfOverMax() *types.Segment {
	if s.bufferedDuration() >= s.maxSegmentNow() {
		return s.seal(false)
	}
	return nil
}

// seal finalises the current buffer into a Segment, or discards it when it
// carries less speech than the minimum. The state machine returns to
// silence (trim=true) or reopens accumulation immediately (trim=false,
// the max-duration path).
func (s *Segmenter) seal(trim bool) *types.Segment {
	pcm := s.buf
	start, end := s.bufStart, s.bufEnd
	speech := s.speechDur

	reopen := !trim
	s.resetCandidate()
	if reopen {
		// Continuous speech: stay in the speech state so the very next
		// frame keeps accumulating.
		s.st = stateSpeech
	} else {
		s.st = stateSilence
	}

	if trim {
		pcm, end = s.trimTrailingSilence(pcm, start)
	}

	if speech < s.minSpeech || len(pcm) == 0 {
		s.discarded++
		slog.Debug("segment discarded as too short",
			"speech_duration", speech,
			"min_speech_duration", s.minSpeech)
		return nil
	}

	seg := &types.Segment{
		Sequence:   s.nextSeq,
		PCM:        pcm,
		SampleRate: s.sampleRate,
		Start:      start,
		End:        end,
		SealedAt:   time.Now(),
	}
	s.nextSeq++
	return seg
}

// resetCandidate clears all buffer and run state.
func (s *Segmenter) resetCandidate() {
	s.buf = nil
	s.speechRun = 0
	s.silenceRun = 0
	s.speechDur = 0
	s.st = stateSilence
}

// bufferedDuration returns the playback duration of the current buffer.
func (s *Segmenter) bufferedDuration() time.Duration {
	if s.sampleRate <= 0 {
		return 0
	}
	samples := len(s.buf) / 2
	return time.Duration(samples) * time.Second / time.Duration(s.sampleRate)
}

// trimTrailingSilence strips sub-threshold audio from the tail of a sealed
// buffer in fixed windows, keeping one extra window so trailing syllables
// survive. Returns the trimmed PCM and the adjusted end timestamp.
func (s *Segmenter) trimTrailingSilence(pcm []byte, start time.Duration) ([]byte, time.Duration) {
	windowBytes := int(trimWindow.Seconds()*float64(s.sampleRate)) * 2
	if windowBytes <= 0 || len(pcm) <= windowBytes {
		return pcm, start + pcmDuration(len(pcm), s.sampleRate)
	}

	end := len(pcm)
	for i := len(pcm) - windowBytes; i > 0; i -= windowBytes {
		if audio.RMS(pcm[i:min(i+windowBytes, len(pcm))]) >= s.energyThreshold {
			end = min(i+2*windowBytes, len(pcm))
			break
		}
		end = i
	}

	trimmed := pcm[:end]
	return trimmed, start + pcmDuration(len(trimmed), s.sampleRate)
}

// pcmDuration converts a 16-bit mono PCM byte count to a duration.
func pcmDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n/2) * time.Second / time.Duration(sampleRate)
}
