// Package mock provides an in-memory audio Source for tests and demos.
package mock

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/sorane/livetl/pkg/audio"
	"github.com/sorane/livetl/pkg/types"
)

// Compile-time assertion that Source implements audio.Source.
var _ audio.Source = (*Source)(nil)

// Source is a scripted audio source. Frames queued with Enqueue before
// Start are delivered in order on the Frames channel; delivery is paced at
// one frame per FramePeriod when it is non-zero, or as fast as the consumer
// drains otherwise.
type Source struct {
	// FramePeriod, when non-zero, paces frame delivery in real time.
	FramePeriod time.Duration

	mu      sync.Mutex
	queued  []types.AudioFrame
	frames  chan types.AudioFrame
	stopped chan struct{}
	once    sync.Once
}

// New creates an empty scripted Source.
func New() *Source {
	return &Source{
		frames:  make(chan types.AudioFrame, 64),
		stopped: make(chan struct{}),
	}
}

// Enqueue appends frames to the delivery script. Must be called before Start.
func (s *Source) Enqueue(frames ...types.AudioFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, frames...)
}

// Start begins delivering the scripted frames.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	script := s.queued
	s.mu.Unlock()

	go func() {
		defer close(s.frames)
		for _, f := range script {
			if s.FramePeriod > 0 {
				select {
				case <-time.After(s.FramePeriod):
				case <-ctx.Done():
					return
				case <-s.stopped:
					return
				}
			}
			select {
			case s.frames <- f:
			case <-ctx.Done():
				return
			case <-s.stopped:
				return
			}
		}
	}()
	return nil
}

// Frames implements audio.Source.
func (s *Source) Frames() <-chan types.AudioFrame { return s.frames }

// Stop implements audio.Source.
func (s *Source) Stop() error {
	s.once.Do(func() { close(s.stopped) })
	return nil
}

// SpeechFrame synthesises one frame of loud audio (a sine burst) of the
// given duration, suitable for driving a segmenter above its energy
// threshold in tests.
func SpeechFrame(sampleRate int, d time.Duration, ts time.Duration) types.AudioFrame {
	samples := int(d.Seconds() * float64(sampleRate))
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(12000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return types.AudioFrame{PCM: pcm, SampleRate: sampleRate, Timestamp: ts}
}

// SilenceFrame synthesises one frame of silence of the given duration.
func SilenceFrame(sampleRate int, d time.Duration, ts time.Duration) types.AudioFrame {
	samples := int(d.Seconds() * float64(sampleRate))
	return types.AudioFrame{PCM: make([]byte, samples*2), SampleRate: sampleRate, Timestamp: ts}
}
