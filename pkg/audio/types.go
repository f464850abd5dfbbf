// Package audio defines the capture-side audio abstractions for livetl.
//
// The actual OS loopback capture (WASAPI, PulseAudio monitor, …) lives
// outside this repository; it is represented here by the [Source] interface.
// The package also provides the PCM helpers shared by the segmenter and the
// recognition client: RMS energy measurement and WAV container encoding.
package audio

import (
	"context"

	"github.com/sorane/livetl/pkg/types"
)

// Source delivers fixed-size PCM frames at a fixed sample rate from a
// capture device. It is the external collaborator feeding the pipeline.
//
// Implementations must never block frame production on downstream
// consumers: a frame that cannot be delivered is a permanent data loss for
// live audio, so Frames() must be drained promptly by exactly one reader.
type Source interface {
	// Start begins capture. Frames are delivered on the channel returned by
	// Frames until Stop is called or ctx is cancelled.
	Start(ctx context.Context) error

	// Frames returns the channel on which captured frames are delivered.
	// The channel is closed when capture ends.
	Frames() <-chan types.AudioFrame

	// Stop ends capture and releases device resources. Calling Stop more
	// than once is safe.
	Stop() error
}
