package audio

import (
	"log/slog"
	"sync"

	"github.com/sorane/livetl/pkg/types"
)

// RateAdapter converts frames to a target sample rate so capture devices
// running at 44.1/48 kHz can feed a 16 kHz recognition pipeline. It logs a
// warning on the first mismatching frame. Create one per stream; not for
// shared use across goroutines.
type RateAdapter struct {
	// TargetRate is the sample rate frames are converted to.
	TargetRate int

	warned sync.Once
}

// Adapt returns frame resampled to the target rate. Frames already at the
// target rate are returned unchanged without allocation.
func (a *RateAdapter) Adapt(frame types.AudioFrame) types.AudioFrame {
	if a.TargetRate <= 0 || frame.SampleRate <= 0 || frame.SampleRate == a.TargetRate {
		return frame
	}
	a.warned.Do(func() {
		slog.Warn("capture sample rate differs from pipeline, resampling",
			"capture_hz", frame.SampleRate,
			"pipeline_hz", a.TargetRate)
	})
	return types.AudioFrame{
		PCM:        ResampleMono16(frame.PCM, frame.SampleRate, a.TargetRate),
		SampleRate: a.TargetRate,
		Timestamp:  frame.Timestamp,
	}
}

// ResampleMono16 resamples 16-bit LE mono PCM from srcRate to dstRate using
// linear interpolation. If the rates match, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// StereoToMono folds interleaved 16-bit LE stereo PCM to mono by averaging
// the channel pair. Capture implementations use this to feed the mono
// pipeline from stereo loopback devices.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}
