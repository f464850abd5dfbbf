package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestRMS_Silence(t *testing.T) {
	pcm := make([]byte, 320)
	if got := RMS(pcm); got != 0 {
		t.Errorf("RMS(silence) = %f, want 0", got)
	}
}

func TestRMS_Empty(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}
	if got := RMS([]byte{0x01}); got != 0 {
		t.Errorf("RMS(1 byte) = %f, want 0", got)
	}
}

func TestRMS_ConstantAmplitude(t *testing.T) {
	// A constant-amplitude signal has RMS equal to that amplitude.
	pcm := make([]byte, 200)
	for i := 0; i < 100; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(1000)))
	}
	got := RMS(pcm)
	if math.Abs(got-1000) > 0.01 {
		t.Errorf("RMS = %f, want 1000", got)
	}
}

func TestRMS_SineWave(t *testing.T) {
	// RMS of a sine wave is amplitude/sqrt(2).
	const amplitude = 10000.0
	const samples = 16000
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	got := RMS(pcm)
	want := amplitude / math.Sqrt2
	if math.Abs(got-want)/want > 0.01 {
		t.Errorf("RMS = %f, want ≈ %f", got, want)
	}
}

func TestDurationMs(t *testing.T) {
	tests := []struct {
		name       string
		bytes      int
		sampleRate int
		want       int
	}{
		{"20ms at 16kHz", 640, 16000, 20},
		{"1s at 16kHz", 32000, 16000, 1000},
		{"invalid rate", 640, 0, 0},
		{"empty", 0, 16000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DurationMs(make([]byte, tt.bytes), tt.sampleRate); got != tt.want {
				t.Errorf("DurationMs = %d, want %d", got, tt.want)
			}
		})
	}
}
