package pipeline

import (
	"sync"
	"testing"
	"time"
)

// fakeTunable records threshold adjustments.
type fakeTunable struct {
	mu   sync.Mutex
	hang time.Duration
	max  time.Duration
}

func (f *fakeTunable) HangTime() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hang
}

func (f *fakeTunable) SetHangTime(d time.Duration) {
	f.mu.Lock()
	f.hang = d
	f.mu.Unlock()
}

func (f *fakeTunable) MaxSegmentDuration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.max
}

func (f *fakeTunable) SetMaxSegmentDuration(d time.Duration) {
	f.mu.Lock()
	f.max = d
	f.mu.Unlock()
}

func TestTunerBacksOffUnderLoad(t *testing.T) {
	target := &fakeTunable{hang: 600 * time.Millisecond, max: 15 * time.Second}
	tuner := NewTuner(target, TunerConfig{HighLatency: 8 * time.Second})

	tuner.Observe(12 * time.Second)
	tuner.Observe(10 * time.Second)
	tuner.adjust()

	if got := target.HangTime(); got != 700*time.Millisecond {
		t.Errorf("hang-time = %v, want 700ms", got)
	}
	if got := target.MaxSegmentDuration(); got != 13*time.Second {
		t.Errorf("max segment = %v, want 13s", got)
	}
}

func TestTunerClampsAdjustments(t *testing.T) {
	target := &fakeTunable{hang: 600 * time.Millisecond, max: 15 * time.Second}
	tuner := NewTuner(target, TunerConfig{
		HighLatency:   time.Second,
		MaxHangTime:   800 * time.Millisecond,
		MinMaxSegment: 12 * time.Second,
	})

	for range 10 {
		tuner.Observe(30 * time.Second)
		tuner.adjust()
	}

	if got := target.HangTime(); got != 800*time.Millisecond {
		t.Errorf("hang-time = %v, want clamped to 800ms", got)
	}
	if got := target.MaxSegmentDuration(); got != 12*time.Second {
		t.Errorf("max segment = %v, want clamped to 12s", got)
	}
}

func TestTunerRelaxesTowardBaseline(t *testing.T) {
	target := &fakeTunable{hang: 600 * time.Millisecond, max: 15 * time.Second}
	tuner := NewTuner(target, TunerConfig{
		HighLatency: 8 * time.Second,
		LowLatency:  2 * time.Second,
	})

	// Back off once, then recover.
	tuner.Observe(20 * time.Second)
	tuner.adjust()
	if got := target.HangTime(); got == 600*time.Millisecond {
		t.Fatal("tuner did not back off")
	}

	tuner.Observe(500 * time.Millisecond)
	tuner.adjust()
	if got := target.HangTime(); got != 600*time.Millisecond {
		t.Errorf("hang-time = %v, want baseline 600ms", got)
	}
	if got := target.MaxSegmentDuration(); got != 15*time.Second {
		t.Errorf("max segment = %v, want baseline 15s", got)
	}
}

func TestTunerIdleWithoutSamples(t *testing.T) {
	target := &fakeTunable{hang: 600 * time.Millisecond, max: 15 * time.Second}
	tuner := NewTuner(target, TunerConfig{})

	tuner.adjust()

	if got := target.HangTime(); got != 600*time.Millisecond {
		t.Errorf("hang-time changed with no samples: %v", got)
	}
}
