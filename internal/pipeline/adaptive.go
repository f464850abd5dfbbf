package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Tunable is the segmenter surface the adaptive tuner adjusts.
type Tunable interface {
	HangTime() time.Duration
	SetHangTime(time.Duration)
	MaxSegmentDuration() time.Duration
	SetMaxSegmentDuration(time.Duration)
}

// TunerConfig bounds the adaptive adjustments.
type TunerConfig struct {
	// Interval is how often observed latency is evaluated. Default: 30s.
	Interval time.Duration

	// HighLatency is the average end-to-end latency above which the tuner
	// backs the segmenter off. Default: 8s.
	HighLatency time.Duration

	// LowLatency is the average latency below which the tuner relaxes back
	// toward the configured baselines. Default: 2s.
	LowLatency time.Duration

	// MaxHangTime caps how far the hang-time may be raised. Default: 2x the
	// baseline hang-time.
	MaxHangTime time.Duration

	// MinMaxSegment floors how far the segment ceiling may be lowered.
	// Default: half the baseline ceiling.
	MinMaxSegment time.Duration
}

// Tuner adjusts segmenter thresholds from observed subtitle latency. Under
// sustained load it raises the hang-time (fewer, longer utterances mean
// fewer provider round-trips) and lowers the segment ceiling (bounding the
// worst-case cost of a single recognition call); when latency recovers it
// steps both back toward their configured baselines.
type Tuner struct {
	target Tunable
	cfg    TunerConfig

	baseHang time.Duration
	baseMax  time.Duration

	mu      sync.Mutex
	total   time.Duration
	samples int
}

// hangStep and maxStep are the per-interval adjustment increments.
const (
	hangStep = 100 * time.Millisecond
	maxStep  = 2 * time.Second
)

// NewTuner creates a Tuner around the target's current settings as the
// baseline.
func NewTuner(target Tunable, cfg TunerConfig) *Tuner {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.HighLatency <= 0 {
		cfg.HighLatency = 8 * time.Second
	}
	if cfg.LowLatency <= 0 {
		cfg.LowLatency = 2 * time.Second
	}
	baseHang := target.HangTime()
	baseMax := target.MaxSegmentDuration()
	if cfg.MaxHangTime <= 0 {
		cfg.MaxHangTime = 2 * baseHang
	}
	if cfg.MinMaxSegment <= 0 {
		cfg.MinMaxSegment = baseMax / 2
	}
	return &Tuner{
		target:   target,
		cfg:      cfg,
		baseHang: baseHang,
		baseMax:  baseMax,
	}
}

// Observe records one subtitle's end-to-end latency. Safe for concurrent use.
func (t *Tuner) Observe(d time.Duration) {
	t.mu.Lock()
	t.total += d
	t.samples++
	t.mu.Unlock()
}

// Run evaluates the observed latency every interval until ctx ends.
func (t *Tuner) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.adjust()
		}
	}
}

// adjust applies one tuning step based on the average latency since the
// previous step. No samples means no load, which counts as healthy.
func (t *Tuner) adjust() {
	t.mu.Lock()
	var avg time.Duration
	if t.samples > 0 {
		avg = t.total / time.Duration(t.samples)
	}
	t.total, t.samples = 0, 0
	t.mu.Unlock()

	hang := t.target.HangTime()
	maxSeg := t.target.MaxSegmentDuration()

	switch {
	case avg > t.cfg.HighLatency:
		newHang := min(hang+hangStep, t.cfg.MaxHangTime)
		newMax := max(maxSeg-maxStep, t.cfg.MinMaxSegment)
		if newHang != hang || newMax != maxSeg {
			t.target.SetHangTime(newHang)
			t.target.SetMaxSegmentDuration(newMax)
			slog.Info("segmenter backed off under load",
				"avg_latency", avg,
				"hang_time", newHang,
				"max_segment", newMax)
		}
	case avg < t.cfg.LowLatency:
		newHang := hang
		if hang > t.baseHang {
			newHang = max(hang-hangStep, t.baseHang)
		}
		newMax := maxSeg
		if maxSeg < t.baseMax {
			newMax = min(maxSeg+maxStep, t.baseMax)
		}
		if newHang != hang || newMax != maxSeg {
			t.target.SetHangTime(newHang)
			t.target.SetMaxSegmentDuration(newMax)
			slog.Debug("segmenter relaxed toward baseline",
				"hang_time", newHang,
				"max_segment", newMax)
		}
	}
}
