package config

import (
	"strings"
	"testing"
	"time"
)

func TestLogLevelIsValid(t *testing.T) {
	for _, l := range []LogLevel{LogDebug, LogInfo, LogWarn, LogError} {
		if !l.IsValid() {
			t.Errorf("%q reported invalid", l)
		}
	}
	if LogLevel("verbose").IsValid() {
		t.Error("unknown level reported valid")
	}
}

func TestDurationUnmarshal(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalYAML(`
pipeline:
  hang_time: 750ms
  staleness_ceiling: 1m
`)))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if got := cfg.Pipeline.HangTime.Std(); got != 750*time.Millisecond {
		t.Errorf("hang_time = %v, want 750ms", got)
	}
	if got := cfg.Pipeline.StalenessCeiling.Std(); got != time.Minute {
		t.Errorf("staleness_ceiling = %v, want 1m", got)
	}
}

func TestDurationUnmarshalRejectsGarbage(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(minimalYAML(`
pipeline:
  hang_time: soon
`)))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "soon") {
		t.Errorf("error %q does not name the bad value", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Server.ListenAddr != DefaultServerAddr {
		t.Errorf("server addr = %q, want %q", cfg.Server.ListenAddr, DefaultServerAddr)
	}
	if cfg.Broadcast.ListenAddr != DefaultBroadcastAddr {
		t.Errorf("broadcast addr = %q, want %q", cfg.Broadcast.ListenAddr, DefaultBroadcastAddr)
	}
	if cfg.Broadcast.QueueDepth != DefaultQueueDepth {
		t.Errorf("queue depth = %d, want %d", cfg.Broadcast.QueueDepth, DefaultQueueDepth)
	}
	if cfg.Pipeline.EnergyThreshold != DefaultEnergyThreshold {
		t.Errorf("energy threshold = %v, want %v", cfg.Pipeline.EnergyThreshold, DefaultEnergyThreshold)
	}
	if cfg.Pipeline.StalenessCeiling.Std() != DefaultStalenessCeiling {
		t.Errorf("staleness ceiling = %v, want %v", cfg.Pipeline.StalenessCeiling.Std(), DefaultStalenessCeiling)
	}
	if cfg.ASR.Timeout.Std() != DefaultProviderTimeout {
		t.Errorf("asr timeout = %v, want %v", cfg.ASR.Timeout.Std(), DefaultProviderTimeout)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Broadcast.QueueDepth = 4
	cfg.Pipeline.MaxInFlight = 8
	cfg.ApplyDefaults()

	if cfg.Broadcast.QueueDepth != 4 {
		t.Errorf("queue depth = %d, want explicit 4", cfg.Broadcast.QueueDepth)
	}
	if cfg.Pipeline.MaxInFlight != 8 {
		t.Errorf("max in flight = %d, want explicit 8", cfg.Pipeline.MaxInFlight)
	}
}
