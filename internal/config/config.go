// Package config provides the configuration schema, loader, and provider
// registry for the livetl subtitle server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the livetl server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration so YAML values can be written as "500ms" or
// "45s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for livetl.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	ASR       ASRConfig       `yaml:"asr"`
	Translate TranslateConfig `yaml:"translate"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Glossary  []GlossaryEntry `yaml:"glossary"`
}

// ServerConfig holds the HTTP (health and metrics) listener and logging
// settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for the health and metrics endpoints
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// BroadcastConfig holds the viewer websocket endpoint settings.
type BroadcastConfig struct {
	// ListenAddr is the TCP address viewers connect to (e.g., ":8765").
	ListenAddr string `yaml:"listen_addr"`

	// QueueDepth bounds each viewer's outbound subtitle queue. When a
	// viewer falls behind, the oldest queued events are dropped.
	QueueDepth int `yaml:"queue_depth"`

	// HeartbeatInterval is the ping cadence expected from each viewer.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// HeartbeatTimeout declares a viewer dead when no ping arrives within
	// this window. Must exceed HeartbeatInterval.
	HeartbeatTimeout Duration `yaml:"heartbeat_timeout"`

	// MaxViewers is a soft cap on simultaneous viewer connections; further
	// connections are refused.
	MaxViewers int `yaml:"max_viewers"`
}

// ASRConfig selects and configures the speech recognition backend.
type ASRConfig struct {
	// Name selects the registered recognition client (e.g., "whisper").
	Name string `yaml:"name"`

	// BaseURL is the recognition server endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model on the recognition server, when it hosts more
	// than one.
	Model string `yaml:"model"`

	// Language hints the spoken language (e.g., "ja").
	Language string `yaml:"language"`

	// Timeout bounds a single recognition request.
	Timeout Duration `yaml:"timeout"`
}

// TranslateConfig selects and configures the translation backend.
type TranslateConfig struct {
	// Name selects the registered translation backend (e.g., "openai",
	// "ollama", "anthropic").
	Name string `yaml:"name"`

	// BaseURL overrides the backend's default endpoint. Required for
	// self-hosted backends like ollama.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against hosted backends.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// SourceLanguage and TargetLanguage fix the translation direction
	// (e.g., "ja" → "zh").
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`

	// Timeout bounds a single translation request.
	Timeout Duration `yaml:"timeout"`

	// ContextLines is how many recent lines are carried in the prompt for
	// cross-line consistency. Zero disables context.
	ContextLines int `yaml:"context_lines"`
}

// PipelineConfig holds segmentation thresholds and the coordinator's
// concurrency and retry policy.
type PipelineConfig struct {
	// SampleRate is the PCM sample rate in Hz of the capture source.
	SampleRate int `yaml:"sample_rate"`

	// FrameDuration is the capture frame size.
	FrameDuration Duration `yaml:"frame_duration"`

	// EnergyThreshold is the RMS level at or above which a frame counts as
	// speech (16-bit PCM units).
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// MinSpeechDuration discards utterances carrying less speech than this.
	MinSpeechDuration Duration `yaml:"min_speech_duration"`

	// HangTime is how long energy must stay below the threshold before an
	// utterance is sealed.
	HangTime Duration `yaml:"hang_time"`

	// MaxSegmentDuration force-seals an utterance, bounding memory during
	// continuous speech.
	MaxSegmentDuration Duration `yaml:"max_segment_duration"`

	// MaxInFlight bounds concurrent recognition/translation calls.
	MaxInFlight int `yaml:"max_in_flight"`

	// MaxAttempts is the per-stage retry budget, first try included.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBaseDelay is the delay before the first retry; it doubles each
	// attempt up to RetryMaxDelay.
	RetryBaseDelay Duration `yaml:"retry_base_delay"`

	// RetryMaxDelay caps the retry backoff.
	RetryMaxDelay Duration `yaml:"retry_max_delay"`

	// StalenessCeiling abandons segments older than this, measured from
	// sealing.
	StalenessCeiling Duration `yaml:"staleness_ceiling"`

	// Adaptive enables runtime tuning of hang time and segment ceiling
	// from observed latency.
	Adaptive bool `yaml:"adaptive"`
}

// GlossaryEntry pins the canonical rendering of a recurring term.
type GlossaryEntry struct {
	// Term is the canonical spelling.
	Term string `yaml:"term"`

	// ReplaceFrom lists exact variants recognition is known to produce.
	ReplaceFrom []string `yaml:"replace_from"`
}

// Defaults mirror the documented example configuration.
const (
	DefaultServerAddr        = ":8080"
	DefaultBroadcastAddr     = ":8765"
	DefaultQueueDepth        = 16
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHeartbeatTimeout  = 75 * time.Second
	DefaultMaxViewers        = 256
	DefaultSampleRate        = 16000
	DefaultFrameDuration     = 20 * time.Millisecond
	DefaultEnergyThreshold   = 300
	DefaultMinSpeech         = 500 * time.Millisecond
	DefaultHangTime          = 600 * time.Millisecond
	DefaultMaxSegment        = 15 * time.Second
	DefaultMaxInFlight       = 3
	DefaultMaxAttempts       = 3
	DefaultRetryBaseDelay    = 250 * time.Millisecond
	DefaultRetryMaxDelay     = 4 * time.Second
	DefaultStalenessCeiling  = 45 * time.Second
	DefaultProviderTimeout   = 30 * time.Second
)

// ApplyDefaults fills zero-valued fields with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultServerAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Broadcast.ListenAddr == "" {
		c.Broadcast.ListenAddr = DefaultBroadcastAddr
	}
	if c.Broadcast.QueueDepth <= 0 {
		c.Broadcast.QueueDepth = DefaultQueueDepth
	}
	if c.Broadcast.HeartbeatInterval <= 0 {
		c.Broadcast.HeartbeatInterval = Duration(DefaultHeartbeatInterval)
	}
	if c.Broadcast.HeartbeatTimeout <= 0 {
		c.Broadcast.HeartbeatTimeout = Duration(DefaultHeartbeatTimeout)
	}
	if c.Broadcast.MaxViewers <= 0 {
		c.Broadcast.MaxViewers = DefaultMaxViewers
	}
	if c.ASR.Timeout <= 0 {
		c.ASR.Timeout = Duration(DefaultProviderTimeout)
	}
	if c.Translate.Timeout <= 0 {
		c.Translate.Timeout = Duration(DefaultProviderTimeout)
	}
	p := &c.Pipeline
	if p.SampleRate <= 0 {
		p.SampleRate = DefaultSampleRate
	}
	if p.FrameDuration <= 0 {
		p.FrameDuration = Duration(DefaultFrameDuration)
	}
	if p.EnergyThreshold <= 0 {
		p.EnergyThreshold = DefaultEnergyThreshold
	}
	if p.MinSpeechDuration <= 0 {
		p.MinSpeechDuration = Duration(DefaultMinSpeech)
	}
	if p.HangTime <= 0 {
		p.HangTime = Duration(DefaultHangTime)
	}
	if p.MaxSegmentDuration <= 0 {
		p.MaxSegmentDuration = Duration(DefaultMaxSegment)
	}
	if p.MaxInFlight <= 0 {
		p.MaxInFlight = DefaultMaxInFlight
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.RetryBaseDelay <= 0 {
		p.RetryBaseDelay = Duration(DefaultRetryBaseDelay)
	}
	if p.RetryMaxDelay <= 0 {
		p.RetryMaxDelay = Duration(DefaultRetryMaxDelay)
	}
	if p.StalenessCeiling <= 0 {
		p.StalenessCeiling = Duration(DefaultStalenessCeiling)
	}
}
