package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per pipeline stage.
// Used by [Validate] to reject unrecognised names early.
var ValidProviderNames = map[string][]string{
	"asr":       {"whisper"},
	"translate": {"openai", "ollama", "anthropic", "gemini", "mistral", "groq", "llamacpp"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Broadcast.HeartbeatTimeout <= cfg.Broadcast.HeartbeatInterval {
		errs = append(errs, fmt.Errorf("broadcast.heartbeat_timeout (%s) must exceed broadcast.heartbeat_interval (%s)",
			cfg.Broadcast.HeartbeatTimeout.Std(), cfg.Broadcast.HeartbeatInterval.Std()))
	}

	if cfg.ASR.Name == "" {
		errs = append(errs, errors.New("asr.name is required"))
	} else if !slices.Contains(ValidProviderNames["asr"], cfg.ASR.Name) {
		errs = append(errs, fmt.Errorf("asr.name %q is not a known recognition backend: %v", cfg.ASR.Name, ValidProviderNames["asr"]))
	}
	if cfg.ASR.BaseURL == "" {
		errs = append(errs, errors.New("asr.base_url is required"))
	}

	if cfg.Translate.Name == "" {
		errs = append(errs, errors.New("translate.name is required"))
	} else if !slices.Contains(ValidProviderNames["translate"], cfg.Translate.Name) {
		errs = append(errs, fmt.Errorf("translate.name %q is not a known translation backend: %v", cfg.Translate.Name, ValidProviderNames["translate"]))
	}
	if cfg.Translate.Model == "" {
		errs = append(errs, errors.New("translate.model is required"))
	}
	if cfg.Translate.SourceLanguage == "" || cfg.Translate.TargetLanguage == "" {
		errs = append(errs, errors.New("translate.source_language and translate.target_language are required"))
	}
	if cfg.Translate.ContextLines < 0 {
		errs = append(errs, fmt.Errorf("translate.context_lines %d must not be negative", cfg.Translate.ContextLines))
	}

	p := cfg.Pipeline
	if p.HangTime.Std() > p.MaxSegmentDuration.Std() {
		errs = append(errs, fmt.Errorf("pipeline.hang_time (%s) must not exceed pipeline.max_segment_duration (%s)",
			p.HangTime.Std(), p.MaxSegmentDuration.Std()))
	}
	if p.MinSpeechDuration.Std() >= p.MaxSegmentDuration.Std() {
		errs = append(errs, fmt.Errorf("pipeline.min_speech_duration (%s) must be below pipeline.max_segment_duration (%s)",
			p.MinSpeechDuration.Std(), p.MaxSegmentDuration.Std()))
	}
	if p.RetryBaseDelay.Std() > p.RetryMaxDelay.Std() {
		errs = append(errs, fmt.Errorf("pipeline.retry_base_delay (%s) must not exceed pipeline.retry_max_delay (%s)",
			p.RetryBaseDelay.Std(), p.RetryMaxDelay.Std()))
	}

	for i, g := range cfg.Glossary {
		if g.Term == "" {
			errs = append(errs, fmt.Errorf("glossary[%d].term is required", i))
		}
	}

	return errors.Join(errs...)
}
