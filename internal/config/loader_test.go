package config

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sorane/livetl/pkg/provider/asr"
	asrmock "github.com/sorane/livetl/pkg/provider/asr/mock"
	"github.com/sorane/livetl/pkg/provider/translate"
	trmock "github.com/sorane/livetl/pkg/provider/translate/mock"
)

// minimalYAML returns a valid config with extra blocks appended, so tests
// exercise one concern at a time.
func minimalYAML(extra string) string {
	return `
asr:
  name: whisper
  base_url: http://localhost:9000
translate:
  name: openai
  api_key: test-key
  model: gpt-4o-mini
  source_language: ja
  target_language: zh
` + extra
}

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalYAML("")))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.ASR.Name != "whisper" {
		t.Errorf("asr.name = %q, want whisper", cfg.ASR.Name)
	}
	if cfg.Translate.TargetLanguage != "zh" {
		t.Errorf("target_language = %q, want zh", cfg.Translate.TargetLanguage)
	}
	// Defaults fill the untouched blocks.
	if cfg.Broadcast.MaxViewers != DefaultMaxViewers {
		t.Errorf("max_viewers = %d, want default %d", cfg.Broadcast.MaxViewers, DefaultMaxViewers)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(minimalYAML(`
serverr:
  listen_addr: ":9999"
`)))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestValidateCatchesMissingRequired(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors for empty config")
	}
	for _, want := range []string{"asr.name", "translate.name", "translate.model"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestValidateCrossFieldConstraints(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "hang time above segment ceiling",
			yaml: minimalYAML(`
pipeline:
  hang_time: 20s
  max_segment_duration: 15s
`),
			want: "hang_time",
		},
		{
			name: "heartbeat timeout below interval",
			yaml: minimalYAML(`
broadcast:
  heartbeat_interval: 30s
  heartbeat_timeout: 10s
`),
			want: "heartbeat_timeout",
		},
		{
			name: "retry base above max",
			yaml: minimalYAML(`
pipeline:
  retry_base_delay: 10s
  retry_max_delay: 1s
`),
			want: "retry_base_delay",
		},
		{
			name: "empty glossary term",
			yaml: minimalYAML(`
glossary:
  - term: ""
`),
			want: "glossary[0].term",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %s", err, tc.want)
			}
		})
	}
}

func TestValidateUnknownProviderNames(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
asr:
  name: kaldi
  base_url: http://localhost:9000
translate:
  name: babelfish
  model: m
  source_language: ja
  target_language: zh
`))
	if err == nil {
		t.Fatal("expected error for unknown provider names")
	}
	for _, want := range []string{"kaldi", "babelfish"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.RegisterASR("whisper", func(cfg ASRConfig) (asr.Client, error) {
		return &asrmock.Client{Default: cfg.Model}, nil
	})
	r.RegisterTranslator("openai", func(cfg TranslateConfig) (translate.Translator, error) {
		return &trmock.Translator{Prefix: cfg.Model + ":"}, nil
	})

	client, err := r.CreateASR(ASRConfig{Name: "whisper", Model: "medium"})
	if err != nil {
		t.Fatalf("CreateASR: %v", err)
	}
	if client == nil {
		t.Fatal("CreateASR returned nil client")
	}

	tr, err := r.CreateTranslator(TranslateConfig{Name: "openai", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("CreateTranslator: %v", err)
	}
	out, err := tr.Translate(context.Background(), "hello")
	if err != nil || out != "gpt-4o-mini:hello" {
		t.Errorf("Translate = (%q, %v), want factory-configured prefix", out, err)
	}
}

func TestRegistryUnknownName(t *testing.T) {
	r := NewRegistry()
	if _, err := r.CreateASR(ASRConfig{Name: "whisper"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateASR error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateTranslator(TranslateConfig{Name: "openai"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateTranslator error = %v, want ErrProviderNotRegistered", err)
	}
}
