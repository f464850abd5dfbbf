// Package anyllm provides a Translator backed by github.com/mozilla-ai/any-llm-go,
// a unified multi-provider LLM interface. Use it to translate through Ollama,
// Anthropic, Gemini, Mistral, Groq, llama.cpp and other backends with one
// code path — "ollama" matches the self-hosted setup the server was
// originally designed around.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/sorane/livetl/pkg/provider/translate"
)

const (
	defaultTimeout = 30 * time.Second

	translationTemperature = 0.3
	maxCompletionTokens    = 500
)

// Compile-time assertion that Translator implements translate.Translator.
var _ translate.Translator = (*Translator)(nil)

// config holds optional configuration for the translator.
type config struct {
	timeout      time.Duration
	contextLines int
	libOpts      []anyllmlib.Option
}

// Option is a functional option for Translator.
type Option func(*config)

// WithTimeout bounds each Translate call. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithContextLines sets how many recent original→translated pairs are
// carried in the prompt. Zero disables context.
func WithContextLines(n int) Option {
	return func(c *config) {
		c.contextLines = n
	}
}

// WithAPIKey forwards an API key to the underlying backend.
func WithAPIKey(key string) Option {
	return func(c *config) {
		c.libOpts = append(c.libOpts, anyllmlib.WithAPIKey(key))
	}
}

// WithBaseURL forwards a base URL override to the underlying backend
// (e.g., a non-default Ollama address).
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.libOpts = append(c.libOpts, anyllmlib.WithBaseURL(url))
	}
}

// Translator implements translate.Translator by wrapping any-llm-go.
type Translator struct {
	backend anyllmlib.Provider
	model   string
	system  string
	timeout time.Duration
	history *translate.History
}

// New constructs a Translator for the named backend. providerName is one
// of: "openai", "anthropic", "gemini", "ollama", "mistral", "groq",
// "llamacpp". model must be non-empty.
func New(providerName, model, sourceLang, targetLang string, opts ...Option) (*Translator, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	cfg := &config{timeout: defaultTimeout}
	for _, o := range opts {
		o(cfg)
	}

	backend, err := createBackend(providerName, cfg.libOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Translator{
		backend: backend,
		model:   model,
		system:  translate.SystemPrompt(sourceLang, targetLang),
		timeout: cfg.timeout,
		history: translate.NewHistory(cfg.contextLines),
	}, nil
}

// createBackend creates the underlying any-llm-go provider by name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, mistral, groq, llamacpp", providerName)
	}
}

// Translate implements translate.Translator.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	temp := translationTemperature
	maxTok := maxCompletionTokens
	params := anyllmlib.CompletionParams{
		Model: t.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: t.system},
			{Role: anyllmlib.RoleUser, Content: t.history.Prefix() + text},
		},
		Temperature: &temp,
		MaxTokens:   &maxTok,
	}

	resp, err := t.backend.Completion(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &translate.Error{Kind: translate.MalformedResponse, Err: errors.New("empty choices in response")}
	}

	out := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if out == "" {
		return text, nil
	}

	t.history.Add(text, out)
	return out, nil
}

// classify maps transport errors onto the translate error taxonomy.
// any-llm-go does not expose structured status codes uniformly across
// backends, so non-timeout failures are reported as Unreachable.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &translate.Error{Kind: translate.Timeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &translate.Error{Kind: translate.Timeout, Err: err}
	}
	return &translate.Error{Kind: translate.Unreachable, Err: err}
}
