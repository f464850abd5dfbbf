// Package openai provides a Translator backed by an OpenAI-compatible chat
// completion API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/sorane/livetl/pkg/provider/translate"
)

const (
	defaultTimeout = 30 * time.Second

	// translationTemperature is deliberately low: subtitle translation
	// wants stable, repeatable output, not creativity.
	translationTemperature = 0.3

	// maxCompletionTokens caps a single subtitle line's translation.
	maxCompletionTokens = 500
)

// Compile-time assertion that Translator implements translate.Translator.
var _ translate.Translator = (*Translator)(nil)

// config holds optional configuration for the translator.
type config struct {
	baseURL      string
	timeout      time.Duration
	contextLines int
}

// Option is a functional option for Translator.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Use this to point
// at a self-hosted OpenAI-compatible gateway.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout bounds each Translate call. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithContextLines sets how many recent original→translated pairs are
// carried in the prompt for cross-line consistency. Zero disables context.
func WithContextLines(n int) Option {
	return func(c *config) {
		c.contextLines = n
	}
}

// Translator implements translate.Translator using the OpenAI API.
type Translator struct {
	client  oai.Client
	model   string
	system  string
	timeout time.Duration
	history *translate.History
}

// New constructs a Translator for the given model translating sourceLang
// into targetLang. apiKey and model must be non-empty.
func New(apiKey, model, sourceLang, targetLang string, opts ...Option) (*Translator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{timeout: defaultTimeout}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// The pipeline coordinator owns retry policy; the SDK must not
		// retry underneath it.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Translator{
		client:  oai.NewClient(reqOpts...),
		model:   model,
		system:  translate.SystemPrompt(sourceLang, targetLang),
		timeout: cfg.timeout,
		history: translate.NewHistory(cfg.contextLines),
	}, nil
}

// Translate implements translate.Translator.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(t.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(t.system),
			oai.UserMessage(t.history.Prefix() + text),
		},
		Temperature:         param.NewOpt(translationTemperature),
		MaxCompletionTokens: param.NewOpt(int64(maxCompletionTokens)),
	}

	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &translate.Error{Kind: translate.MalformedResponse, Err: errors.New("empty choices in response")}
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		// Empty output is passed through rather than failed: a visible
		// untranslated line beats a dropped one.
		return text, nil
	}

	t.history.Add(text, out)
	return out, nil
}

// classify maps SDK and transport errors onto the translate error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &translate.Error{Kind: translate.Timeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &translate.Error{Kind: translate.Timeout, Err: err}
	}
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode >= http.StatusBadRequest {
			return &translate.Error{Kind: translate.ServerError, Status: apierr.StatusCode, Err: err}
		}
		return &translate.Error{Kind: translate.MalformedResponse, Err: err}
	}
	return &translate.Error{Kind: translate.Unreachable, Err: err}
}
