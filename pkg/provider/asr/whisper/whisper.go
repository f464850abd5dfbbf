// Package whisper provides an asr.Client backed by a whisper-server style
// HTTP endpoint.
//
// The client POSTs one sealed utterance per request to POST /inference as
// multipart/form-data (a WAV file plus optional language and model hint
// fields) and parses the JSON response {"text": "..."}. This matches both
// whisper.cpp's whisper-server and the common faster-whisper ASR webservice
// deployments.
//
// Usage:
//
//	c, err := whisper.New("http://localhost:9000",
//	    whisper.WithLanguage("ja"),
//	    whisper.WithTimeout(30*time.Second),
//	)
//	result, err := c.Transcribe(ctx, segment)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sorane/livetl/pkg/audio"
	"github.com/sorane/livetl/pkg/provider/asr"
	"github.com/sorane/livetl/pkg/types"
)

const (
	defaultTimeout  = 30 * time.Second
	inferencePath   = "/inference"
	defaultLanguage = ""
)

// Compile-time assertion that Client implements asr.Client.
var _ asr.Client = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the model identifier forwarded to the server (e.g.,
// "medium", "base.en"). When empty the server uses whichever model it was
// started with — this is the default.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the server (e.g.,
// "ja", "en"). An empty value lets the server auto-detect.
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// WithTimeout bounds each Transcribe call. Defaults to 30s. Every remote
// call carries a deadline; a zero or negative value is replaced by the
// default rather than disabling the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient overrides the HTTP client used for requests. Mainly for
// tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client implements asr.Client against a whisper-server HTTP endpoint.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	model      string
	language   string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a Client that connects to the whisper server at baseURL
// (e.g., "http://localhost:9000"). baseURL must be non-empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("whisper: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   defaultLanguage,
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transcribe implements asr.Client. The segment's PCM is wrapped in a WAV
// container and uploaded in a single multipart request bounded by the
// configured timeout.
func (c *Client) Transcribe(ctx context.Context, seg *types.Segment) (types.RecognitionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	wav := audio.EncodeWAV(seg.PCM, seg.SampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "segment.wav")
	if err != nil {
		return types.RecognitionResult{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return types.RecognitionResult{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	if c.language != "" {
		if err := mw.WriteField("language", c.language); err != nil {
			return types.RecognitionResult{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if c.model != "" {
		if err := mw.WriteField("model", c.model); err != nil {
			return types.RecognitionResult{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return types.RecognitionResult{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+inferencePath, &body)
	if err != nil {
		return types.RecognitionResult{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.RecognitionResult{}, &asr.Error{Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return types.RecognitionResult{}, &asr.Error{Kind: asr.ServerError, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.RecognitionResult{}, &asr.Error{Kind: classifyTransport(err), Err: err}
	}

	var result struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		// A 2xx body that is not JSON is a broken server or proxy, not an
		// empty recognition; keep it retryable.
		return types.RecognitionResult{}, &asr.Error{Kind: asr.ServerError, Status: resp.StatusCode, Err: fmt.Errorf("parse JSON response: %w", err)}
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return types.RecognitionResult{}, &asr.Error{Kind: asr.EmptyResult}
	}

	return types.RecognitionResult{
		Sequence:   seg.Sequence,
		Text:       text,
		Confidence: result.Confidence,
	}, nil
}

// classifyTransport maps a transport-level error to Timeout or Unreachable.
func classifyTransport(err error) asr.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return asr.Timeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return asr.Timeout
	}
	return asr.Unreachable
}
