// Package pipeline implements the coordinator that moves sealed utterances
// through recognition and translation and emits subtitle events in segment
// order.
//
// The coordinator enforces three policies the provider clients deliberately
// do not implement themselves:
//
//   - bounded concurrency: at most MaxInFlight segments are in a provider
//     call at any moment, and admission never blocks — a segment arriving
//     while the budget is saturated is dropped with its sequence skipped,
//     because the capture loop must keep consuming audio no matter how slow
//     the backends are;
//   - retry with exponential backoff, abandoned once a segment's age exceeds
//     the staleness ceiling — a subtitle that arrives half a minute late is
//     worse than no subtitle;
//   - ordered emission: results are released strictly in segment sequence
//     order, with abandoned segments unblocking their successors.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sorane/livetl/internal/observe"
	"github.com/sorane/livetl/internal/resilience"
	"github.com/sorane/livetl/pkg/provider/asr"
	"github.com/sorane/livetl/pkg/provider/translate"
	"github.com/sorane/livetl/pkg/types"
)

// Default policy values; see Config.
const (
	defaultMaxInFlight      = 3
	defaultMaxAttempts      = 3
	defaultInitialBackoff   = 500 * time.Millisecond
	defaultMaxBackoff       = 5 * time.Second
	defaultStalenessCeiling = 45 * time.Second
	defaultEventBuffer      = 32
)

// errStale marks a segment abandoned for exceeding the staleness ceiling.
var errStale = errors.New("pipeline: segment exceeded staleness ceiling")

// Sentinel errors returned by Submit.
var (
	// ErrBusy means the in-flight budget was saturated; the segment was
	// dropped and its sequence skipped.
	ErrBusy = errors.New("pipeline: in-flight budget saturated")

	// ErrClosed means Submit was called after Close.
	ErrClosed = errors.New("pipeline: coordinator closed")
)

// Config holds the coordinator's concurrency and retry policy.
type Config struct {
	// MaxInFlight bounds how many segments may be in recognition or
	// translation simultaneously. Default: 3.
	MaxInFlight int64

	// MaxAttempts is the per-stage attempt budget, the first try included.
	// Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. Doubles each
	// attempt up to MaxBackoff. Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff delay. Default: 5s.
	MaxBackoff time.Duration

	// StalenessCeiling abandons any segment older than this, measured from
	// sealing. Checked before every attempt. Default: 45s.
	StalenessCeiling time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = defaultMaxInFlight
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.StalenessCeiling <= 0 {
		c.StalenessCeiling = defaultStalenessCeiling
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics attaches metric instruments. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithNormalizer applies a text normaliser (for example a glossary pass) to
// recognised text before translation.
func WithNormalizer(fn func(string) string) Option {
	return func(c *Coordinator) { c.normalize = fn }
}

// WithBreakers wraps recognition and translation calls in circuit breakers.
// Either may be nil to leave that stage unwrapped.
func WithBreakers(asrBreaker, translateBreaker *resilience.CircuitBreaker) Option {
	return func(c *Coordinator) {
		c.asrBreaker = asrBreaker
		c.translateBreaker = translateBreaker
	}
}

// WithLatencyObserver registers a callback invoked with each completed
// segment's seal-to-emit latency. The adaptive tuner uses this feed.
func WithLatencyObserver(fn func(time.Duration)) Option {
	return func(c *Coordinator) { c.observeLatency = fn }
}

// Coordinator runs segments through recognition and translation with bounded
// concurrency and emits subtitle events in sequence order on Events.
type Coordinator struct {
	asr        asr.Client
	translator translate.Translator
	cfg        Config

	sem            *semaphore.Weighted
	events         chan types.SubtitleEvent
	metrics        *observe.Metrics
	normalize      func(string) string
	observeLatency func(time.Duration)

	asrBreaker       *resilience.CircuitBreaker
	translateBreaker *resilience.CircuitBreaker

	// emitMu serialises reorder-buffer mutation and the ordered sends on
	// events, so two segments resolving concurrently cannot interleave
	// their released batches.
	emitMu  sync.Mutex
	reorder *reorderBuffer

	// mu guards closed and orders wg.Add against Close's wg.Wait, so a
	// Submit racing Close can never start a worker after the event channel
	// is gone.
	mu     sync.Mutex
	closed bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Coordinator. Zero-valued Config fields get defaults.
func New(asrClient asr.Client, translator translate.Translator, cfg Config, opts ...Option) *Coordinator {
	cfg.applyDefaults()
	c := &Coordinator{
		asr:        asrClient,
		translator: translator,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(cfg.MaxInFlight),
		events:     make(chan types.SubtitleEvent, defaultEventBuffer),
		reorder:    newReorderBuffer(1),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Events returns the ordered subtitle stream. The channel is closed by
// Close after all in-flight segments have resolved.
func (c *Coordinator) Events() <-chan types.SubtitleEvent { return c.events }

// Submit hands a sealed segment to the pipeline. It never blocks: when the
// in-flight budget is saturated the segment is dropped, its sequence is
// skipped so successors stay unblocked, and ErrBusy is returned. The caller
// is the audio-consumption path and must come back for the next frame within
// one frame period. Returns ErrClosed after Close.
func (c *Coordinator) Submit(ctx context.Context, seg *types.Segment) error {
	c.metrics.SegmentsSealed.Add(ctx, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.sem.TryAcquire(1) {
		// Skip under mu so the released events cannot race Close's
		// close(events).
		c.metrics.SegmentsDiscarded.Add(ctx, 1)
		c.resolveSkip(seg.Sequence)
		c.mu.Unlock()
		return ErrBusy
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go c.process(ctx, seg)
	return nil
}

// Close refuses further submissions, waits for in-flight segments to
// resolve, then closes Events.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.wg.Wait()

		c.emitMu.Lock()
		held := c.reorder.waiting()
		c.emitMu.Unlock()
		if held > 0 {
			// Every accepted segment resolves its sequence, so anything
			// still held points at a sequence that was sealed but never
			// reached Submit.
			slog.Warn("unresolved segments held at close", "count", held)
		}

		close(c.events)
	})
}

// process runs one segment through both stages and resolves its slot in the
// reorder buffer.
func (c *Coordinator) process(ctx context.Context, seg *types.Segment) {
	defer c.wg.Done()
	defer c.sem.Release(1)

	c.metrics.InFlightSegments.Add(ctx, 1)
	defer c.metrics.InFlightSegments.Add(ctx, -1)

	log := slog.With("sequence", seg.Sequence)

	original, err := c.recognize(ctx, seg)
	if err != nil {
		c.abandon(ctx, seg, "asr", err, log)
		return
	}
	if strings.TrimSpace(original) == "" {
		// Nothing was said worth showing; unblock successors silently.
		log.Debug("segment recognised as empty")
		c.resolveSkip(seg.Sequence)
		return
	}

	if c.normalize != nil {
		original = c.normalize(original)
	}

	translated, err := c.translateText(ctx, seg, original)
	if err != nil {
		c.abandon(ctx, seg, "translate", err, log)
		return
	}

	ev := types.SubtitleEvent{
		Sequence:   seg.Sequence,
		Original:   original,
		Translated: translated,
		EmittedAt:  time.Now(),
	}
	c.metrics.SegmentsCompleted.Add(ctx, 1)
	c.metrics.SubtitleLatency.Record(ctx, time.Since(seg.SealedAt).Seconds())
	if c.observeLatency != nil {
		c.observeLatency(time.Since(seg.SealedAt))
	}
	log.Info("subtitle ready",
		"original", original,
		"translated", translated,
		"latency", time.Since(seg.SealedAt))
	c.resolveComplete(ev)
}

// abandon marks a segment failed, records metrics, and unblocks successors.
func (c *Coordinator) abandon(ctx context.Context, seg *types.Segment, stage string, err error, log *slog.Logger) {
	if errors.Is(err, errStale) {
		stage = "stale"
	}
	c.metrics.RecordSegmentFailed(ctx, stage)
	log.Warn("segment abandoned", "stage", stage, "error", err, "age", time.Since(seg.SealedAt))
	c.resolveSkip(seg.Sequence)
}

func (c *Coordinator) resolveComplete(ev types.SubtitleEvent) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	for _, e := range c.reorder.complete(ev.Sequence, ev) {
		c.events <- e
	}
}

func (c *Coordinator) resolveSkip(seq uint64) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	for _, e := range c.reorder.skip(seq) {
		c.events <- e
	}
}

// recognize runs the recognition stage under the retry policy.
func (c *Coordinator) recognize(ctx context.Context, seg *types.Segment) (string, error) {
	var result types.RecognitionResult
	err := c.withRetry(ctx, seg, "asr", func(ctx context.Context) error {
		start := time.Now()
		var err error
		result, err = c.callASR(ctx, seg)
		c.metrics.ASRDuration.Record(ctx, time.Since(start).Seconds())
		c.recordProvider(ctx, "asr", err)
		return err
	})
	if kind, ok := asr.KindOf(err); ok && kind == asr.EmptyResult {
		// No speech recognised is a valid outcome, not a failure.
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// translateText runs the translation stage under the retry policy.
func (c *Coordinator) translateText(ctx context.Context, seg *types.Segment, text string) (string, error) {
	var out string
	err := c.withRetry(ctx, seg, "translate", func(ctx context.Context) error {
		start := time.Now()
		var err error
		out, err = c.callTranslate(ctx, text)
		c.metrics.TranslateDuration.Record(ctx, time.Since(start).Seconds())
		c.recordProvider(ctx, "translate", err)
		return err
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (c *Coordinator) callASR(ctx context.Context, seg *types.Segment) (types.RecognitionResult, error) {
	if c.asrBreaker == nil {
		return c.asr.Transcribe(ctx, seg)
	}
	return resilience.Call(c.asrBreaker, func() (types.RecognitionResult, error) {
		return c.asr.Transcribe(ctx, seg)
	})
}

func (c *Coordinator) callTranslate(ctx context.Context, text string) (string, error) {
	if c.translateBreaker == nil {
		return c.translator.Translate(ctx, text)
	}
	return resilience.Call(c.translateBreaker, func() (string, error) {
		return c.translator.Translate(ctx, text)
	})
}

func (c *Coordinator) recordProvider(ctx context.Context, provider string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		c.metrics.RecordProviderError(ctx, provider, errorKind(err))
	}
	c.metrics.RecordProviderRequest(ctx, provider, status)
}

// withRetry runs fn under the attempt budget, abandoning as soon as the
// segment's age exceeds the staleness ceiling. The backoff doubles each
// attempt up to the configured cap.
func (c *Coordinator) withRetry(ctx context.Context, seg *types.Segment, stage string, fn func(context.Context) error) error {
	backoff := c.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if time.Since(seg.SealedAt) > c.cfg.StalenessCeiling {
			if lastErr != nil {
				return errors.Join(errStale, lastErr)
			}
			return errStale
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == c.cfg.MaxAttempts {
			return lastErr
		}

		slog.Warn("stage failed, retrying",
			"sequence", seg.Sequence,
			"stage", stage,
			"attempt", attempt,
			"backoff", backoff,
			"error", lastErr)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
	return lastErr
}

// retryable reports whether an attempt is worth repeating. Transport and
// server failures are; an empty recognition result is a final answer, and a
// cancelled context will not recover.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if kind, ok := asr.KindOf(err); ok {
		return kind != asr.EmptyResult
	}
	return true
}

// errorKind renders a provider error's taxonomy kind for metric attributes.
func errorKind(err error) string {
	if kind, ok := asr.KindOf(err); ok {
		return kind.String()
	}
	if kind, ok := translate.KindOf(err); ok {
		return kind.String()
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "circuit_open"
	}
	return "unknown"
}
