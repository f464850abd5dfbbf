// Package app wires all livetl subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture-to-broadcast loop, and Shutdown
// tears everything down in order.
//
// Providers (recognition client, translator, capture source) are injected
// by main.go via the config registry; tests inject mocks the same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sorane/livetl/internal/config"
	"github.com/sorane/livetl/internal/health"
	"github.com/sorane/livetl/internal/hub"
	"github.com/sorane/livetl/internal/observe"
	"github.com/sorane/livetl/internal/pipeline"
	"github.com/sorane/livetl/internal/resilience"
	"github.com/sorane/livetl/internal/segment"
	"github.com/sorane/livetl/internal/transcript"
	"github.com/sorane/livetl/internal/transcript/phonetic"
	"github.com/sorane/livetl/internal/viewer"
	"github.com/sorane/livetl/pkg/audio"
	"github.com/sorane/livetl/pkg/provider/asr"
	"github.com/sorane/livetl/pkg/provider/translate"
	"github.com/sorane/livetl/pkg/types"
)

// Providers holds the external collaborators built from the config registry.
// Source may be nil; the app then serves already-connected viewers only,
// which is useful when audio is fed by a separate process in development.
type Providers struct {
	ASR        asr.Client
	Translator translate.Translator
	Source     audio.Source
}

// App owns all subsystem lifetimes and runs the subtitle pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	segmenter   *segment.Segmenter
	coordinator *pipeline.Coordinator
	tuner       *pipeline.Tuner
	normalizer  *transcript.Normalizer
	hub         *hub.Hub
	viewers     *viewer.Server

	asrBreaker       *resilience.CircuitBreaker
	translateBreaker *resilience.CircuitBreaker

	apiServer *http.Server
	wsServer  *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects metric instruments instead of the process-wide default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.ASR == nil || providers.Translator == nil {
		return nil, fmt.Errorf("app: recognition and translation providers are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.closers = append(a.closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(sctx)
		})
		a.metrics = observe.DefaultMetrics()
	}

	a.initGlossary()
	a.initPipeline()
	a.initBroadcast()
	a.initServers()

	return a, nil
}

// initGlossary builds the transcript normaliser from the configured terms.
// An empty glossary leaves the normaliser nil and recognition text untouched.
func (a *App) initGlossary() {
	if len(a.cfg.Glossary) == 0 {
		return
	}
	terms := make([]transcript.Term, 0, len(a.cfg.Glossary))
	for _, e := range a.cfg.Glossary {
		terms = append(terms, transcript.Term{
			Canonical: e.Term,
			Aliases:   e.ReplaceFrom,
		})
	}
	a.normalizer = transcript.NewNormalizer(phonetic.New(), terms)
	slog.Info("glossary loaded", "terms", len(terms))
}

// initPipeline builds the segmenter, circuit breakers, coordinator, and the
// optional adaptive tuner.
func (a *App) initPipeline() {
	pc := a.cfg.Pipeline

	a.segmenter = segment.New(segment.Config{
		SampleRate:         pc.SampleRate,
		EnergyThreshold:    pc.EnergyThreshold,
		MinSpeechDuration:  pc.MinSpeechDuration.Std(),
		HangTime:           pc.HangTime.Std(),
		MaxSegmentDuration: pc.MaxSegmentDuration.Std(),
	})

	a.asrBreaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "asr"})
	a.translateBreaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "translate"})

	coordOpts := []pipeline.Option{
		pipeline.WithMetrics(a.metrics),
		pipeline.WithBreakers(a.asrBreaker, a.translateBreaker),
	}
	if a.normalizer != nil {
		coordOpts = append(coordOpts, pipeline.WithNormalizer(a.normalizer.Normalize))
	}
	if pc.Adaptive {
		a.tuner = pipeline.NewTuner(a.segmenter, pipeline.TunerConfig{})
		coordOpts = append(coordOpts, pipeline.WithLatencyObserver(a.tuner.Observe))
	}

	a.coordinator = pipeline.New(a.providers.ASR, a.providers.Translator, pipeline.Config{
		MaxInFlight:      int64(pc.MaxInFlight),
		MaxAttempts:      pc.MaxAttempts,
		InitialBackoff:   pc.RetryBaseDelay.Std(),
		MaxBackoff:       pc.RetryMaxDelay.Std(),
		StalenessCeiling: pc.StalenessCeiling.Std(),
	}, coordOpts...)
}

// initBroadcast builds the hub and the viewer websocket server.
func (a *App) initBroadcast() {
	bc := a.cfg.Broadcast
	a.hub = hub.New(
		hub.WithQueueDepth(bc.QueueDepth),
		hub.WithMetrics(a.metrics),
	)
	a.viewers = viewer.New(a.hub, viewer.Config{
		HeartbeatInterval: bc.HeartbeatInterval.Std(),
		HeartbeatTimeout:  bc.HeartbeatTimeout.Std(),
		MaxViewers:        bc.MaxViewers,
	}, viewer.WithMetrics(a.metrics))
}

// initServers builds the health/metrics listener and the viewer listener.
func (a *App) initServers() {
	checks := health.New(
		health.BreakerChecker("asr", a.asrBreaker),
		health.BreakerChecker("translate", a.translateBreaker),
	)

	mux := http.NewServeMux()
	checks.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.apiServer = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.wsServer = &http.Server{
		Addr:              a.cfg.Broadcast.ListenAddr,
		Handler:           a.viewers.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Check probes the recognition and translation backends with a minimal
// request each and returns the combined result. Used by the --check flag.
func (a *App) Check(ctx context.Context) error {
	var errs []error

	// 200ms of silence; any response other than a transport failure counts
	// as reachable, including the empty-result case.
	probe := silenceSegment(a.cfg.Pipeline.SampleRate)
	if _, err := a.providers.ASR.Transcribe(ctx, probe); err != nil {
		if kind, ok := asr.KindOf(err); !ok || kind != asr.EmptyResult {
			errs = append(errs, fmt.Errorf("asr: %w", err))
		}
	}

	if _, err := a.providers.Translator.Translate(ctx, "hello"); err != nil {
		errs = append(errs, fmt.Errorf("translate: %w", err))
	}

	return errors.Join(errs...)
}

// Run starts the listeners and the capture loop and blocks until ctx is
// cancelled or a listener fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		slog.Info("health and metrics listening", "addr", a.apiServer.Addr)
		if err := a.apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		slog.Info("broadcast listening", "addr", a.wsServer.Addr)
		if err := a.wsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("broadcast server: %w", err)
		}
	}()

	// Fan subtitle events out to viewers. The hub must keep draining until
	// the coordinator closes its stream, or in-flight segments could block
	// on the event channel during shutdown, so it ignores ctx cancellation.
	var hubDone sync.WaitGroup
	hubDone.Add(1)
	go func() {
		defer hubDone.Done()
		a.hub.Run(context.WithoutCancel(ctx), a.coordinator.Events())
	}()

	if a.tuner != nil {
		go a.tuner.Run(ctx)
		slog.Info("adaptive segmenter tuning enabled")
	}

	var captureDone sync.WaitGroup
	if a.providers.Source != nil {
		if err := a.providers.Source.Start(ctx); err != nil {
			return fmt.Errorf("app: start capture: %w", err)
		}
		captureDone.Add(1)
		go func() {
			defer captureDone.Done()
			a.captureLoop(ctx)
		}()
	} else {
		slog.Warn("no capture source configured; broadcasting only")
	}

	slog.Info("app running",
		"asr", a.cfg.ASR.Name,
		"translate", a.cfg.Translate.Name,
		"direction", a.cfg.Translate.SourceLanguage+"→"+a.cfg.Translate.TargetLanguage)

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	}

	// Stop the source and wait for the capture loop to drain its remaining
	// frames before closing the coordinator; Submit must not race Close.
	// Then let in-flight segments resolve and close the hub by draining the
	// coordinator stream to its end.
	if a.providers.Source != nil {
		_ = a.providers.Source.Stop()
	}
	captureDone.Wait()
	a.coordinator.Close()
	hubDone.Wait()

	return err
}

// captureLoop feeds frames into the segmenter and sealed segments into the
// coordinator. Nothing in the loop body may block: frames must be consumed
// at the capture rate however slow the backends are, so a segment that finds
// the in-flight budget saturated is dropped rather than waited on.
func (a *App) captureLoop(ctx context.Context) {
	adapter := audio.RateAdapter{TargetRate: a.cfg.Pipeline.SampleRate}
	var discarded uint64
	for frame := range a.providers.Source.Frames() {
		seg := a.segmenter.Push(adapter.Adapt(frame))
		if d := a.segmenter.Discarded(); d > discarded {
			a.metrics.SegmentsDiscarded.Add(ctx, int64(d-discarded))
			discarded = d
		}
		if seg == nil {
			continue
		}
		slog.Debug("segment sealed",
			"sequence", seg.Sequence,
			"duration", seg.AudioDuration())
		switch err := a.coordinator.Submit(ctx, seg); {
		case err == nil:
		case errors.Is(err, pipeline.ErrBusy):
			slog.Warn("pipeline saturated, segment dropped",
				"sequence", seg.Sequence,
				"duration", seg.AudioDuration())
		default:
			slog.Warn("segment not submitted", "sequence", seg.Sequence, "error", err)
			return
		}
	}
}

// Shutdown tears down all subsystems. It respects the context deadline; if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		a.viewers.CloseAll()

		if err := a.wsServer.Shutdown(ctx); err != nil {
			slog.Warn("broadcast server shutdown error", "error", err)
		}
		if err := a.apiServer.Shutdown(ctx); err != nil {
			slog.Warn("api server shutdown error", "error", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// Hub exposes the broadcast hub for in-process consumers such as an overlay
// renderer.
func (a *App) Hub() *hub.Hub { return a.hub }

// silenceSegment builds a 200ms all-zero probe segment.
func silenceSegment(sampleRate int) *types.Segment {
	if sampleRate <= 0 {
		sampleRate = config.DefaultSampleRate
	}
	n := sampleRate / 5 * 2
	return &types.Segment{
		Sequence:   0,
		PCM:        make([]byte, n),
		SampleRate: sampleRate,
		SealedAt:   time.Now(),
	}
}
