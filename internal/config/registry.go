package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sorane/livetl/pkg/provider/asr"
	"github.com/sorane/livetl/pkg/provider/translate"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// ASRFactory constructs a recognition client from its config block.
type ASRFactory func(ASRConfig) (asr.Client, error)

// TranslateFactory constructs a translation backend from its config block.
type TranslateFactory func(TranslateConfig) (translate.Translator, error)

// Registry maps provider names to their constructor functions for each
// pipeline stage. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	asr       map[string]ASRFactory
	translate map[string]TranslateFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		asr:       make(map[string]ASRFactory),
		translate: make(map[string]TranslateFactory),
	}
}

// RegisterASR registers a recognition client factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterASR(name string, factory ASRFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = factory
}

// RegisterTranslator registers a translation backend factory under name.
func (r *Registry) RegisterTranslator(name string, factory TranslateFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translate[name] = factory
}

// CreateASR constructs the recognition client selected by cfg.Name.
func (r *Registry) CreateASR(cfg ASRConfig) (asr.Client, error) {
	r.mu.RLock()
	factory, ok := r.asr[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr %q", ErrProviderNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// CreateTranslator constructs the translation backend selected by cfg.Name.
func (r *Registry) CreateTranslator(cfg TranslateConfig) (translate.Translator, error) {
	r.mu.RLock()
	factory, ok := r.translate[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: translate %q", ErrProviderNotRegistered, cfg.Name)
	}
	return factory(cfg)
}
