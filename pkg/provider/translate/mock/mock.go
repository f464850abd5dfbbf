// Package mock provides a scriptable Translator for tests.
package mock

import (
	"context"
	"sync"

	"github.com/sorane/livetl/pkg/provider/translate"
)

// Compile-time assertion that Translator implements translate.Translator.
var _ translate.Translator = (*Translator)(nil)

// Translator is a scriptable translation client. TranslateFunc, when set,
// is invoked for every call; otherwise inputs are looked up in Texts,
// falling back to echoing the input with Prefix prepended.
type Translator struct {
	// TranslateFunc overrides all other behaviour when non-nil.
	TranslateFunc func(ctx context.Context, text string) (string, error)

	// Texts maps input lines to canned translations.
	Texts map[string]string

	// Prefix is prepended to echoed inputs when Texts has no entry.
	Prefix string

	mu    sync.Mutex
	calls []string
}

// Translate implements translate.Translator.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	t.mu.Lock()
	t.calls = append(t.calls, text)
	t.mu.Unlock()

	if t.TranslateFunc != nil {
		return t.TranslateFunc(ctx, text)
	}
	if out, ok := t.Texts[text]; ok {
		return out, nil
	}
	return t.Prefix + text, nil
}

// Calls returns all inputs passed to Translate so far.
func (t *Translator) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.calls))
	copy(out, t.calls)
	return out
}
