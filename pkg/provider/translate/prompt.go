package translate

import (
	"fmt"
	"strings"
	"sync"
)

// SystemPrompt returns the fixed instruction that pins the translation
// direction for a chat-completion backend. source and target are BCP-47
// language codes or plain names ("ja", "Japanese").
func SystemPrompt(source, target string) string {
	return fmt.Sprintf(`You are a professional real-time subtitle translator from %s to %s.
Translate the text the user provides into %s.
Rules:
1. Preserve the tone and register of the original.
2. Produce natural, fluent output.
3. Output only the translation, with no explanation.
4. If the input is not %s or cannot be translated, return it unchanged.`,
		source, target, target, source)
}

// History is a bounded ring of recent original→translated pairs that
// backends prepend to the prompt so short lines translate consistently
// across an ongoing stream. All methods are safe for concurrent use.
type History struct {
	mu    sync.Mutex
	max   int
	pairs []string
}

// NewHistory creates a History retaining at most max pairs. A max of zero
// disables context entirely; Prefix then always returns "".
func NewHistory(max int) *History {
	return &History{max: max}
}

// Add records a completed translation pair.
func (h *History) Add(original, translated string) {
	if h.max <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pairs = append(h.pairs, original+" -> "+translated)
	if len(h.pairs) > h.max {
		h.pairs = h.pairs[len(h.pairs)-h.max:]
	}
}

// Prefix renders the recent pairs as a context block to prepend to the user
// message, or "" when there is no history.
func (h *History) Prefix() string {
	if h.max <= 0 {
		return ""
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.pairs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent lines for context:\n")
	for _, p := range h.pairs {
		b.WriteString("- ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
