package translate

import (
	"strings"
	"testing"
)

func TestSystemPrompt_MentionsLanguages(t *testing.T) {
	p := SystemPrompt("Japanese", "Chinese")
	if !strings.Contains(p, "Japanese") || !strings.Contains(p, "Chinese") {
		t.Errorf("prompt missing language names: %q", p)
	}
}

func TestHistory_Disabled(t *testing.T) {
	h := NewHistory(0)
	h.Add("a", "b")
	if got := h.Prefix(); got != "" {
		t.Errorf("Prefix = %q, want empty for disabled history", got)
	}
}

func TestHistory_Empty(t *testing.T) {
	h := NewHistory(5)
	if got := h.Prefix(); got != "" {
		t.Errorf("Prefix = %q, want empty before any Add", got)
	}
}

func TestHistory_BoundedRing(t *testing.T) {
	h := NewHistory(2)
	h.Add("one", "一")
	h.Add("two", "二")
	h.Add("three", "三")

	got := h.Prefix()
	if strings.Contains(got, "one") {
		t.Error("oldest pair should have been evicted")
	}
	if !strings.Contains(got, "two -> 二") || !strings.Contains(got, "three -> 三") {
		t.Errorf("Prefix = %q, missing recent pairs", got)
	}
}
