package transcript

import (
	"strings"
	"testing"

	"github.com/sorane/livetl/internal/transcript/phonetic"
)

func newTestNormalizer(terms ...string) *Normalizer {
	entries := make([]Term, len(terms))
	for i, t := range terms {
		entries[i] = Term{Canonical: t}
	}
	return NewNormalizer(phonetic.New(), entries)
}

func TestNormalizeReplacesMisheardTerm(t *testing.T) {
	n := newTestNormalizer("Hololive", "Akihabara")

	got := n.Normalize("the holo live stream starts soon")
	if !strings.Contains(got, "Hololive") {
		t.Errorf("Normalize = %q, want %q substituted", got, "Hololive")
	}
}

func TestNormalizeKeepsUnrelatedText(t *testing.T) {
	n := newTestNormalizer("Hololive")

	in := "nothing matches in this line"
	if got := n.Normalize(in); got != in {
		t.Errorf("Normalize changed unrelated text: %q", got)
	}
}

func TestNormalizePrefersLongestMatch(t *testing.T) {
	n := newTestNormalizer("Comic Market", "Comic")

	got, applied := n.Apply("comick market was crowded today")
	if !strings.Contains(got, "Comic Market") {
		t.Fatalf("Apply = %q, want multi-word term substituted", got)
	}
	if len(applied) != 1 {
		t.Fatalf("replacements = %d, want 1", len(applied))
	}
	if applied[0].Canonical != "Comic Market" {
		t.Errorf("canonical = %q, want %q", applied[0].Canonical, "Comic Market")
	}
}

func TestNormalizeEmptyGlossaryPassesThrough(t *testing.T) {
	n := NewNormalizer(phonetic.New(), nil)

	in := "holo live stream"
	if got := n.Normalize(in); got != in {
		t.Errorf("empty glossary changed text: %q", got)
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	n := newTestNormalizer("Hololive")
	if got := n.Normalize(""); got != "" {
		t.Errorf("Normalize(\"\") = %q, want empty", got)
	}
}

func TestApplyRecordsConfidence(t *testing.T) {
	n := newTestNormalizer("Akihabara")

	_, applied := n.Apply("walking around aki habara at night")
	if len(applied) == 0 {
		t.Fatal("no replacements recorded")
	}
	r := applied[0]
	if r.Canonical != "Akihabara" {
		t.Errorf("canonical = %q, want Akihabara", r.Canonical)
	}
	if r.Confidence <= 0 || r.Confidence > 1 {
		t.Errorf("confidence = %f, want in (0, 1]", r.Confidence)
	}
}

func TestExactAliasBeatsPhonetic(t *testing.T) {
	n := NewNormalizer(phonetic.New(), []Term{
		{Canonical: "Sora-chan", Aliases: []string{"sora chan", "solar chan"}},
	})

	got, applied := n.Apply("and then solar chan laughed")
	if !strings.Contains(got, "Sora-chan") {
		t.Fatalf("Apply = %q, want alias rewritten", got)
	}
	if len(applied) != 1 {
		t.Fatalf("replacements = %d, want 1", len(applied))
	}
	if applied[0].Confidence != 1.0 {
		t.Errorf("alias confidence = %f, want 1.0", applied[0].Confidence)
	}
}

func TestAliasesWorkWithoutMatcher(t *testing.T) {
	n := NewNormalizer(nil, []Term{
		{Canonical: "Hololive", Aliases: []string{"holo live"}},
	})

	got := n.Normalize("the holo live stream")
	if !strings.Contains(got, "Hololive") {
		t.Errorf("Normalize = %q, want alias rewritten without matcher", got)
	}
}
