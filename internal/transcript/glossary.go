// Package transcript normalises recognised text before translation.
//
// Live speech recognition renders recurring proper nouns — channel names,
// personal names, venue names — inconsistently from line to line, and the
// translator then propagates every variant. A [Normalizer] rewrites each
// recognised line against a configured glossary so a name always reaches the
// translator in its one canonical spelling.
package transcript

import (
	"strings"
)

// Matcher aligns a word or phrase with a glossary term. Implementations
// must be safe for concurrent use.
type Matcher interface {
	// Match returns the canonical term most similar to word, its match
	// confidence, and whether any term qualified. When matched is false,
	// corrected equals word unchanged.
	Match(word string, terms []string) (corrected string, confidence float64, matched bool)
}

// Term is one glossary entry: a canonical spelling plus the exact variants
// recognition is known to produce for it.
type Term struct {
	// Canonical is the spelling every variant is rewritten to.
	Canonical string

	// Aliases are exact (case-insensitive) spellings to rewrite. Phonetic
	// matching handles variants not listed here.
	Aliases []string
}

// Replacement records one substitution made while normalising a line.
type Replacement struct {
	// Original is the text span as recognised.
	Original string

	// Canonical is the glossary term that replaced it.
	Canonical string

	// Confidence is the matcher's confidence in the substitution (0.0–1.0).
	// Exact alias replacements carry 1.0.
	Confidence float64
}

// Normalizer rewrites recognised lines against a fixed glossary. It is
// read-only after construction and safe for concurrent use.
type Normalizer struct {
	matcher  Matcher
	terms    []string          // canonical spellings for the phonetic pass
	aliases  map[string]string // lowercased alias → canonical
	maxWords int               // widest term or alias, in words
}

// NewNormalizer creates a Normalizer over the given glossary. Blank entries
// are ignored. A nil matcher disables the phonetic pass; exact aliases still
// apply.
func NewNormalizer(matcher Matcher, terms []Term) *Normalizer {
	n := &Normalizer{
		matcher: matcher,
		aliases: make(map[string]string),
	}
	for _, t := range terms {
		canonical := strings.TrimSpace(t.Canonical)
		if canonical == "" {
			continue
		}
		n.terms = append(n.terms, canonical)
		n.trackWidth(canonical)
		for _, a := range t.Aliases {
			a = strings.TrimSpace(a)
			if a == "" {
				continue
			}
			n.aliases[strings.ToLower(a)] = canonical
			n.trackWidth(a)
		}
	}
	return n
}

func (n *Normalizer) trackWidth(s string) {
	if w := len(strings.Fields(s)); w > n.maxWords {
		n.maxWords = w
	}
}

// Normalize rewrites text with every glossary match replaced by its
// canonical form. The input is returned unchanged when nothing matches.
func (n *Normalizer) Normalize(text string) string {
	out, _ := n.Apply(text)
	return out
}

// Apply is Normalize with an itemised record of the substitutions made.
//
// At each token position, n-gram windows are tried from the widest glossary
// entry down to a single word, and the longest match wins, so multi-word
// terms take precedence over partial single-word matches. Exact aliases are
// checked before phonetic matching.
func (n *Normalizer) Apply(text string) (string, []Replacement) {
	if len(n.terms) == 0 && len(n.aliases) == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	// Probe at least two-word windows: recognition often splits a single
	// glossary word across two tokens ("aki habara").
	maxWindow := max(n.maxWords, 2)

	var output []string
	var applied []Replacement

	i := 0
	for i < len(tokens) {
		maxN := maxWindow
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for width := maxN; width >= 1; width-- {
			window := strings.Join(tokens[i:i+width], " ")
			term, conf, ok := n.match(window)
			if !ok {
				continue
			}
			output = append(output, strings.Fields(term)...)
			if term != window {
				applied = append(applied, Replacement{
					Original:   window,
					Canonical:  term,
					Confidence: conf,
				})
			}
			i += width
			matched = true
			break
		}
		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	if len(applied) == 0 {
		return text, nil
	}
	return strings.Join(output, " "), applied
}

// match resolves one window against the glossary: exact aliases first, then
// the phonetic matcher.
func (n *Normalizer) match(window string) (string, float64, bool) {
	if canonical, ok := n.aliases[strings.ToLower(window)]; ok {
		return canonical, 1.0, true
	}
	if n.matcher == nil || len(n.terms) == 0 {
		return window, 0, false
	}
	return n.matcher.Match(window, n.terms)
}
