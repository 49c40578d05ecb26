// Package transcript post-processes raw speech-to-text output before it is
// shown to the clinician.
//
// The main job is vocabulary correction: STT engines reliably mangle drug
// names and clinical terms ("metro prolol" for "metoprolol", "a fib" for
// "AFib"). The Corrector aligns transcript tokens against a configured
// clinical vocabulary using Double Metaphone phonetic encoding with
// Jaro-Winkler similarity for ranked candidate selection:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the input window and for each vocabulary term. Overlapping codes make
//     the term a candidate.
//  2. Jaro-Winkler admission and ranking: a window is admitted only when its
//     score against the whole term clears the threshold (phonetic candidates
//     use the phonetic threshold, others the stricter fuzzy one); among
//     admitted terms the highest score wins.
//
// Multi-word terms ("beta blocker", "atrial fibrillation") are matched via
// n-gram windows up to the longest term in the vocabulary, longest window
// first. Admission is always scored on the whole window, never on its best
// single token, so a window cannot swallow neighboring words that contribute
// nothing to the match.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.88
)

// Correction records one replacement the corrector made.
type Correction struct {
	// Original is the transcript text that was replaced.
	Original string

	// Corrected is the vocabulary term it was replaced with.
	Corrected string

	// Confidence is the Jaro-Winkler similarity that justified the match.
	Confidence float64
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists and the corrector falls back to pure string
// similarity. Default: 0.88.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// term is a vocabulary entry with its phonetic codes precomputed at
// construction time so that Correct does no per-call encoding of the
// vocabulary.
type term struct {
	canonical string
	lower     string
	concat    string
	tokens    []string
	codes     map[string]struct{}
}

// Corrector aligns transcript text against a clinical vocabulary.
// Read-only after construction; safe for concurrent use.
type Corrector struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	terms             []term
	maxTermWords      int
}

// New builds a Corrector over vocabulary. Empty and whitespace-only entries
// are discarded. A nil or empty vocabulary yields a corrector whose Correct
// returns its input unchanged.
func New(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}

	for _, v := range vocabulary {
		canonical := strings.TrimSpace(v)
		if canonical == "" {
			continue
		}
		lower := strings.ToLower(canonical)
		tokens := strings.Fields(lower)
		c.terms = append(c.terms, term{
			canonical: canonical,
			lower:     lower,
			concat:    strings.Join(tokens, ""),
			tokens:    tokens,
			codes:     codesForTokens(tokens),
		})
		if len(tokens) > c.maxTermWords {
			c.maxTermWords = len(tokens)
		}
	}
	return c
}

// Correct scans text for vocabulary matches and returns the corrected text
// together with the corrections applied, in order of appearance.
//
// The scan walks whitespace-separated tokens left to right, testing n-gram
// windows from the longest vocabulary term down to a single token and
// accepting the longest window that matches. Leading and trailing punctuation
// on the window edges is preserved around the replacement. An exact
// (case-insensitive) hit on a vocabulary term still normalizes it to the
// canonical spelling.
func (c *Corrector) Correct(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(c.terms) == 0 {
		return text, nil
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := c.maxTermWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := tokens[i : i+n]
			core, prefix, suffix := trimWindow(window)
			if core == "" {
				continue
			}

			t, conf, ok := c.match(core)
			if !ok {
				continue
			}

			output = append(output, prefix+t.canonical+suffix)
			if !strings.EqualFold(core, t.canonical) {
				corrections = append(corrections, Correction{
					Original:   core,
					Corrected:  t.canonical,
					Confidence: conf,
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// match finds the best vocabulary term for the given window text. Phonetic
// candidates are preferred over pure-similarity ones; within each group the
// highest admitted score wins.
func (c *Corrector) match(window string) (term, float64, bool) {
	windowLower := strings.ToLower(window)
	windowTokens := strings.Fields(windowLower)
	windowCodes := codesForTokens(windowTokens)
	windowConcat := strings.Join(windowTokens, "")

	var (
		best         term
		bestScore    float64
		bestPhonetic bool
		found        bool
	)

	for _, t := range c.terms {
		phonetic := codesOverlap(windowCodes, t.codes)
		score, ok := c.windowScore(windowTokens, windowLower, windowConcat, t, phonetic)
		if !ok {
			continue
		}

		if phonetic {
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic, found = t, score, true, true
			}
		} else if !bestPhonetic && score > bestScore {
			best, bestScore, found = t, score, true
		}
	}

	return best, bestScore, found
}

// windowScore scores the window against t as a whole and reports whether it
// clears the admission threshold.
//
// A window with the same token count as the term is scored on the full
// strings. A token-count mismatch means the STT engine split or fused word
// boundaries ("metro prolol" for "metoprolol"), so the space-stripped
// concatenations are compared under the stricter fuzzy threshold, and every
// window token must additionally resemble part of the term. Single-token
// scores never admit a window on their own: a high-scoring token cannot drag
// unrelated neighbors into the replacement.
func (c *Corrector) windowScore(windowTokens []string, windowLower, windowConcat string, t term, phonetic bool) (float64, bool) {
	if len(windowTokens) == len(t.tokens) {
		score := matchr.JaroWinkler(windowLower, t.lower, false)
		threshold := c.fuzzyThreshold
		if phonetic {
			threshold = c.phoneticThreshold
		}
		return score, score >= threshold
	}

	score := matchr.JaroWinkler(windowConcat, t.concat, false)
	if score < c.fuzzyThreshold {
		return score, false
	}
	for _, it := range windowTokens {
		best := 0.0
		for _, tt := range t.tokens {
			if s := matchr.JaroWinkler(it, tt, false); s > best {
				best = s
			}
		}
		if best < c.phoneticThreshold {
			return score, false
		}
	}
	return score, true
}

// trimWindow joins a token window and splits off leading/trailing punctuation
// so that "metoprolol," matches "metoprolol" and the comma survives the
// replacement. Inner tokens keep their punctuation; a window whose core is
// pure punctuation returns "".
func trimWindow(window []string) (core, prefix, suffix string) {
	joined := strings.Join(window, " ")
	trimmed := strings.TrimLeft(joined, punctuation)
	prefix = joined[:len(joined)-len(trimmed)]
	core = strings.TrimRight(trimmed, punctuation)
	suffix = trimmed[len(core):]
	return core, prefix, suffix
}

const punctuation = ".,;:!?()[]\"'"

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

