// Package query canonicalizes user questions before they are embedded:
// it strips stray punctuation, lowercases, and expands campus abbreviations.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ErrInvalidAbbreviation is returned when a dictionary entry would make
// preprocessing non-idempotent or cannot be matched as a whole word.
var ErrInvalidAbbreviation = errors.New("invalid abbreviation")

// Abbreviation maps a short form to its expansion.
type Abbreviation struct {
	Short string
	Long  string
}

// DefaultAbbreviations is the campus dictionary, applied in this order.
var DefaultAbbreviations = []Abbreviation{
	{"cs", "computer science"},
	{"cse", "computer science engineering"},
	{"ict", "information communication technology"},
	{"prof", "professor"},
	{"dept", "department"},
	{"sem", "semester"},
	{"reg", "registration"},
	{"lib", "library"},
	{"gym", "gymnasium"},
	{"univ", "university"},
	{"iut", "islamic university of technology"},
	{"fest", "festival"},
	{"comp", "competition"},
	{"regs", "registration"},
	{"info", "information"},
}

// DefaultMaxVariations is the number of alternate phrasings Variations adds.
const DefaultMaxVariations = 2

var (
	disallowed = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s?.,\-]`)
	word       = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]+`)
)

var interrogatives = map[string]bool{
	"what": true, "when": true, "where": true, "who": true, "how": true, "why": true,
}

// Normalizer rewrites queries into the form used for retrieval. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	abbreviations []Abbreviation
	maxVariations int
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithAbbreviations replaces the dictionary. Order is preserved.
func WithAbbreviations(abbrs []Abbreviation) Option {
	return func(n *Normalizer) {
		n.abbreviations = append([]Abbreviation(nil), abbrs...)
	}
}

// WithMaxVariations sets how many alternate phrasings Variations may add.
func WithMaxVariations(max int) Option {
	return func(n *Normalizer) {
		n.maxVariations = max
	}
}

// NewNormalizer builds a Normalizer with the default dictionary unless
// overridden. Keys must be single lowercase words and no expansion may
// contain a key as a whole word, so that Preprocess is idempotent.
func NewNormalizer(opts ...Option) (*Normalizer, error) {
	n := &Normalizer{
		abbreviations: append([]Abbreviation(nil), DefaultAbbreviations...),
		maxVariations: DefaultMaxVariations,
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.maxVariations < 0 {
		return nil, fmt.Errorf("max variations must not be negative: %d", n.maxVariations)
	}

	keys := make(map[string]bool, len(n.abbreviations))
	for _, a := range n.abbreviations {
		if a.Short == "" || a.Short != strings.ToLower(a.Short) || word.FindString(a.Short) != a.Short {
			return nil, fmt.Errorf("%w: %q is not a single lowercase word", ErrInvalidAbbreviation, a.Short)
		}
		if strings.TrimSpace(a.Long) == "" {
			return nil, fmt.Errorf("%w: %q has an empty expansion", ErrInvalidAbbreviation, a.Short)
		}
		if long := strings.ToLower(a.Long); Clean(long) != long {
			return nil, fmt.Errorf("%w: expansion of %q is not in cleaned form", ErrInvalidAbbreviation, a.Short)
		}
		keys[a.Short] = true
	}
	for i := range n.abbreviations {
		n.abbreviations[i].Long = strings.ToLower(n.abbreviations[i].Long)
	}
	for _, a := range n.abbreviations {
		for _, w := range word.FindAllString(a.Long, -1) {
			if keys[w] {
				return nil, fmt.Errorf("%w: expansion of %q contains %q", ErrInvalidAbbreviation, a.Short, w)
			}
		}
	}

	return n, nil
}

// Clean replaces characters other than letters, digits, underscore,
// whitespace and ? . , - with spaces and collapses whitespace runs.
func Clean(q string) string {
	q = disallowed.ReplaceAllString(q, " ")
	return strings.Join(strings.Fields(q), " ")
}

// ExpandAbbreviations lowercases q and expands dictionary words.
func (n *Normalizer) ExpandAbbreviations(q string) string {
	q = strings.ToLower(q)
	for _, a := range n.abbreviations {
		q = word.ReplaceAllStringFunc(q, func(w string) string {
			if w == a.Short {
				return a.Long
			}
			return w
		})
	}
	return q
}

// Preprocess cleans q and expands abbreviations. The result is lowercase and
// Preprocess(Preprocess(q)) == Preprocess(q).
func (n *Normalizer) Preprocess(q string) string {
	return n.ExpandAbbreviations(Clean(q))
}

// Variations returns q followed by up to the configured number of alternate
// phrasings: q without question marks, and "tell me about q" for short
// queries that do not already open with an interrogative.
func (n *Normalizer) Variations(q string) []string {
	variations := []string{q}

	if strings.Contains(q, "?") {
		if stripped := strings.Join(strings.Fields(strings.ReplaceAll(q, "?", "")), " "); stripped != "" {
			variations = append(variations, stripped)
		}
	}

	words := strings.Fields(q)
	if len(words) > 0 && len(words) <= 5 && !interrogatives[firstWord(words[0])] {
		variations = append(variations, "tell me about "+q)
	}

	if len(variations) > n.maxVariations+1 {
		variations = variations[:n.maxVariations+1]
	}
	return variations
}

func firstWord(w string) string {
	return strings.ToLower(strings.TrimRightFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
}
