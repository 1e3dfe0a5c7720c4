// Package symptoms matches free-form Spanish text against a lexicon of
// physical symptom terms, tolerating missing accents and typos.
//
// Matching runs in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the accent-folded input and for each lexicon term; a term with any
//     overlapping code becomes a candidate.
//
//  2. Jaro-Winkler ranking: candidates are ranked by string similarity on the
//     folded text, and the best one above the phonetic threshold wins. When
//     no phonetic candidate exists, a pure similarity pass with a stricter
//     threshold catches near-exact spellings.
//
// Multi-word terms ("dolor de cabeza") are handled by comparing token pairs
// as well as full and concatenated strings.
package symptoms

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.72
	defaultFuzzyThreshold    = 0.88

	// Unigrams shorter than this are never matched; Spanish connectives
	// ("de", "la", "el") would otherwise collide with everything.
	minTokenLen = 4
)

// DefaultLexicon lists the symptom terms the companion recognises out of the
// box. Callers may supply their own lexicon instead.
var DefaultLexicon = []string{
	"ansiedad",
	"bruxismo",
	"ciática",
	"contractura",
	"dermatitis",
	"dolor de cabeza",
	"dolor de espalda",
	"dolor de estómago",
	"dolor de garganta",
	"dolor de rodillas",
	"fatiga",
	"gastritis",
	"insomnio",
	"mareo",
	"migraña",
	"náuseas",
	"palpitaciones",
	"presión en el pecho",
	"tensión en el cuello",
	"vértigo",
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity for a phonetically
// matched term. Default: 0.72.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum similarity for the non-phonetic
// fallback pass. Default: 0.88.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher matches text against a fixed symptom lexicon. It is read-only
// after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64

	terms []term
}

type term struct {
	canonical string
	folded    string
	tokens    []string
	codes     map[string]struct{}
}

// New builds a Matcher over the given lexicon. An empty lexicon falls back
// to DefaultLexicon.
func New(lexicon []string, opts ...Option) *Matcher {
	if len(lexicon) == 0 {
		lexicon = DefaultLexicon
	}
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	for _, canonical := range lexicon {
		folded := Fold(canonical)
		tokens := strings.Fields(folded)
		m.terms = append(m.terms, term{
			canonical: canonical,
			folded:    folded,
			tokens:    tokens,
			codes:     codesFor(tokens),
		})
	}
	return m
}

// Match finds the lexicon term most similar to phrase. When matched is
// false, canonical is empty and score is 0.
func (m *Matcher) Match(phrase string) (canonical string, score float64, matched bool) {
	folded := Fold(phrase)
	tokens := strings.Fields(folded)
	if len(tokens) == 0 {
		return "", 0, false
	}
	inputCodes := codesFor(tokens)

	var (
		best         term
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range m.terms {
		phonetic := codesOverlap(inputCodes, t.codes)
		s := similarity(tokens, t.tokens, folded, t.folded)

		switch {
		case phonetic && s >= m.phoneticThreshold:
			if !bestPhonetic || s > bestScore {
				best, bestScore, bestPhonetic = t, s, true
			}
		case !phonetic && !bestPhonetic && s >= m.fuzzyThreshold && s > bestScore:
			best, bestScore = t, s
		}
	}

	if best.canonical == "" {
		return "", 0, false
	}
	return best.canonical, bestScore, true
}

// Tag scans free text and returns every recognised symptom, deduplicated in
// first-appearance order. Candidate phrases are the text's word n-grams up
// to the longest lexicon term.
func (m *Matcher) Tag(text string) []string {
	tokens := strings.Fields(Fold(text))
	maxN := 1
	for _, t := range m.terms {
		if len(t.tokens) > maxN {
			maxN = len(t.tokens)
		}
	}

	var found []string
	seen := make(map[string]struct{})
	for i := range tokens {
		for n := maxN; n >= 1; n-- {
			if i+n > len(tokens) {
				continue
			}
			phrase := strings.Join(tokens[i:i+n], " ")
			if n == 1 && len([]rune(phrase)) < minTokenLen {
				continue
			}
			canonical, _, ok := m.Match(phrase)
			if !ok {
				continue
			}
			if _, dup := seen[canonical]; !dup {
				seen[canonical] = struct{}{}
				found = append(found, canonical)
			}
			break
		}
	}
	return found
}

// Fold lowercases s and strips the Spanish diacritics, mapping ñ to n, so
// that accent-less typing matches the lexicon.
func Fold(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case 'á':
			r = 'a'
		case 'é':
			r = 'e'
		case 'í':
			r = 'i'
		case 'ó':
			r = 'o'
		case 'ú', 'ü':
			r = 'u'
		case 'ñ':
			r = 'n'
		case '¿', '¡':
			continue
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func codesFor(tokens []string) map[string]struct{} {
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

// similarity is the best Jaro-Winkler score across full strings, space-free
// concatenations, and all token pairs.
func similarity(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		c1 := strings.Join(inputTokens, "")
		c2 := strings.Join(termTokens, "")
		if s := matchr.JaroWinkler(c1, c2, false); s > score {
			score = s
		}
	}
	for _, it := range inputTokens {
		for _, tt := range termTokens {
			if s := matchr.JaroWinkler(it, tt, false); s > score {
				score = s
			}
		}
	}
	return score
}
