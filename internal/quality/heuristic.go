package quality

import (
	"context"
	"math"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"are": {}, "was": {}, "you": {}, "your": {}, "from": {}, "into": {},
	"about": {}, "please": {}, "can": {}, "will": {}, "some": {}, "what": {},
}

// Preambles that signal the model answered instead of rewriting.
var answerPreambles = []string{
	"sure", "certainly", "of course", "here is", "here's", "as an ai",
	"i can't", "i cannot", "okay,", "ok,",
}

// Heuristic is a local scorer with no model behind it. It rewards candidates
// that keep the original's content words and add detail, and penalizes
// unchanged text and conversational answers.
type Heuristic struct{}

// Score implements Gate.
func (Heuristic) Score(_ context.Context, original, generated string) (float64, error) {
	gen := strings.TrimSpace(generated)
	if gen == "" {
		return 0, nil
	}
	if normalize(gen) == normalize(original) {
		return 0.05, nil
	}

	origWords := strings.Fields(original)
	genWords := strings.Fields(gen)

	ratio := float64(len(genWords)) / math.Max(1, float64(len(origWords)))
	lengthTerm := math.Max(-3, math.Min(3, math.Log2(ratio)))

	z := -2 + 3*overlap(original, gen) + lengthTerm
	if looksLikeAnswer(gen) {
		z -= 2.5
	}
	return 1 / (1 + math.Exp(-z)), nil
}

func overlap(original, generated string) float64 {
	want := contentWords(original)
	if len(want) == 0 {
		return 1
	}
	have := contentWords(generated)
	hits := 0
	for w := range want {
		if _, ok := have[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}

func contentWords(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		words[tok] = struct{}{}
	}
	return words
}

func looksLikeAnswer(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range answerPreambles {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
