package evaluation

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"Exam-Prep-Assessment-Backend/internal/model"
)

const StrategyKeyword = "keyword"

var stopwords = map[string]struct{}{
	"about": {}, "also": {}, "been": {}, "being": {}, "both": {}, "could": {},
	"does": {}, "each": {}, "from": {}, "have": {}, "into": {}, "more": {},
	"most": {}, "only": {}, "other": {}, "should": {}, "some": {}, "such": {},
	"than": {}, "that": {}, "their": {}, "them": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "those": {}, "very": {}, "were": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {}, "will": {},
	"with": {}, "would": {},
}

// KeywordStrategy matches key points by the non-trivial words they share with
// the answer. It never fails.
type KeywordStrategy struct{}

func (KeywordStrategy) Name() string { return StrategyKeyword }

func (KeywordStrategy) Score(_ context.Context, _ model.QuestionItem, points []string, answer Answer) (*Coverage, error) {
	text := strings.ToLower(answer.Text)
	cov := &Coverage{Strategy: StrategyKeyword}
	for _, p := range points {
		if keywordMatch(text, keywords(p)) {
			cov.Matched = append(cov.Matched, p)
		} else {
			cov.Missing = append(cov.Missing, p)
		}
	}
	if len(points) > 0 {
		cov.Ratio = float64(len(cov.Matched)) / float64(len(points))
	}
	return cov, nil
}

// keywordMatch: points with more than two keywords need two hits, shorter
// ones need one, and a point with no keywords at all counts as covered.
func keywordMatch(answer string, kws []string) bool {
	need := 2
	switch {
	case len(kws) == 0:
		return true
	case len(kws) <= 2:
		need = 1
	}
	hits := 0
	for _, kw := range kws {
		if strings.Contains(answer, kw) {
			hits++
			if hits >= need {
				return true
			}
		}
	}
	return false
}

// keywords returns the distinct lower-cased words longer than three letters
// that are not stopwords.
func keywords(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(s), isSeparator) {
		if utf8.RuneCountInString(w) <= 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-'
}
