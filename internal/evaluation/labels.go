package evaluation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"Exam-Prep-Assessment-Backend/internal/model"

	"golang.org/x/text/cases"
)

const (
	labelOverlapThreshold = 0.5
	// a submission shorter than this must cover half the expected name to
	// count as a partial name
	minLabelFragment = 4
)

func evaluateLabels(item model.QuestionItem, submitted map[string]string) model.EvaluationResult {
	keys := item.Labels.Keys()
	share := item.Marks / float64(len(keys))

	var raw float64
	var matched, missing []string
	for _, k := range keys {
		expected, _ := item.Labels.Get(k)
		got := lookupLabel(submitted, k)
		if labelMatches(got, expected) {
			raw += share
			matched = append(matched, fmt.Sprintf("%s: %s", k, expected))
			continue
		}
		if strings.TrimSpace(got) == "" {
			got = "(no answer)"
		}
		missing = append(missing, fmt.Sprintf("%s: expected %s, got %s", k, expected, got))
	}

	var res model.EvaluationResult
	res.SetScore(clamp(roundHalf(raw), 0, item.Marks), item.Marks)
	res.MatchedPoints = matched
	res.MissingPoints = missing
	res.Feedback = Feedback(ratio(res), matched, missing, nil)
	res.Strategy = "label"
	return res
}

// lookupLabel finds the submission for a label key, tolerating case and
// whitespace differences in the key.
func lookupLabel(submitted map[string]string, key string) string {
	if v, ok := submitted[key]; ok {
		return v
	}
	want := fold(key)
	for k, v := range submitted {
		if fold(k) == want {
			return v
		}
	}
	return ""
}

// labelMatches accepts a submission containing the expected name, a
// non-trivial part of the expected name, or at least half of the expected
// name's longer words.
func labelMatches(submitted, expected string) bool {
	s, e := fold(submitted), fold(expected)
	if s == "" || e == "" {
		return false
	}
	if strings.Contains(s, e) {
		return true
	}
	if strings.Contains(e, s) {
		n := utf8.RuneCountInString(s)
		if n >= minLabelFragment || 2*n >= utf8.RuneCountInString(e) {
			return true
		}
	}
	want := longWords(e)
	if len(want) == 0 {
		return false
	}
	have := make(map[string]struct{})
	for _, w := range longWords(s) {
		have[w] = struct{}{}
	}
	hits := 0
	for _, w := range want {
		if _, ok := have[w]; ok {
			hits++
		}
	}
	return float64(hits)/float64(len(want)) >= labelOverlapThreshold
}

func longWords(s string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(s, isSeparator) {
		if utf8.RuneCountInString(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

func fold(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}
