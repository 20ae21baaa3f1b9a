package evaluation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxListedPoints = 3
	maxPointRunes   = 60
)

// Remark is the qualitative comment for a score ratio in [0, 1].
func Remark(ratio float64) string {
	switch {
	case ratio >= 0.90:
		return "Excellent! You have a strong grasp of this topic."
	case ratio >= 0.75:
		return "Good work. Your answer covers most of what was expected."
	case ratio >= 0.60:
		return "Fair attempt. Some important ideas are missing."
	case ratio >= 0.40:
		return "Partial understanding shown. Review the missing points."
	default:
		return "Please review the model answer and study the key concepts."
	}
}

// Feedback renders the remark followed by the covered and missing points and,
// when known, the semantic similarity.
func Feedback(ratio float64, matched, missing []string, similarity *float64) string {
	var b strings.Builder
	b.WriteString(Remark(ratio))
	if total := len(matched) + len(missing); total > 0 {
		fmt.Fprintf(&b, " You covered %d/%d key points.", len(matched), total)
	}
	if len(matched) > 0 {
		b.WriteString(" Covered: " + listPoints(matched) + ".")
	}
	if len(missing) > 0 {
		b.WriteString(" Missing: " + listPoints(missing) + ".")
	}
	if similarity != nil {
		fmt.Fprintf(&b, " Similarity to the model answer: %.0f%%.", *similarity*100)
	}
	return b.String()
}

func listPoints(points []string) string {
	shown := points
	if len(shown) > maxListedPoints {
		shown = shown[:maxListedPoints]
	}
	parts := make([]string, 0, len(shown)+1)
	for _, p := range shown {
		parts = append(parts, shorten(p, maxPointRunes))
	}
	if extra := len(points) - len(shown); extra > 0 {
		parts = append(parts, fmt.Sprintf("+%d more", extra))
	}
	return strings.Join(parts, "; ")
}

func shorten(s string, n int) string {
	s = strings.TrimRight(strings.TrimSpace(s), ".")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

// Grade maps a percentage to a letter grade.
func Grade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A+"
	case percentage >= 80:
		return "A"
	case percentage >= 70:
		return "B"
	case percentage >= 60:
		return "C"
	case percentage >= 50:
		return "D"
	default:
		return "F"
	}
}
