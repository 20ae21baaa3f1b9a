package content

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

const (
	truncateRatio  = 0.95
	minKeepRatio   = 0.70
	paragraphBreak = "\n\n"
)

var paragraphSplitter = regexp.MustCompile(`\n\s*\n`)

// sentence terminators across the scripts we see in study material
var terminators = map[rune]bool{
	'.': true, '!': true, '?': true,
	'।': true, '॥': true,
	'。': true, '！': true, '？': true,
	'؟': true, '۔': true,
}

// Prepare fits text into maxLen characters. With a topic hint it first keeps only
// the paragraphs that mention the topic; oversized text is cut at a sentence or
// paragraph boundary when one is close enough to the cut point.
func Prepare(text, topic string, maxLen int) string {
	if maxLen <= 0 || runeLen(text) <= maxLen {
		return text
	}

	if topic = strings.TrimSpace(topic); topic != "" {
		if selected := selectParagraphs(text, topic); selected != "" {
			if runeLen(selected) <= maxLen {
				return selected
			}
			text = selected
		}
	}

	return truncate(text, maxLen)
}

func selectParagraphs(text, topic string) string {
	fold := cases.Fold()
	needle := fold.String(topic)

	var leading, other []string
	for _, p := range paragraphSplitter.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		folded := fold.String(p)
		if !strings.Contains(folded, needle) {
			continue
		}
		if strings.HasPrefix(folded, needle) {
			leading = append(leading, p)
		} else {
			other = append(other, p)
		}
	}
	return strings.Join(append(leading, other...), paragraphBreak)
}

func truncate(text string, maxLen int) string {
	runes := []rune(text)
	target := int(float64(maxLen) * truncateRatio)
	if target < 1 {
		target = 1
	}
	if target >= len(runes) {
		return text
	}
	cut := runes[:target]
	minKeep := int(float64(target) * minKeepRatio)

	for i := len(cut) - 1; i >= 0; i-- {
		if isBoundary(cut, i) {
			if i+1 >= minKeep {
				return strings.TrimRightFunc(string(cut[:i+1]), unicode.IsSpace)
			}
			break
		}
	}

	for i := len(cut) - 1; i > 0; i-- {
		if unicode.IsSpace(cut[i]) {
			return strings.TrimRightFunc(string(cut[:i]), unicode.IsSpace)
		}
	}

	return string(cut)
}

func isBoundary(r []rune, i int) bool {
	if terminators[r[i]] {
		return true
	}
	return r[i] == '\n' && i > 0 && r[i-1] == '\n'
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
