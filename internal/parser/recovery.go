package parser

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	json "github.com/goccy/go-json"
)

var (
	fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*\\n?(.*?)```")
	promptField = regexp.MustCompile(`"(question|prompt|question_text)"\s*:`)
)

// wrapper keys models sometimes put around the item array
var wrapperKeys = []string{"questions", "items", "data", "results"}

// ExtractObjects pulls the JSON objects out of raw model output. It tries, in
// order: the fence-stripped text as is, the outermost [...] span, the array cut
// back to its last complete object, the same three after repairing trailing
// commas and control characters, and finally every standalone object that has a
// question field. It never fails; no recoverable data means an empty result.
func ExtractObjects(text string) []json.RawMessage {
	body := stripFences(text)
	if body == "" {
		return nil
	}

	if objs, ok := structural(body); ok {
		return objs
	}
	if objs, ok := structural(repair(body)); ok {
		return objs
	}
	return fragments(body)
}

func structural(body string) ([]json.RawMessage, bool) {
	if objs, ok := parseArray(body); ok && len(objs) > 0 {
		return objs, true
	}
	if s, e := strings.Index(body, "["), strings.LastIndex(body, "]"); s >= 0 && e > s {
		if objs, ok := parseArray(body[s : e+1]); ok && len(objs) > 0 {
			return objs, true
		}
	}
	if closed, ok := closeTruncated(body); ok {
		if objs, ok := parseArray(closed); ok && len(objs) > 0 {
			return objs, true
		}
	}
	return nil, false
}

// stripFences returns the contents of the first fenced block, or the text with
// any dangling fence markers removed.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fencedBlock.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.ContainsAny(text[:nl], "[{") {
			text = text[nl+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// parseArray accepts an array of objects, a single object, or an object that
// wraps the array under a well known key. Non-object array elements are dropped.
func parseArray(s string) ([]json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	switch s[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, false
		}
		return onlyObjects(arr), true
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, false
		}
		for _, k := range wrapperKeys {
			if inner, ok := obj[k]; ok {
				if objs, ok := parseArray(string(inner)); ok {
					return objs, true
				}
			}
		}
		return []json.RawMessage{json.RawMessage(s)}, true
	}
	return nil, false
}

func onlyObjects(arr []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(arr))
	for _, el := range arr {
		if t := bytes.TrimSpace(el); len(t) > 0 && t[0] == '{' {
			out = append(out, t)
		}
	}
	return out
}

// closeTruncated finds the first array holding an object and returns it,
// cut back to its last fully closed top level object and closed when the
// text ends inside it. Bracketed prose such as "[1]" is skipped.
func closeTruncated(s string) (string, bool) {
	for from := 0; from < len(s); {
		off := strings.IndexByte(s[from:], '[')
		if off < 0 {
			return "", false
		}
		span, end, ok := closeArrayAt(s, from+off)
		if ok {
			return span, true
		}
		if end < 0 {
			return "", false
		}
		from = end + 1
	}
	return "", false
}

// closeArrayAt scans the array opening at start. It reports the span when the
// array holds at least one object; otherwise end is where the array closed, or
// -1 when the text ran out.
func closeArrayAt(s string, start int) (span string, end int, ok bool) {
	depth := 0
	inString, escaped := false, false
	lastClose := -1
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if c == '}' && depth == 1 {
				lastClose = i
			}
			if depth <= 0 {
				if lastClose < 0 {
					return "", i, false
				}
				return s[start : i+1], i, true
			}
		}
	}
	if lastClose < 0 {
		return "", -1, false
	}
	return s[start:lastClose+1] + "]", -1, true
}

// repair drops trailing commas before a closer and control characters outside
// strings, and escapes raw control characters inside strings.
func repair(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\t':
				b.WriteString(`\t`)
			case c < 0x20:
			default:
				b.WriteByte(c)
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == ',':
			j := i + 1
			for j < len(s) && unicode.IsSpace(rune(s[j])) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
		case c < 0x20 && c != '\n' && c != '\t' && c != '\r':
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// fragments salvages every balanced {...} that carries a question field and
// parses on its own, repaired if needed.
func fragments(s string) []json.RawMessage {
	var out []json.RawMessage
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end := matchBrace(s, i)
		if end < 0 {
			continue
		}
		candidate := s[i : end+1]
		if !promptField.MatchString(candidate) {
			continue
		}
		if obj, ok := parseObject(candidate); ok {
			out = append(out, obj)
			i = end
		}
	}
	return out
}

func parseObject(s string) (json.RawMessage, bool) {
	for _, c := range []string{s, repair(s)} {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal([]byte(c), &probe); err == nil {
			return json.RawMessage(c), true
		}
	}
	return nil, false
}

func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
