package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"Exam-Prep-Assessment-Backend/internal/model"

	json "github.com/goccy/go-json"
)

var choicePrefix = regexp.MustCompile(`^\s*\(?([A-Ha-h])[\)\.:]\s+`)

// record is the loose shape models return. Field aliases and alternative
// encodings are folded into a model.QuestionItem by toItem.
type record struct {
	Kind          string          `json:"kind"`
	Type          string          `json:"type"`
	Question      string          `json:"question"`
	Prompt        string          `json:"prompt"`
	QuestionText  string          `json:"question_text"`
	Scenario      string          `json:"scenario"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer string          `json:"correct_answer"`
	Answer        string          `json:"answer"`
	Explanation   string          `json:"explanation"`
	Labels        json.RawMessage `json:"labels"`
	ModelAnswer   string          `json:"model_answer"`
	KeyPoints     json.RawMessage `json:"key_points"`
	WordLimit     string          `json:"word_limit"`
	Difficulty    string          `json:"difficulty"`
	Marks         json.RawMessage `json:"marks"`
}

// Parse recovers the objects in text and decodes them as items. The kind of a
// record comes from its own kind field when valid, otherwise from expected.
// Undecodable records are skipped.
func Parse(text string, expected model.Kind) []model.QuestionItem {
	objs := ExtractObjects(text)
	items := make([]model.QuestionItem, 0, len(objs))
	for _, raw := range objs {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		item, err := r.toItem(expected)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

func (r record) toItem(expected model.Kind) (model.QuestionItem, error) {
	item := model.QuestionItem{
		Kind:          expected,
		Question:      firstNonEmpty(r.Question, r.Prompt, r.QuestionText),
		Explanation:   strings.TrimSpace(r.Explanation),
		ModelAnswer:   strings.TrimSpace(r.ModelAnswer),
		CorrectAnswer: model.NormalizeChoice(firstNonEmpty(r.CorrectAnswer, r.Answer)),
		WordLimit:     strings.TrimSpace(r.WordLimit),
		Difficulty:    strings.TrimSpace(r.Difficulty),
	}
	if k := model.Kind(strings.ToLower(strings.TrimSpace(firstNonEmpty(r.Kind, r.Type)))); k.Valid() {
		item.Kind = k
	}
	if s := strings.TrimSpace(r.Scenario); s != "" && !strings.Contains(item.Question, s) {
		item.Question = s + "\n\n" + item.Question
	}

	item.Marks = decodeMarks(r.Marks)

	var err error
	switch item.Kind {
	case model.KindSingleBestAnswer:
		if item.Options, err = decodeOptions(r.Options); err != nil {
			return item, err
		}
		item.CorrectAnswer = resolveChoice(item.Options, item.CorrectAnswer)
	case model.KindDiagramLabel:
		if item.Labels, err = decodeLabels(r.Labels); err != nil {
			return item, err
		}
	case model.KindDescriptive:
		if item.KeyPoints, err = decodeKeyPoints(r.KeyPoints); err != nil {
			return item, err
		}
		item.CorrectAnswer = ""
	}
	return item, nil
}

// decodeOptions accepts {"A": "..."} or ["A) ...", "..."]; list entries get
// letter keys in order, with any "A)" style prefix removed.
func decodeOptions(raw json.RawMessage) (*model.OrderedMap, error) {
	if isNull(raw) {
		return nil, nil
	}
	switch firstByte(raw) {
	case '{':
		var m model.OrderedMap
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		out := model.NewOrderedMap()
		for _, k := range m.Keys() {
			v, _ := m.Get(k)
			out.Set(model.NormalizeChoice(k), strings.TrimSpace(v))
		}
		return out, nil
	case '[':
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		out := model.NewOrderedMap()
		for i, v := range list {
			key := string(rune('A' + i))
			if m := choicePrefix.FindStringSubmatch(v); m != nil {
				key = strings.ToUpper(m[1])
				v = v[len(m[0]):]
			}
			out.Set(key, strings.TrimSpace(v))
		}
		return out, nil
	}
	return nil, fmt.Errorf("options: unsupported encoding")
}

// decodeLabels accepts {"1": "Aorta"} or [{"label": "1", "name": "Aorta"}].
func decodeLabels(raw json.RawMessage) (*model.OrderedMap, error) {
	if isNull(raw) {
		return nil, nil
	}
	switch firstByte(raw) {
	case '{':
		var m model.OrderedMap
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		out := model.NewOrderedMap()
		for _, k := range m.Keys() {
			v, _ := m.Get(k)
			out.Set(strings.TrimSpace(k), strings.TrimSpace(v))
		}
		return out, nil
	case '[':
		var list []struct {
			Label  string `json:"label"`
			Key    string `json:"key"`
			Name   string `json:"name"`
			Answer string `json:"answer"`
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		out := model.NewOrderedMap()
		for i, l := range list {
			key := firstNonEmpty(l.Label, l.Key, strconv.Itoa(i+1))
			out.Set(key, firstNonEmpty(l.Name, l.Answer))
		}
		return out, nil
	}
	return nil, fmt.Errorf("labels: unsupported encoding")
}

// decodeKeyPoints accepts a list of strings or a single delimited string.
func decodeKeyPoints(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var points []string
	switch firstByte(raw) {
	case '[':
		if err := json.Unmarshal(raw, &points); err != nil {
			return nil, err
		}
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		points = strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '\n' || r == '•' })
	default:
		return nil, fmt.Errorf("key_points: unsupported encoding")
	}
	out := points[:0]
	for _, p := range points {
		if p = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(p), "-*")); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// resolveChoice maps "B) text", "b" or the option text itself to its key.
func resolveChoice(options *model.OrderedMap, answer string) string {
	if _, ok := options.Get(answer); ok || answer == "" {
		return answer
	}
	if m := choicePrefix.FindStringSubmatch(answer + " "); m != nil {
		if key := strings.ToUpper(m[1]); options.Len() == 0 {
			return key
		} else if _, ok := options.Get(key); ok {
			return key
		}
	}
	for _, k := range options.Keys() {
		if v, _ := options.Get(k); strings.EqualFold(strings.TrimSpace(v), answer) {
			return k
		}
	}
	return answer
}

// decodeMarks reads a number or a "3 marks" style string; anything else is 0.
func decodeMarks(raw json.RawMessage) float64 {
	if isNull(raw) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	f, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return f
}

func isNull(raw json.RawMessage) bool {
	t := strings.TrimSpace(string(raw))
	return t == "" || t == "null"
}

func firstByte(raw json.RawMessage) byte {
	t := strings.TrimSpace(string(raw))
	if t == "" {
		return 0
	}
	return t[0]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
