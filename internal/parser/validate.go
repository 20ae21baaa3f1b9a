package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"Exam-Prep-Assessment-Backend/internal/model"

	"github.com/xeipuuv/gojsonschema"
)

var ErrPlaceholder = errors.New("placeholder text")

const mcqSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["kind", "question", "marks", "options", "correct_answer", "explanation"],
  "properties": {
    "kind": {"const": "mcq"},
    "question": {"type": "string", "minLength": 1},
    "marks": {"type": "number", "exclusiveMinimum": 0},
    "options": {
      "type": "object",
      "minProperties": 2,
      "additionalProperties": {"type": "string", "minLength": 1}
    },
    "correct_answer": {"type": "string", "pattern": "^[A-H]$"},
    "explanation": {"type": "string", "minLength": 1}
  }
}`

const descriptiveSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["kind", "question", "marks"],
  "properties": {
    "kind": {"const": "descriptive"},
    "question": {"type": "string", "minLength": 1},
    "marks": {"type": "number", "exclusiveMinimum": 0},
    "model_answer": {"type": "string"},
    "key_points": {"type": "array", "items": {"type": "string", "minLength": 1}}
  },
  "anyOf": [
    {"required": ["key_points"], "properties": {"key_points": {"minItems": 1}}},
    {"required": ["model_answer"], "properties": {"model_answer": {"minLength": 1}}}
  ]
}`

const labelSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["kind", "question", "marks", "labels"],
  "properties": {
    "kind": {"const": "diagram_label"},
    "question": {"type": "string", "minLength": 1},
    "marks": {"type": "number", "exclusiveMinimum": 0},
    "labels": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {"type": "string", "minLength": 1}
    }
  }
}`

var schemas = map[model.Kind]*gojsonschema.Schema{
	model.KindSingleBestAnswer: mustSchema(mcqSchema),
	model.KindDescriptive:      mustSchema(descriptiveSchema),
	model.KindDiagramLabel:     mustSchema(labelSchema),
}

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid item schema: %v", err))
	}
	return schema
}

var placeholderMarkers = []string{
	"lorem ipsum",
	"placeholder",
	"question text",
	"question here",
	"sample question",
	"insert question",
	"[insert",
	"<question>",
	"todo",
	"xxx",
}

var placeholderOption = regexp.MustCompile(`(?i)^\s*(option\s+[a-h]|choice\s+[a-h]|[a-h])\s*$`)

// Validator decides whether a decoded item is usable.
type Validator struct {
	MinPromptLength int
}

// Check returns nil for a usable item. Structural problems wrap
// model.ErrInvalidItem, generic filler text wraps ErrPlaceholder.
func (v Validator) Check(item model.QuestionItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	schema, ok := schemas[item.Kind]
	if !ok {
		return fmt.Errorf("%w: no schema for kind %q", model.ErrInvalidItem, item.Kind)
	}
	res, err := schema.Validate(gojsonschema.NewGoLoader(item))
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidItem, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", model.ErrInvalidItem, strings.Join(msgs, "; "))
	}

	q := strings.TrimSpace(item.Question)
	if utf8.RuneCountInString(q) < v.MinPromptLength {
		return fmt.Errorf("%w: question text too short", model.ErrInvalidItem)
	}
	if marker, ok := containsPlaceholder(q); ok {
		return fmt.Errorf("%w: question contains %q", ErrPlaceholder, marker)
	}
	for _, k := range item.Options.Keys() {
		if opt, _ := item.Options.Get(k); placeholderOption.MatchString(opt) {
			return fmt.Errorf("%w: option %s is %q", ErrPlaceholder, k, opt)
		}
	}
	return nil
}

// Filter keeps the items that pass Check.
func (v Validator) Filter(items []model.QuestionItem) (valid []model.QuestionItem, rejected []error) {
	for _, item := range items {
		if err := v.Check(item); err != nil {
			rejected = append(rejected, err)
			continue
		}
		valid = append(valid, item)
	}
	return valid, rejected
}

func containsPlaceholder(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, m := range placeholderMarkers {
		if strings.Contains(lower, m) {
			return m, true
		}
	}
	return "", false
}
