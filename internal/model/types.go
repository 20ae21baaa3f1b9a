package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidItem marks an item that is missing the fields its kind is scored by.
// It is a caller bug, not a data condition.
var ErrInvalidItem = errors.New("invalid question item")

type Kind string

const (
	KindSingleBestAnswer Kind = "mcq"
	KindDescriptive      Kind = "descriptive"
	KindDiagramLabel     Kind = "diagram_label"
)

func (k Kind) Valid() bool {
	switch k {
	case KindSingleBestAnswer, KindDescriptive, KindDiagramLabel:
		return true
	}
	return false
}

// Source records where a generation result came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

type Curriculum struct {
	Board   string `json:"board,omitempty" mapstructure:"board"`
	Class   int    `json:"class,omitempty" mapstructure:"class"`
	Subject string `json:"subject,omitempty" mapstructure:"subject"`
	Chapter string `json:"chapter,omitempty" mapstructure:"chapter"`
}

// QuestionItem is a single assessment item. Kind is the discriminator: options and
// correct_answer belong to single-best-answer items, labels to diagram-label items,
// model_answer and key_points to descriptive items.
type QuestionItem struct {
	Kind          Kind        `json:"kind"`
	Question      string      `json:"question"`
	Marks         float64     `json:"marks"`
	Options       *OrderedMap `json:"options,omitempty"`
	CorrectAnswer string      `json:"correct_answer,omitempty"`
	Explanation   string      `json:"explanation,omitempty"`
	Labels        *OrderedMap `json:"labels,omitempty"`
	ModelAnswer   string      `json:"model_answer,omitempty"`
	KeyPoints     []string    `json:"key_points,omitempty"`
	WordLimit     string      `json:"word_limit,omitempty"`
	Difficulty    string      `json:"difficulty,omitempty"`
	QuestionType  string      `json:"question_type,omitempty"`
	Reference     string      `json:"reference,omitempty"`
	Fallback      bool        `json:"fallback,omitempty"`
	Curriculum
}

// Validate checks the structural contract of the item for its kind.
func (q *QuestionItem) Validate() error {
	if q == nil {
		return fmt.Errorf("%w: nil item", ErrInvalidItem)
	}
	if !q.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidItem, q.Kind)
	}
	if q.Marks <= 0 {
		return fmt.Errorf("%w: marks must be positive, got %v", ErrInvalidItem, q.Marks)
	}
	switch q.Kind {
	case KindSingleBestAnswer:
		if q.Options.Len() == 0 {
			return fmt.Errorf("%w: single-best-answer item has no options", ErrInvalidItem)
		}
		if q.Labels.Len() > 0 {
			return fmt.Errorf("%w: single-best-answer item carries labels", ErrInvalidItem)
		}
		if _, ok := q.Options.Get(NormalizeChoice(q.CorrectAnswer)); !ok {
			return fmt.Errorf("%w: correct answer %q is not an option key", ErrInvalidItem, q.CorrectAnswer)
		}
	case KindDiagramLabel:
		if q.Labels.Len() == 0 {
			return fmt.Errorf("%w: diagram-label item has no labels", ErrInvalidItem)
		}
		if q.Options.Len() > 0 {
			return fmt.Errorf("%w: diagram-label item carries options", ErrInvalidItem)
		}
	case KindDescriptive:
		if q.Options.Len() > 0 || q.Labels.Len() > 0 {
			return fmt.Errorf("%w: descriptive item carries options or labels", ErrInvalidItem)
		}
		if len(q.KeyPoints) == 0 && strings.TrimSpace(q.ModelAnswer) == "" {
			return fmt.Errorf("%w: descriptive item has neither key points nor a model answer", ErrInvalidItem)
		}
	}
	return nil
}

// NormalizeChoice makes choice keys comparable ("  b " -> "B").
func NormalizeChoice(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// GenerationRequest is built per user action and never persisted.
type GenerationRequest struct {
	Content      string     `json:"content"`
	TopicHint    string     `json:"topic_hint,omitempty"`
	Count        int        `json:"count"`
	Difficulty   string     `json:"difficulty"`
	QuestionType string     `json:"question_type"`
	Kind         Kind       `json:"kind,omitempty"`
	Scenario     bool       `json:"scenario,omitempty"`
	Curriculum   Curriculum `json:"curriculum"`
	Images       []Image    `json:"images,omitempty"`
}

type GenerationResult struct {
	Items    []QuestionItem `json:"items"`
	Source   Source         `json:"source"`
	Advisory string         `json:"advisory,omitempty"`
	CacheKey string         `json:"cache_key,omitempty"`
}

// Submission is a student's response to one item. Only the field matching the
// item kind is read.
type Submission struct {
	Choice string            `json:"choice,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
	Text   string            `json:"text,omitempty"`
}

type EvaluationResult struct {
	Score              float64  `json:"score"`
	MaxScore           float64  `json:"max_score"`
	Percentage         float64  `json:"percentage"`
	Correct            *bool    `json:"correct,omitempty"`
	Feedback           string   `json:"feedback"`
	MatchedPoints      []string `json:"matched_points,omitempty"`
	MissingPoints      []string `json:"missing_points,omitempty"`
	SemanticSimilarity *float64 `json:"semantic_similarity,omitempty"`
	WordCount          *int     `json:"word_count,omitempty"`
	Strategy           string   `json:"strategy,omitempty"`
}

// SetScore stores score and max and derives the percentage.
func (r *EvaluationResult) SetScore(score, max float64) {
	r.Score = score
	r.MaxScore = max
	if max > 0 {
		r.Percentage = 100 * score / max
	} else {
		r.Percentage = 0
	}
}

type CacheEntry struct {
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Age reports how old the entry is at now.
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

type AttemptReport struct {
	ID         string             `json:"id"`
	Student    string             `json:"student,omitempty"`
	Results    []EvaluationResult `json:"results"`
	TotalScore float64            `json:"total_score"`
	MaxScore   float64            `json:"max_score"`
	Percentage float64            `json:"percentage"`
	Grade      string             `json:"grade"`
	Curriculum Curriculum         `json:"curriculum"`
	Timestamp  time.Time          `json:"timestamp"`
}
