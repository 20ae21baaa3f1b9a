package evaluation

import (
	"context"

	"Exam-Prep-Assessment-Backend/internal/model"
)

// Answer is a student's free-text answer. Vector is set when the answer was
// already embedded by a batch call.
type Answer struct {
	Text   string
	Vector []float32
}

// Coverage is how much of an item's reference content an answer covers.
type Coverage struct {
	Ratio      float64
	Matched    []string
	Missing    []string
	Similarity *float64
	Strategy   string
}

// Strategy scores a descriptive answer against the key points of an item.
// A nil Coverage with a nil error means the strategy declined.
type Strategy interface {
	Name() string
	Score(ctx context.Context, item model.QuestionItem, points []string, answer Answer) (*Coverage, error)
}
