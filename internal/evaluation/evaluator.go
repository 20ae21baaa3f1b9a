package evaluation

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"Exam-Prep-Assessment-Backend/internal/client"
	"Exam-Prep-Assessment-Backend/internal/config"
	"Exam-Prep-Assessment-Backend/internal/logger"
	"Exam-Prep-Assessment-Backend/internal/model"
	"Exam-Prep-Assessment-Backend/internal/monitoring"

	"go.uber.org/zap"
)

const (
	StrategyExact    = "exact"
	StrategyTooShort = "too_short"

	tooShortFeedback = "Answer is too short or empty. Please provide a more detailed response."
)

var sentenceEnd = regexp.MustCompile(`[.!?;\n।]+`)

// Evaluator scores submissions against question items. Descriptive answers go
// through the strategy chain in order; the first strategy that returns a
// coverage wins.
type Evaluator struct {
	strategies     []Strategy
	embedder       client.Embedder
	minAnswerChars int
	log            *zap.Logger
	metrics        *monitoring.Metrics
}

// NewEvaluator builds the chain. A nil embedder leaves keyword matching as the
// only descriptive strategy.
func NewEvaluator(cfg config.EvaluationConfig, embedder client.Embedder, log *zap.Logger, metrics *monitoring.Metrics) *Evaluator {
	e := &Evaluator{
		embedder:       embedder,
		minAnswerChars: cfg.MinAnswerChars,
		log:            logger.Component(log, "evaluator"),
		metrics:        metrics,
	}
	if embedder != nil {
		cache := NewEmbeddingCache(cfg.EmbeddingCacheCapacity)
		e.strategies = append(e.strategies, NewSemanticStrategy(embedder, cache,
			cfg.KeyPointThreshold, cfg.OverallWeight, cfg.KeyPointWeight, metrics))
	}
	e.strategies = append(e.strategies, KeywordStrategy{})
	return e
}

// Evaluate scores one submission. The only error is a contract violation on
// the item, wrapping model.ErrInvalidItem.
func (e *Evaluator) Evaluate(ctx context.Context, item model.QuestionItem, sub model.Submission) (model.EvaluationResult, error) {
	return e.evaluate(ctx, item, sub, nil)
}

// EvaluateBatch scores items[i] against subs[i]. Descriptive answers are
// embedded with a single call up front; the results match Evaluate.
func (e *Evaluator) EvaluateBatch(ctx context.Context, items []model.QuestionItem, subs []model.Submission) ([]model.EvaluationResult, error) {
	if len(items) != len(subs) {
		return nil, fmt.Errorf("%w: %d items but %d submissions", model.ErrInvalidItem, len(items), len(subs))
	}
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}

	vectors := e.embedAnswers(ctx, items, subs)
	results := make([]model.EvaluationResult, len(items))
	for i := range items {
		res, err := e.evaluate(ctx, items[i], subs[i], vectors[i])
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		results[i] = res
	}
	return results, nil
}

// embedAnswers returns one vector slot per item; slots stay nil for anything
// that is not a scoreable descriptive answer or when the batch call fails.
func (e *Evaluator) embedAnswers(ctx context.Context, items []model.QuestionItem, subs []model.Submission) [][]float32 {
	vectors := make([][]float32, len(items))
	if e.embedder == nil {
		return vectors
	}
	var idx []int
	var texts []string
	for i, item := range items {
		if item.Kind != model.KindDescriptive {
			continue
		}
		text := strings.TrimSpace(subs[i].Text)
		if utf8.RuneCountInString(text) < e.minAnswerChars {
			continue
		}
		idx = append(idx, i)
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return vectors
	}
	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		e.log.Warn("batch embedding failed, answers will be embedded one by one",
			zap.Int("answers", len(texts)), zap.Error(err))
		return vectors
	}
	for j, i := range idx {
		vectors[i] = vecs[j]
	}
	return vectors
}

func (e *Evaluator) evaluate(ctx context.Context, item model.QuestionItem, sub model.Submission, vector []float32) (model.EvaluationResult, error) {
	if err := item.Validate(); err != nil {
		return model.EvaluationResult{}, err
	}

	var res model.EvaluationResult
	switch item.Kind {
	case model.KindSingleBestAnswer:
		res = evaluateChoice(item, sub.Choice)
	case model.KindDiagramLabel:
		res = evaluateLabels(item, sub.Labels)
	case model.KindDescriptive:
		res = e.evaluateText(ctx, item, sub.Text, vector)
	}
	e.metrics.Evaluation(string(item.Kind), res.Strategy)
	return res, nil
}

func evaluateChoice(item model.QuestionItem, choice string) model.EvaluationResult {
	correct := model.NormalizeChoice(choice) == model.NormalizeChoice(item.CorrectAnswer)

	var res model.EvaluationResult
	res.Correct = &correct
	res.Strategy = StrategyExact
	if correct {
		res.SetScore(item.Marks, item.Marks)
		res.Feedback = strings.TrimSpace("Correct! " + item.Explanation)
		return res
	}
	res.SetScore(0, item.Marks)
	res.Feedback = strings.TrimSpace(fmt.Sprintf("Incorrect. The correct answer is %s. %s",
		model.NormalizeChoice(item.CorrectAnswer), item.Explanation))
	return res
}

func (e *Evaluator) evaluateText(ctx context.Context, item model.QuestionItem, text string, vector []float32) model.EvaluationResult {
	points := KeyPoints(item)
	text = strings.TrimSpace(text)
	words := WordCount(text)

	var res model.EvaluationResult
	res.WordCount = &words
	if utf8.RuneCountInString(text) < e.minAnswerChars {
		res.SetScore(0, item.Marks)
		res.MissingPoints = points
		res.Feedback = tooShortFeedback
		res.Strategy = StrategyTooShort
		return res
	}

	cov := e.cover(ctx, item, points, Answer{Text: text, Vector: vector})

	base := cov.Ratio * item.Marks
	band := ClassifyBand(item.WordLimit, item.Marks)
	score := roundHalf(base * LengthFactor(words, band))
	// under-length answers always lose something, even when rounding would
	// otherwise swallow the penalty
	if words < band.Min && score > 0 && score >= roundHalf(base) {
		score = roundHalf(base) - 0.5
	}
	res.SetScore(clamp(score, 0, item.Marks), item.Marks)
	res.MatchedPoints = cov.Matched
	res.MissingPoints = cov.Missing
	res.SemanticSimilarity = cov.Similarity
	res.Strategy = cov.Strategy
	res.Feedback = Feedback(ratio(res), cov.Matched, cov.Missing, cov.Similarity)
	return res
}

func (e *Evaluator) cover(ctx context.Context, item model.QuestionItem, points []string, answer Answer) *Coverage {
	for _, s := range e.strategies {
		cov, err := s.Score(ctx, item, points, answer)
		if err != nil {
			e.log.Warn("scoring strategy failed, trying next", zap.String("strategy", s.Name()), zap.Error(err))
			continue
		}
		if cov != nil {
			return cov
		}
	}
	// keyword matching never declines, so this only happens with a custom chain
	return &Coverage{Missing: points, Strategy: StrategyKeyword}
}

// KeyPoints returns the item's key points, or the sentences of its model answer
// when it has none.
func KeyPoints(item model.QuestionItem) []string {
	if len(item.KeyPoints) > 0 {
		return item.KeyPoints
	}
	var out []string
	for _, s := range sentenceEnd.Split(item.ModelAnswer, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func roundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}

func ratio(res model.EvaluationResult) float64 {
	if res.MaxScore <= 0 {
		return 0
	}
	return res.Score / res.MaxScore
}
