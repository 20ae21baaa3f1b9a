package service

import (
	"context"
	"fmt"
	"time"

	"Exam-Prep-Assessment-Backend/internal/evaluation"
	"Exam-Prep-Assessment-Backend/internal/logger"
	"Exam-Prep-Assessment-Backend/internal/model"
	"Exam-Prep-Assessment-Backend/internal/repository"
	"Exam-Prep-Assessment-Backend/internal/utils"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// EvaluationService grades submissions and records whole attempts in the
// history store. History writes happen in the background; Close waits for them.
type EvaluationService struct {
	evaluator   *evaluation.Evaluator
	assessments *repository.AssessmentRepository
	history     *repository.HistoryRepository
	log         *zap.Logger
	now         func() time.Time

	wg conc.WaitGroup
}

func NewEvaluationService(evaluator *evaluation.Evaluator, assessments *repository.AssessmentRepository,
	history *repository.HistoryRepository, log *zap.Logger) *EvaluationService {
	return &EvaluationService{
		evaluator:   evaluator,
		assessments: assessments,
		history:     history,
		log:         logger.Component(log, "evaluation"),
		now:         time.Now,
	}
}

func (s *EvaluationService) Evaluate(ctx context.Context, item model.QuestionItem, sub model.Submission) (model.EvaluationResult, error) {
	return s.evaluator.Evaluate(ctx, item, sub)
}

func (s *EvaluationService) EvaluateBatch(ctx context.Context, items []model.QuestionItem, subs []model.Submission) ([]model.EvaluationResult, error) {
	return s.evaluator.EvaluateBatch(ctx, items, subs)
}

// SubmitAttempt grades a full attempt and appends it to the history. With no
// items the currently published assessment is graded.
func (s *EvaluationService) SubmitAttempt(ctx context.Context, student string, items []model.QuestionItem, subs []model.Submission) (model.AttemptReport, error) {
	if len(items) == 0 {
		items, _ = s.assessments.Current()
		if len(items) == 0 {
			return model.AttemptReport{}, fmt.Errorf("%w: no published assessment to grade", model.ErrInvalidItem)
		}
	}
	results, err := s.evaluator.EvaluateBatch(ctx, items, subs)
	if err != nil {
		return model.AttemptReport{}, err
	}

	report := model.AttemptReport{
		ID:         utils.NewRequestID(),
		Student:    student,
		Results:    results,
		Curriculum: items[0].Curriculum,
		Timestamp:  s.now(),
	}
	for _, r := range results {
		report.TotalScore += r.Score
		report.MaxScore += r.MaxScore
	}
	if report.MaxScore > 0 {
		report.Percentage = 100 * report.TotalScore / report.MaxScore
	}
	report.Grade = evaluation.Grade(report.Percentage)

	s.wg.Go(func() {
		if err := s.history.Append(report); err != nil {
			s.log.Error("failed to record attempt", zap.String("attempt", report.ID), zap.Error(err))
			return
		}
		s.log.Info("attempt recorded", zap.String("attempt", report.ID),
			zap.Float64("score", report.TotalScore), zap.String("grade", report.Grade))
	})
	return report, nil
}

func (s *EvaluationService) History() []model.AttemptReport {
	return s.history.All()
}

// Close waits for pending history writes.
func (s *EvaluationService) Close() {
	s.wg.Wait()
}
