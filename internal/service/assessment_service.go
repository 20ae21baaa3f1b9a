package service

import (
	"fmt"
	"time"

	"Exam-Prep-Assessment-Backend/internal/model"
	"Exam-Prep-Assessment-Backend/internal/repository"
)

// AssessmentService manages the single published assessment shared with students.
type AssessmentService struct {
	repo       *repository.AssessmentRepository
	curriculum *repository.CurriculumRepository
}

func NewAssessmentService(repo *repository.AssessmentRepository, curriculum *repository.CurriculumRepository) *AssessmentService {
	return &AssessmentService{repo: repo, curriculum: curriculum}
}

// Publish replaces the published assessment. Every item must satisfy the item
// contract.
func (s *AssessmentService) Publish(items []model.QuestionItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: nothing to publish", model.ErrInvalidItem)
	}
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return s.repo.Publish(items)
}

func (s *AssessmentService) Current() ([]model.QuestionItem, time.Time) {
	return s.repo.Current()
}

func (s *AssessmentService) Clear() error {
	return s.repo.Clear()
}

func (s *AssessmentService) Curriculum() repository.CurriculumTables {
	return s.curriculum.Snapshot()
}
