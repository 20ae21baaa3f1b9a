package repository

import (
	"fmt"
	"os"
	"sync"
	"time"

	"Exam-Prep-Assessment-Backend/internal/model"

	json "github.com/goccy/go-json"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type publishedAssessment struct {
	Questions []model.QuestionItem `json:"questions"`
	Timestamp time.Time            `json:"timestamp"`
}

// AssessmentRepository stores the currently published assessment as one JSON record.
type AssessmentRepository struct {
	fs   afero.Fs
	path string
	log  *zap.Logger
	now  func() time.Time
	mu   sync.RWMutex
}

func NewAssessmentRepository(fs afero.Fs, path string, log *zap.Logger) *AssessmentRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &AssessmentRepository{
		fs:   fs,
		path: path,
		log:  log.With(zap.String("component", "AssessmentStore")),
		now:  time.Now,
	}
}

func (r *AssessmentRepository) Publish(items []model.QuestionItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(publishedAssessment{Questions: items, Timestamp: r.now()})
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	if err := writeFileAtomic(r.fs, r.path, data); err != nil {
		return err
	}
	r.log.Info("assessment published", zap.Int("questions", len(items)))
	return nil
}

// Current returns the published items and their publish time. A missing or
// unreadable store yields no items.
func (r *AssessmentRepository) Current() ([]model.QuestionItem, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := readStore(r.fs, r.path)
	if err != nil || len(data) == 0 {
		if err != nil {
			r.log.Warn("assessment store unreadable", zap.Error(err))
		}
		return nil, time.Time{}
	}
	var a publishedAssessment
	if err := json.Unmarshal(data, &a); err != nil {
		r.log.Warn("assessment store corrupt", zap.Error(err))
		return nil, time.Time{}
	}
	return a.Questions, a.Timestamp
}

func (r *AssessmentRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fs.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear assessment: %w", err)
	}
	r.log.Info("assessment cleared")
	return nil
}
