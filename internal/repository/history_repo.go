package repository

import (
	"fmt"
	"sync"

	"Exam-Prep-Assessment-Backend/internal/model"

	json "github.com/goccy/go-json"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// HistoryRepository is an append-only list of attempt reports kept in one file.
type HistoryRepository struct {
	fs   afero.Fs
	path string
	log  *zap.Logger
	mu   sync.Mutex
}

func NewHistoryRepository(fs afero.Fs, path string, log *zap.Logger) *HistoryRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &HistoryRepository{
		fs:   fs,
		path: path,
		log:  log.With(zap.String("component", "HistoryStore")),
	}
}

func (r *HistoryRepository) Append(report model.AttemptReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := append(r.load(), report)
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := writeFileAtomic(r.fs, r.path, data); err != nil {
		return err
	}
	r.log.Debug("attempt recorded", zap.String("attempt", report.ID), zap.Int("total", len(history)))
	return nil
}

func (r *HistoryRepository) All() []model.AttemptReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *HistoryRepository) load() []model.AttemptReport {
	data, err := readStore(r.fs, r.path)
	if err != nil {
		r.log.Warn("history store unreadable", zap.Error(err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var history []model.AttemptReport
	if err := json.Unmarshal(data, &history); err != nil {
		r.log.Warn("history store corrupt", zap.Error(err))
		return nil
	}
	return history
}
