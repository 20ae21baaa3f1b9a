package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Exam-Prep-Assessment-Backend/internal/model"

	json "github.com/goccy/go-json"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ResultCache maps a derived request identity to a previously produced JSON payload.
type ResultCache interface {
	// Get returns the entry for key when it is younger than maxAge. A maxAge of
	// zero disables the staleness check.
	Get(ctx context.Context, key string, maxAge time.Duration) (model.CacheEntry, bool)
	Put(ctx context.Context, key string, payload []byte) error
	EvictExpired(ctx context.Context, maxAge time.Duration) (int, error)
}

type storedEntry struct {
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// FileResultCache keeps the whole cache in one JSON file. Every write stages the
// full store and renames it into place.
type FileResultCache struct {
	fs      afero.Fs
	path    string
	log     *zap.Logger
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]storedEntry
}

type FileCacheOption func(*FileResultCache)

func WithClock(now func() time.Time) FileCacheOption {
	return func(c *FileResultCache) { c.now = now }
}

func NewFileResultCache(fs afero.Fs, path string, log *zap.Logger, opts ...FileCacheOption) *FileResultCache {
	if log == nil {
		log = zap.NewNop()
	}
	c := &FileResultCache{
		fs:      fs,
		path:    path,
		log:     log.With(zap.String("component", "ResultCache")),
		now:     time.Now,
		entries: make(map[string]storedEntry),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.mu.Lock()
	c.entries = c.readDisk()
	c.mu.Unlock()
	c.log.Info("result cache loaded", zap.String("path", path), zap.Int("entries", len(c.entries)))
	return c
}

// readDisk never fails: a missing, unreadable or corrupt store is an empty cache.
func (c *FileResultCache) readDisk() map[string]storedEntry {
	entries := make(map[string]storedEntry)
	data, err := readStore(c.fs, c.path)
	if err != nil {
		c.log.Warn("cache store unreadable, starting empty", zap.Error(err))
		return entries
	}
	if len(data) == 0 {
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		c.log.Warn("cache store corrupt, starting empty", zap.Error(err))
		return make(map[string]storedEntry)
	}
	return entries
}

func (c *FileResultCache) Get(_ context.Context, key string, maxAge time.Duration) (model.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return model.CacheEntry{}, false
	}
	entry := model.CacheEntry{Key: key, Payload: []byte(e.Payload), CreatedAt: e.CreatedAt}
	if maxAge > 0 && entry.Age(c.now()) > maxAge {
		return model.CacheEntry{}, false
	}
	return entry, true
}

// Put records payload under key and persists the store. Entries written to the
// file by another process since the last load are merged in first.
func (c *FileResultCache) Put(_ context.Context, key string, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("cache payload for %s is not valid JSON", key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mergeDisk()
	c.entries[key] = storedEntry{Payload: append(json.RawMessage(nil), payload...), CreatedAt: c.now()}

	if err := c.persist(); err != nil {
		return err
	}
	c.log.Debug("cache entry stored", zap.String("key", key), zap.Int("entries", len(c.entries)))
	return nil
}

// mergeDisk folds in entries other writers persisted since the last load,
// keeping the newer copy of any key. Callers hold c.mu.
func (c *FileResultCache) mergeDisk() {
	for k, e := range c.readDisk() {
		if cur, ok := c.entries[k]; !ok || e.CreatedAt.After(cur.CreatedAt) {
			c.entries[k] = e
		}
	}
}

// EvictExpired drops entries older than maxAge from the merged store and
// persists the result.
func (c *FileResultCache) EvictExpired(_ context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mergeDisk()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.CreatedAt) > maxAge {
			delete(c.entries, k)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	c.log.Info("evicting expired cache entries", zap.Int("removed", removed))
	return removed, c.persist()
}

func (c *FileResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *FileResultCache) persist() error {
	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("encode cache store: %w", err)
	}
	if err := writeFileAtomic(c.fs, c.path, data); err != nil {
		c.log.Error("cache persist failed", zap.Error(err))
		return err
	}
	return nil
}
