package evaluation

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// References holds the embeddings of an item's reference content. Answer is
// nil when the item has no model answer.
type References struct {
	Answer []float32
	Points [][]float32
}

// EmbeddingCache memoizes reference embeddings per (model answer, key points).
// When full, the oldest entry is dropped. Student answers are never stored.
type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]References
	order    []string
}

func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity < 1 {
		capacity = 1
	}
	return &EmbeddingCache{
		capacity: capacity,
		entries:  make(map[string]References, capacity),
	}
}

// ReferenceKey identifies the reference content of an item.
func ReferenceKey(modelAnswer string, points []string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(modelAnswer)))
	for _, p := range points {
		h.Write([]byte{0x1f})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *EmbeddingCache) Get(key string) (References, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *EmbeddingCache) Put(key string, refs References) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = refs
		return
	}
	for len(c.order) >= c.capacity {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.entries[key] = refs
	c.order = append(c.order, key)
}

func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
