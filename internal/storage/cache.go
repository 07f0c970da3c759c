// cache.go - In-memory batch store with expiry

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bosocmputer/statement_ledger/internal/batch"
)

// DefaultTTL is how long an untouched batch stays in the memory store.
const DefaultTTL = 24 * time.Hour

type memoryItem struct {
	batch   *batch.Batch
	savedAt time.Time
}

// MemoryStore keeps batches in process memory. Used when no MongoDB URI is
// configured and in tests. Batches expire ttl after their last save.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*memoryItem
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore creates a store; ttl <= 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *MemoryStore) expired(item *memoryItem) bool {
	return s.ttl > 0 && s.now().Sub(item.savedAt) >= s.ttl
}

// SaveBatch stores a copy of b.
func (s *MemoryStore) SaveBatch(ctx context.Context, b *batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[b.ID] = &memoryItem{batch: b.Clone(), savedAt: s.now()}
	return nil
}

// GetBatch returns a copy of the batch.
func (s *MemoryStore) GetBatch(ctx context.Context, id string) (*batch.Batch, error) {
	s.mu.RLock()
	item, exists := s.items[id]
	s.mu.RUnlock()

	if !exists || s.expired(item) {
		return nil, batch.ErrNotFound
	}
	return item.batch.Clone(), nil
}

// ListBatches returns live batches, most recently updated first.
func (s *MemoryStore) ListBatches(ctx context.Context) ([]batch.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]batch.Summary, 0, len(s.items))
	for _, item := range s.items {
		if !s.expired(item) {
			out = append(out, item.batch.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// DeleteBatch removes a batch.
func (s *MemoryStore) DeleteBatch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		return batch.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// Purge drops expired batches and returns how many were removed.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, item := range s.items {
		if s.expired(item) {
			delete(s.items, id)
			n++
		}
	}
	return n
}

// RunJanitor purges expired batches every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Purge()
		}
	}
}
