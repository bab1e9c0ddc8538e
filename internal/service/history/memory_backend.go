package history

import (
	"context"
	"sync"
	"time"

	"github.com/moduleforge/fraudscore/internal/domain/fraudmodel"
)

// memoryBackend is the process-local fallback used when the remote
// cache is unreachable at construction. Unlike the original Python
// fallback (which never expires anything), this backend honors TTL by
// checking expiry lazily on read - closing the gap spec.md §9 flags as
// an open question, without needing a background sweep goroutine.
type memoryBackend struct {
	mu        sync.Mutex
	histories map[string]memoryEntry[fraudmodel.UserHistory]
	counters  map[string]memoryEntry[int64]
}

type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		histories: make(map[string]memoryEntry[fraudmodel.UserHistory]),
		counters:  make(map[string]memoryEntry[int64]),
	}
}

func (b *memoryBackend) name() string { return "memory" }

func (b *memoryBackend) getHistory(_ context.Context, userID string) (fraudmodel.UserHistory, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.histories[userID]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(b.histories, userID)
		return fraudmodel.UserHistory{}, false, nil
	}
	return entry.value, true, nil
}

func (b *memoryBackend) setHistory(_ context.Context, userID string, h fraudmodel.UserHistory, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.histories[userID] = memoryEntry[fraudmodel.UserHistory]{value: h, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (b *memoryBackend) incrCounter(_ context.Context, userID string, window time.Duration) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := userID
	entry, ok := b.counters[key]
	if !ok || time.Now().After(entry.expiresAt) {
		entry = memoryEntry[int64]{value: 0}
	}
	entry.value++
	entry.expiresAt = time.Now().Add(window)
	b.counters[key] = entry
	return entry.value, nil
}

func (b *memoryBackend) getCounter(_ context.Context, userID string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.counters[userID]
	if !ok || time.Now().After(entry.expiresAt) {
		return 0, nil
	}
	return entry.value, nil
}
