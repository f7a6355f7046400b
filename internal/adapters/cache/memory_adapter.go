package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zatekoja/reviewfunnel/internal/domain/providers"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// MemoryAdapter is a process-local CacheProvider used when Redis is not
// configured. Entries are only visible to this instance.
type MemoryAdapter struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryAdapter creates an empty in-memory cache
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

var _ providers.CacheProvider = (*MemoryAdapter)(nil)

func (a *MemoryAdapter) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	item, ok := a.lookupLocked(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", providers.ErrCacheMiss, key)
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (a *MemoryAdapter) Set(_ context.Context, key string, value []byte, expirationSeconds int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.storeLocked(key, value, expirationSeconds)
	return nil
}

func (a *MemoryAdapter) SetIfAbsent(_ context.Context, key string, value []byte, expirationSeconds int) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.lookupLocked(key); ok {
		return false, nil
	}
	a.storeLocked(key, value, expirationSeconds)
	return true, nil
}

func (a *MemoryAdapter) Delete(_ context.Context, keys ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, key := range keys {
		delete(a.items, key)
	}
	return nil
}

func (a *MemoryAdapter) Exists(_ context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.lookupLocked(key)
	return ok, nil
}

func (a *MemoryAdapter) lookupLocked(key string) (memoryItem, bool) {
	item, ok := a.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if item.expired(a.now()) {
		delete(a.items, key)
		return memoryItem{}, false
	}
	return item, true
}

func (a *MemoryAdapter) storeLocked(key string, value []byte, expirationSeconds int) {
	item := memoryItem{value: make([]byte, len(value))}
	copy(item.value, value)
	if expirationSeconds > 0 {
		item.expiresAt = a.now().Add(time.Duration(expirationSeconds) * time.Second)
	}
	a.items[key] = item
}
