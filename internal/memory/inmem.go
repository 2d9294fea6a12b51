package memory

import (
	"context"
	"sync"
)

// InMemoryBackend keeps items in a map guarded by a mutex. It is the default
// when no connection string is configured.
type InMemoryBackend struct {
	mu    sync.RWMutex
	items map[string]Item
}

var _ Backend = (*InMemoryBackend)(nil)

func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{items: make(map[string]Item)}
}

func (b *InMemoryBackend) Insert(_ context.Context, item Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[item.ID] = cloneItem(item)
	return nil
}

func (b *InMemoryBackend) List(_ context.Context) ([]Item, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Item, 0, len(b.items))
	for _, it := range b.items {
		out = append(out, cloneItem(it))
	}
	return out, nil
}

func (b *InMemoryBackend) Delete(_ context.Context, ids ...string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := b.items[id]; ok {
			delete(b.items, id)
			n++
		}
	}
	return n, nil
}

func (b *InMemoryBackend) Touch(_ context.Context, accesses []Access) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range accesses {
		it, ok := b.items[a.ID]
		if !ok {
			continue
		}
		it.LastAccessedAt = a.At
		it.RelevanceScore = a.Score
		b.items[a.ID] = it
	}
	return nil
}

func (b *InMemoryBackend) Close() error {
	return nil
}
