package memory

import (
	"context"
	"time"
)

// Item is one stored memory.
type Item struct {
	ID             string            `json:"id"`
	Embedding      []float32         `json:"embedding"`
	Text           string            `json:"text"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	RelevanceScore float64           `json:"relevance_score"`
}

// Access records the outcome of a retrieval for one item.
type Access struct {
	ID    string
	At    time.Time
	Score float64
}

// Backend persists memory items. Implementations must be safe for concurrent use.
type Backend interface {
	// Insert stores item atomically: id, vector, text and timestamps together.
	Insert(ctx context.Context, item Item) error
	// List returns every stored item.
	List(ctx context.Context) ([]Item, error)
	// Delete removes the given ids and returns how many existed. Missing ids are ignored.
	Delete(ctx context.Context, ids ...string) (int, error)
	// Touch applies all accesses in a single call.
	Touch(ctx context.Context, accesses []Access) error
	Close() error
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Observer receives store events; the metrics package implements it.
type Observer interface {
	ObserveMemoryOp(op string, d time.Duration, err error)
	ObserveEvicted(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveMemoryOp(string, time.Duration, error) {}
func (nopObserver) ObserveEvicted(int)                           {}

func cloneItem(it Item) Item {
	it.Embedding = append([]float32(nil), it.Embedding...)
	if it.Metadata != nil {
		m := make(map[string]string, len(it.Metadata))
		for k, v := range it.Metadata {
			m[k] = v
		}
		it.Metadata = m
	}
	return it
}
