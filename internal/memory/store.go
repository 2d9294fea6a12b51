package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	errx "github.com/intakeflow/server/internal/core/error"
	logx "github.com/intakeflow/server/pkg/logger"
)

var timeNow = func() time.Time { return time.Now().UTC() }

// Store ranks memories by similarity weighted with time decay and evicts
// stale ones. It is safe for concurrent use when its backend is.
type Store struct {
	backend  Backend
	embedder Embedder
	cfg      Config
	now      func() time.Time
	newID    func() string
	observer Observer
}

type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithObserver reports store events to o.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

func NewStore(backend Backend, embedder Embedder, cfg Config, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		embedder: embedder,
		cfg:      cfg,
		now:      timeNow,
		newID:    uuid.NewString,
		observer: nopObserver{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Config returns the store settings.
func (s *Store) Config() Config {
	return s.cfg
}

// Put embeds text and stores it with meta. Stale items are swept first.
func (s *Store) Put(ctx context.Context, text string, meta map[string]string) (id string, err error) {
	start := time.Now()
	defer func() { s.observer.ObserveMemoryOp("put", time.Since(start), err) }()

	if strings.TrimSpace(text) == "" {
		return "", &errx.MemoryStoreError{Op: "put", Err: errors.New("empty text")}
	}
	if _, err := s.Sweep(ctx); err != nil {
		return "", err
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", &errx.MemoryStoreError{Op: "embed", Err: err}
	}

	now := s.now()
	item := Item{
		ID:             s.newID(),
		Embedding:      vec,
		Text:           text,
		Metadata:       meta,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := s.backend.Insert(ctx, cloneItem(item)); err != nil {
		return "", asStoreError("put", err)
	}
	logx.Debug().Str("memory_id", item.ID).Int("chars", len(text)).Msg("memory stored")
	return item.ID, nil
}

// Retrieve returns up to k items ranked by composite score: similarity
// (cosine mapped to [0, 1]) times exp(-rate * age_days). Ties go to the newer item, then to the lower id.
// k <= 0 uses the configured default.
func (s *Store) Retrieve(ctx context.Context, query string, k int) (out []Item, err error) {
	start := time.Now()
	defer func() { s.observer.ObserveMemoryOp("retrieve", time.Since(start), err) }()

	if k <= 0 {
		k = s.cfg.RetrievalK
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &errx.MemoryStoreError{Op: "embed", Err: err}
	}

	items, err := s.backend.List(ctx)
	if err != nil {
		return nil, asStoreError("list", err)
	}

	now := s.now()
	live, stale := s.partition(items, now)
	if err := s.evict(ctx, stale); err != nil {
		return nil, err
	}

	type scored struct {
		item  Item
		score float64
	}
	ranked := make([]scored, 0, len(live))
	for _, it := range live {
		score := Similarity(vec, it.Embedding) * Decay(s.cfg.DecayRate, now.Sub(it.CreatedAt))
		ranked = append(ranked, scored{item: it, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.item.CreatedAt.Equal(b.item.CreatedAt) {
			return a.item.CreatedAt.After(b.item.CreatedAt)
		}
		return a.item.ID < b.item.ID
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	accesses := make([]Access, len(ranked))
	out = make([]Item, len(ranked))
	for i, r := range ranked {
		accesses[i] = Access{ID: r.item.ID, At: now, Score: r.score}
		it := cloneItem(r.item)
		it.LastAccessedAt = now
		it.RelevanceScore = r.score
		out[i] = it
	}
	if err := s.backend.Touch(ctx, accesses); err != nil {
		return nil, asStoreError("touch", err)
	}
	return out, nil
}

// Evict removes the given ids. Unknown ids are ignored.
func (s *Store) Evict(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := s.backend.Delete(ctx, ids...)
	if err != nil {
		return asStoreError("evict", err)
	}
	s.observer.ObserveEvicted(n)
	return nil
}

// Sweep evicts every item past its TTL or below the retention floor and
// reports how many were removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	items, err := s.backend.List(ctx)
	if err != nil {
		return 0, asStoreError("sweep", err)
	}
	_, stale := s.partition(items, s.now())
	if err := s.evict(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) partition(items []Item, now time.Time) (live []Item, stale []string) {
	for _, it := range items {
		if s.cfg.expired(now.Sub(it.CreatedAt)) {
			stale = append(stale, it.ID)
			continue
		}
		live = append(live, it)
	}
	return live, stale
}

func (s *Store) evict(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.Evict(ctx, ids...); err != nil {
		return err
	}
	logx.Debug().Int("count", len(ids)).Msg("memory items evicted")
	return nil
}

func asStoreError(op string, err error) error {
	var se *errx.MemoryStoreError
	if errors.As(err, &se) {
		return err
	}
	return &errx.MemoryStoreError{Op: op, Err: err}
}
