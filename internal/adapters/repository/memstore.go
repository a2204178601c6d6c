package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
	"github.com/iamofff/kvn-scoring-system/pkg/metrics"
)

// MemoryStore keeps entries in a map keyed by model.Key.
//
// Upsert overwrites the map slot under the write lock, so the replacement of
// an entry is a single step for every reader.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[model.Key]model.ScoreEntry
	roster    model.RosterState
	hasRoster bool
	closed    bool
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[model.Key]model.ScoreEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadAll returns a copy of every entry ordered by round, team and judge id.
func (s *MemoryStore) LoadAll(ctx context.Context) ([]model.ScoreEntry, error) {
	defer observe("load_all", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, unavailable("load all")
	}

	out := make([]model.ScoreEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

// Upsert implements ScoreStore.Upsert.
func (s *MemoryStore) Upsert(ctx context.Context, e model.ScoreEntry) error {
	defer observe("upsert", time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return unavailable("upsert")
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = s.now().UTC()
	}
	s.entries[e.Key()] = e
	count := len(s.entries)
	s.mu.Unlock()

	metrics.UpdateEntriesTotal(count)
	return nil
}

// DeleteAll implements ScoreStore.DeleteAll.
func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	defer observe("delete_all", time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("delete all")
	}
	s.entries = make(map[model.Key]model.ScoreEntry)
	metrics.UpdateEntriesTotal(0)
	return nil
}

// LoadRoster implements Store.LoadRoster.
func (s *MemoryStore) LoadRoster(ctx context.Context) (model.RosterState, error) {
	if err := ctx.Err(); err != nil {
		return model.RosterState{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.RosterState{}, unavailable("load roster")
	}
	if !s.hasRoster {
		return model.RosterState{}, ErrNotFound
	}
	return s.roster.Clone(), nil
}

// Commit implements Store.Commit by swapping both collections under the write lock.
func (s *MemoryStore) Commit(ctx context.Context, roster model.RosterState, entries []model.ScoreEntry) error {
	defer observe("commit", time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}

	next := make(map[model.Key]model.ScoreEntry, len(entries))
	now := s.now().UTC()
	for _, e := range entries {
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
		next[e.Key()] = e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("commit")
	}
	s.entries = next
	s.roster = roster.Clone()
	s.hasRoster = true
	metrics.UpdateEntriesTotal(len(next))
	return nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, unavailable("count")
	}
	return len(s.entries), nil
}

// Close marks the store unusable. Further calls fail with ErrStoreUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func unavailable(op string) error {
	metrics.RecordErrorByComponent("repository", "closed")
	return fmt.Errorf("%w: %s: %w", model.ErrStoreUnavailable, op, ErrClosed)
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// sortEntries orders entries by round, team and judge id for stable output.
func sortEntries(entries []model.ScoreEntry) {
	slices.SortFunc(entries, func(a, b model.ScoreEntry) int {
		return cmp.Or(
			cmp.Compare(a.Round, b.Round),
			cmp.Compare(a.Team, b.Team),
			cmp.Compare(a.JudgeID, b.JudgeID),
		)
	})
}
