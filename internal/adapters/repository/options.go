package repository

import (
	"time"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRoster seeds the store as if the roster had already been committed.
func WithRoster(roster model.RosterState) Option {
	return func(s *MemoryStore) {
		s.roster = roster.Clone()
		s.hasRoster = true
	}
}
