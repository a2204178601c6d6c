// Package repository defines the score store contract and its in-memory implementation.
package repository

import (
	"context"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
)

// ScoreStore is the narrow contract the ledger needs.
type ScoreStore interface {
	// LoadAll returns every stored entry. Order is not significant.
	LoadAll(ctx context.Context) ([]model.ScoreEntry, error)
	// Upsert stores e, replacing any entry with the same key. The replacement is
	// atomic: no reader observes both the old and the new entry.
	Upsert(ctx context.Context, e model.ScoreEntry) error
	// DeleteAll removes every entry. Roster state is kept.
	DeleteAll(ctx context.Context) error
}

// Store adds roster persistence and atomic migration to ScoreStore.
type Store interface {
	ScoreStore
	// LoadRoster returns the persisted roster or ErrNotFound when none was committed.
	LoadRoster(ctx context.Context) (model.RosterState, error)
	// Commit replaces the roster and the full entry set in one step.
	// Either both are applied or neither is.
	Commit(ctx context.Context, roster model.RosterState, entries []model.ScoreEntry) error
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
	Close() error
}
