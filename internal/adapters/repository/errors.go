package repository

import (
	"errors"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	// ErrNotFound is returned by LoadRoster before the first Commit.
	ErrNotFound = model.ErrNoRoster
	ErrClosed   = errors.New("store closed")
)
