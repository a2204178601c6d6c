package model

import "errors"

// Sentinel error kinds shared by the domain packages. Callers match them with errors.Is.
var (
	// ErrInvalidScore rejects a submission: value off the scale or the triple is not on the roster.
	ErrInvalidScore = errors.New("invalid score")
	// ErrUnknownKey means a round, team or judge is not on the current roster.
	ErrUnknownKey = errors.New("unknown roster key")
	// ErrDuplicateName rejects an add or rename that collides with an existing identifier.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrInvalidName rejects empty identifiers.
	ErrInvalidName = errors.New("invalid name")
	// ErrStoreUnavailable wraps every persistence failure.
	ErrStoreUnavailable = errors.New("score store unavailable")
	// ErrNoRoster means no roster has been committed to the store yet.
	ErrNoRoster = errors.New("roster not found")
)
