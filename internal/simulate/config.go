// Package simulate drives a running scoring service the way a judging panel
// would and checks the published scoreboard against a local recomputation.
package simulate

import (
	"errors"
	"time"

	"github.com/iamofff/kvn-scoring-system/internal/domain/scale"
	"github.com/iamofff/kvn-scoring-system/internal/domain/scoring"
)

// Errors returned by Run.
var (
	ErrUnhealthy = errors.New("service is not healthy")
	ErrEmpty     = errors.New("roster has nothing to score")
	ErrMismatch  = errors.New("scoreboard does not match local recomputation")
)

// Config holds the simulation parameters.
type Config struct {
	BaseURL       string
	JudgePassword string
	AdminPassword string

	// Scale and ScoringOptions must match the server's configuration.
	Scale          scale.Scale
	ScoringOptions []scoring.Option

	Resubmit float64       // probability that a judge changes a score once
	Rate     float64       // client side submissions per second, 0 means unpaced
	Seed     uint64        // random seed; equal seeds give equal runs
	Timeout  time.Duration // per request
	Clear    bool          // clear all scores before starting
}

// Stats summarises a run.
type Stats struct {
	Judges      int
	Teams       int
	Rounds      int
	Submitted   int
	Resubmitted int
	Throttled   int
	Verified    bool
	Duration    time.Duration
}
