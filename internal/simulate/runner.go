package simulate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
	"github.com/iamofff/kvn-scoring-system/internal/domain/scale"
	"github.com/iamofff/kvn-scoring-system/internal/domain/scoring"
	"github.com/iamofff/kvn-scoring-system/pkg/logger"
)

// maxThrottleRetries bounds how often one submission is retried after a 429.
const maxThrottleRetries = 5

// totalTolerance absorbs float noise between the server and local totals.
const totalTolerance = 1e-9

// Run plays one full contest against the service: every judge scores every
// team in every round, in parallel, then the scoreboard is verified.
func Run(ctx context.Context, cfg Config, log logger.Logger) (Stats, error) {
	start := time.Now()
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	if err := client.Health(ctx); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if cfg.Clear {
		if err := client.Clear(ctx, cfg.AdminPassword); err != nil {
			return Stats{}, fmt.Errorf("clear scores: %w", err)
		}
		log.Info(ctx, "cleared existing scores")
	}

	state, err := client.Roster(ctx, cfg.JudgePassword)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch roster: %w", err)
	}
	if len(state.Teams) == 0 || len(state.Judges) == 0 || len(state.Rounds) == 0 {
		return Stats{}, ErrEmpty
	}
	existing, err := client.Protocol(ctx, cfg.JudgePassword)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch protocol: %w", err)
	}

	stats := Stats{Judges: len(state.Judges), Teams: len(state.Teams), Rounds: len(state.Rounds)}
	log.Info(ctx, "starting simulation",
		logger.Int("judges", stats.Judges),
		logger.Int("teams", stats.Teams),
		logger.Int("rounds", stats.Rounds),
		logger.Int("existingScores", len(existing)),
	)

	expected := newTally(existing)
	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	var submitted, resubmitted, throttled atomic.Int64

	submit := func(ctx context.Context, round, team string, judge model.Judge, value float64) error {
		for attempt := 0; ; attempt++ {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
			}
			err := client.Submit(ctx, cfg.JudgePassword, round, team, judge.ID, value)
			var se *StatusError
			if errors.As(err, &se) && se.Code == http.StatusTooManyRequests && attempt < maxThrottleRetries {
				throttled.Add(1)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(se.RetryAfter):
				}
				continue
			}
			if err != nil {
				return fmt.Errorf("judge %s, %s/%s: %w", judge.Name, round, team, err)
			}
			submitted.Add(1)
			expected.set(model.Key{Round: round, Team: team, JudgeID: judge.ID}, value)
			return nil
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, judge := range state.Judges {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
		g.Go(func() error {
			for _, round := range state.Rounds {
				for _, team := range state.Teams {
					if err := submit(gctx, round, team, judge, pick(rng, cfg.Scale)); err != nil {
						return err
					}
					if rng.Float64() < cfg.Resubmit {
						if err := submit(gctx, round, team, judge, pick(rng, cfg.Scale)); err != nil {
							return err
						}
						resubmitted.Add(1)
					}
				}
			}
			return nil
		})
	}
	err = g.Wait()
	stats.Submitted = int(submitted.Load())
	stats.Resubmitted = int(resubmitted.Load())
	stats.Throttled = int(throttled.Load())
	if err != nil {
		stats.Duration = time.Since(start)
		return stats, err
	}

	got, err := client.Scoreboard(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch scoreboard: %w", err)
	}
	want := scoring.New(cfg.ScoringOptions...).Scoreboard(scoring.Snapshot{Roster: state, Entries: expected.entries()})
	if err := compare(want, got); err != nil {
		stats.Duration = time.Since(start)
		return stats, err
	}
	stats.Verified = true
	stats.Duration = time.Since(start)

	for _, row := range got {
		log.Debug(ctx, "scoreboard row",
			logger.Int("rank", row.Rank),
			logger.String("team", row.Team),
			logger.Float64("total", row.Total),
		)
	}
	log.Info(ctx, "simulation finished",
		logger.Int("submitted", stats.Submitted),
		logger.Int("resubmitted", stats.Resubmitted),
		logger.Int("throttled", stats.Throttled),
		logger.Bool("verified", stats.Verified),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// pick draws a value the scale accepts.
func pick(rng *rand.Rand, sc scale.Scale) float64 {
	if values := sc.Values(); len(values) > 0 {
		return values[rng.IntN(len(values))]
	}
	return sc.Min() + rng.Float64()*(sc.Max()-sc.Min())
}

// compare reports the first difference between two scoreboards.
func compare(want, got []model.ScoreboardRow) error {
	if len(want) != len(got) {
		return fmt.Errorf("%w: %d rows, want %d", ErrMismatch, len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.Team != g.Team || w.Rank != g.Rank || math.Abs(w.Total-g.Total) > totalTolerance {
			return fmt.Errorf("%w: row %d is %s rank %d total %.2f, want %s rank %d total %.2f",
				ErrMismatch, i+1, g.Team, g.Rank, g.Total, w.Team, w.Rank, w.Total)
		}
	}
	return nil
}

// tally is the locally known last value of every score slot.
type tally struct {
	mu     sync.Mutex
	values map[model.Key]float64
}

func newTally(rows []model.ProtocolRow) *tally {
	t := &tally{values: make(map[model.Key]float64, len(rows))}
	for _, r := range rows {
		t.values[model.Key{Round: r.Round, Team: r.Team, JudgeID: r.JudgeID}] = r.Value
	}
	return t
}

func (t *tally) set(k model.Key, v float64) {
	t.mu.Lock()
	t.values[k] = v
	t.mu.Unlock()
}

func (t *tally) entries() []model.ScoreEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.ScoreEntry, 0, len(t.values))
	for k, v := range t.values {
		out = append(out, model.ScoreEntry{Round: k.Round, Team: k.Team, JudgeID: k.JudgeID, Value: v})
	}
	return out
}
