// Package ledger accepts judge scores and answers questions about them.
package ledger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
	"github.com/iamofff/kvn-scoring-system/internal/domain/roster"
	"github.com/iamofff/kvn-scoring-system/internal/domain/scale"
	"github.com/iamofff/kvn-scoring-system/internal/domain/scoring"
)

// ScoreStore is the persistence contract of the ledger.
type ScoreStore interface {
	LoadAll(ctx context.Context) ([]model.ScoreEntry, error)
	Upsert(ctx context.Context, e model.ScoreEntry) error
	DeleteAll(ctx context.Context) error
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// Ledger validates submissions against the roster and the scale.
type Ledger struct {
	store  ScoreStore
	roster *roster.Roster
	scale  scale.Scale
	now    func() time.Time
}

// New creates a Ledger.
func New(store ScoreStore, r *roster.Roster, sc scale.Scale, opts ...Option) *Ledger {
	l := &Ledger{store: store, roster: r, scale: sc, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Scale returns the scale submissions are checked against.
func (l *Ledger) Scale() scale.Scale { return l.scale }

// SubmitScore records value as judge's score for team in round, replacing any
// earlier score for the same triple. judge may be an id or a display name.
//
// A triple that is not on the roster fails with an error matching both
// model.ErrInvalidScore and model.ErrUnknownKey.
func (l *Ledger) SubmitScore(ctx context.Context, round, team, judge string, value float64) (model.ScoreEntry, error) {
	key, err := l.resolve(round, team, judge)
	if err != nil {
		return model.ScoreEntry{}, fmt.Errorf("%w: %w", model.ErrInvalidScore, err)
	}
	if err := l.scale.Validate(value); err != nil {
		return model.ScoreEntry{}, err
	}

	e := model.ScoreEntry{
		Round:     key.Round,
		Team:      key.Team,
		JudgeID:   key.JudgeID,
		Value:     value,
		UpdatedAt: l.now().UTC(),
	}
	if err := l.store.Upsert(ctx, e); err != nil {
		return model.ScoreEntry{}, err
	}
	return e, nil
}

// CurrentScore returns the stored value for the triple. A triple on the
// roster without an entry yields 0 with Scored false.
func (l *Ledger) CurrentScore(ctx context.Context, round, team, judge string) (model.Score, error) {
	key, err := l.resolve(round, team, judge)
	if err != nil {
		return model.Score{}, err
	}
	entries, err := l.store.LoadAll(ctx)
	if err != nil {
		return model.Score{}, err
	}
	for _, e := range entries {
		if e.Key() == key {
			return model.Score{Value: e.Value, Scored: true}, nil
		}
	}
	return model.Score{}, nil
}

// ClearAll deletes every score. The roster is not touched.
func (l *Ledger) ClearAll(ctx context.Context) error {
	return l.store.DeleteAll(ctx)
}

// Detail lists every judge's score for one team in one round, in roster order.
func (l *Ledger) Detail(ctx context.Context, round, team string) ([]model.JudgeScore, error) {
	round, team = roster.Normalize(round), roster.Normalize(team)
	if !l.roster.HasRound(round) {
		return nil, fmt.Errorf("%w: round %q", model.ErrUnknownKey, round)
	}
	if !l.roster.HasTeam(team) {
		return nil, fmt.Errorf("%w: team %q", model.ErrUnknownKey, team)
	}
	entries, err := l.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	byJudge := make(map[string]float64)
	for _, e := range entries {
		if e.Round == round && e.Team == team {
			byJudge[e.JudgeID] = e.Value
		}
	}
	judges := l.roster.Judges()
	out := make([]model.JudgeScore, 0, len(judges))
	for _, j := range judges {
		v, ok := byJudge[j.ID]
		out = append(out, model.JudgeScore{JudgeID: j.ID, JudgeName: j.Name, Value: v, Scored: ok})
	}
	return out, nil
}

// Protocol returns every stored entry on the roster resolved to display
// names, ordered by round, team and judge in roster order.
func (l *Ledger) Protocol(ctx context.Context) ([]model.ProtocolRow, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	rs := snap.Roster

	rounds := positions(rs.Rounds)
	teams := positions(rs.Teams)
	judges := make(map[string]int, len(rs.Judges))
	names := make(map[string]string, len(rs.Judges))
	for i, j := range rs.Judges {
		judges[j.ID] = i
		names[j.ID] = j.Name
	}

	rows := make([]model.ProtocolRow, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		_, okR := rounds[e.Round]
		_, okT := teams[e.Team]
		_, okJ := judges[e.JudgeID]
		if !okR || !okT || !okJ {
			continue
		}
		rows = append(rows, model.ProtocolRow{
			Round:     e.Round,
			Team:      e.Team,
			JudgeID:   e.JudgeID,
			JudgeName: names[e.JudgeID],
			Value:     e.Value,
			UpdatedAt: e.UpdatedAt,
		})
	}
	slices.SortFunc(rows, func(a, b model.ProtocolRow) int {
		return cmp.Or(
			cmp.Compare(rounds[a.Round], rounds[b.Round]),
			cmp.Compare(teams[a.Team], teams[b.Team]),
			cmp.Compare(judges[a.JudgeID], judges[b.JudgeID]),
		)
	})
	return rows, nil
}

// Snapshot pairs the current roster with every stored entry.
func (l *Ledger) Snapshot(ctx context.Context) (scoring.Snapshot, error) {
	state := l.roster.State()
	entries, err := l.store.LoadAll(ctx)
	if err != nil {
		return scoring.Snapshot{}, err
	}
	return scoring.Snapshot{Roster: state, Entries: entries}, nil
}

func (l *Ledger) resolve(round, team, judge string) (model.Key, error) {
	round, team = roster.Normalize(round), roster.Normalize(team)
	if !l.roster.HasRound(round) {
		return model.Key{}, fmt.Errorf("%w: round %q", model.ErrUnknownKey, round)
	}
	if !l.roster.HasTeam(team) {
		return model.Key{}, fmt.Errorf("%w: team %q", model.ErrUnknownKey, team)
	}
	j, ok := l.roster.ResolveJudge(judge)
	if !ok {
		return model.Key{}, fmt.Errorf("%w: judge %q", model.ErrUnknownKey, judge)
	}
	return model.Key{Round: round, Team: team, JudgeID: j.ID}, nil
}

func positions(names []string) map[string]int {
	out := make(map[string]int, len(names))
	for i, n := range names {
		out[n] = i
	}
	return out
}
