// Package roster owns the ordered lists of teams, judges and rounds of a contest.
//
// Every mutation computes the next roster together with the migrated score
// entries and commits both through one Store.Commit call, so a rename or a
// removal never leaves entries pointing at identifiers that no longer exist.
package roster

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
)

// Kind names one of the three roster lists.
type Kind string

const (
	KindTeam  Kind = "team"
	KindJudge Kind = "judge"
	KindRound Kind = "round"
)

// Store is the persistence the roster needs.
type Store interface {
	LoadRoster(ctx context.Context) (model.RosterState, error)
	LoadAll(ctx context.Context) ([]model.ScoreEntry, error)
	Commit(ctx context.Context, roster model.RosterState, entries []model.ScoreEntry) error
}

// Seed lists the names used when the store holds no roster yet.
type Seed struct {
	Teams  []string
	Judges []string
	Rounds []string
}

// Option configures a Roster.
type Option func(*Roster)

// WithIDGenerator replaces uuid.NewString for judge identifiers.
func WithIDGenerator(gen func() string) Option {
	return func(r *Roster) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// Roster guards the current roster state.
type Roster struct {
	mu    sync.RWMutex
	state model.RosterState
	store Store
	newID func() string
}

// New creates an empty Roster backed by store. Call Load before use.
func New(store Store, opts ...Option) *Roster {
	r := &Roster{store: store, newID: uuid.NewString}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Normalize trims surrounding whitespace and applies Unicode NFC so that
// visually equal names compare equal.
func Normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Load reads the persisted roster. When none exists the seed is validated,
// committed and adopted. It reports whether the seed was used.
func (r *Roster) Load(ctx context.Context, seed Seed) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.store.LoadRoster(ctx)
	if err == nil {
		r.state = state
		return false, nil
	}
	if !errors.Is(err, model.ErrNoRoster) {
		return false, err
	}

	state, err = r.fromSeed(seed)
	if err != nil {
		return false, err
	}
	entries, err := r.store.LoadAll(ctx)
	if err != nil {
		return false, err
	}
	if err := r.store.Commit(ctx, state, filterTo(state, entries)); err != nil {
		return false, err
	}
	r.state = state
	return true, nil
}

func (r *Roster) fromSeed(seed Seed) (model.RosterState, error) {
	teams, err := uniqueNames(KindTeam, seed.Teams)
	if err != nil {
		return model.RosterState{}, err
	}
	rounds, err := uniqueNames(KindRound, seed.Rounds)
	if err != nil {
		return model.RosterState{}, err
	}
	names, err := uniqueNames(KindJudge, seed.Judges)
	if err != nil {
		return model.RosterState{}, err
	}
	judges := make([]model.Judge, 0, len(names))
	for _, n := range names {
		judges = append(judges, model.Judge{ID: r.newID(), Name: n})
	}
	return model.RosterState{Teams: teams, Judges: judges, Rounds: rounds}, nil
}

// State returns a copy of the whole roster.
func (r *Roster) State() model.RosterState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// Teams returns the teams in presentation order.
func (r *Roster) Teams() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.state.Teams)
}

// Judges returns the judges in presentation order.
func (r *Roster) Judges() []model.Judge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.state.Judges)
}

// Rounds returns the rounds in presentation order.
func (r *Roster) Rounds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.state.Rounds)
}

// HasTeam reports whether name is a current team.
func (r *Roster) HasTeam(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.state.Teams, Normalize(name))
}

// HasRound reports whether name is a current round.
func (r *Roster) HasRound(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.state.Rounds, Normalize(name))
}

// ResolveJudge finds a judge by ID first, then by display name.
func (r *Roster) ResolveJudge(idOrName string) (model.Judge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := judgeIndex(r.state.Judges, idOrName)
	if i < 0 {
		return model.Judge{}, false
	}
	return r.state.Judges[i], true
}

// AddTeam appends a team.
func (r *Roster) AddTeam(ctx context.Context, name string) error {
	return r.addName(ctx, KindTeam, name)
}

// AddRound appends a round. Its averages are zero until scored.
func (r *Roster) AddRound(ctx context.Context, name string) error {
	return r.addName(ctx, KindRound, name)
}

// AddJudge appends a judge with a fresh identifier.
func (r *Roster) AddJudge(ctx context.Context, name string) (model.Judge, error) {
	name, err := validName(KindJudge, name)
	if err != nil {
		return model.Judge{}, err
	}

	var added model.Judge
	err = r.mutate(ctx, func(next *model.RosterState) (migration, error) {
		if judgeNameIndex(next.Judges, name) >= 0 {
			return nil, duplicate(KindJudge, name)
		}
		added = model.Judge{ID: r.newID(), Name: name}
		next.Judges = append(next.Judges, added)
		return keepAll, nil
	})
	if err != nil {
		return model.Judge{}, err
	}
	return added, nil
}

// RenameTeam renames a team and re-keys its entries.
func (r *Roster) RenameTeam(ctx context.Context, oldName, newName string) error {
	return r.renameName(ctx, KindTeam, oldName, newName)
}

// RenameRound renames a round and re-keys its entries.
func (r *Roster) RenameRound(ctx context.Context, oldName, newName string) error {
	return r.renameName(ctx, KindRound, oldName, newName)
}

// RenameJudge changes a judge's display name. Entries reference the judge ID
// and are left as they are.
func (r *Roster) RenameJudge(ctx context.Context, idOrName, newName string) error {
	newName, err := validName(KindJudge, newName)
	if err != nil {
		return err
	}
	return r.mutate(ctx, func(next *model.RosterState) (migration, error) {
		i := judgeIndex(next.Judges, idOrName)
		if i < 0 {
			return nil, unknown(KindJudge, idOrName)
		}
		if j := judgeNameIndex(next.Judges, newName); j >= 0 && j != i {
			return nil, duplicate(KindJudge, newName)
		}
		if next.Judges[i].Name == newName {
			return nil, errNoChange
		}
		next.Judges[i].Name = newName
		return keepAll, nil
	})
}

// RemoveTeam removes a team and drops its entries.
func (r *Roster) RemoveTeam(ctx context.Context, name string) error {
	return r.removeName(ctx, KindTeam, name)
}

// RemoveRound removes a round and drops its entries.
func (r *Roster) RemoveRound(ctx context.Context, name string) error {
	return r.removeName(ctx, KindRound, name)
}

// RemoveJudge removes a judge and drops every entry the judge submitted.
func (r *Roster) RemoveJudge(ctx context.Context, idOrName string) error {
	return r.mutate(ctx, func(next *model.RosterState) (migration, error) {
		i := judgeIndex(next.Judges, idOrName)
		if i < 0 {
			return nil, unknown(KindJudge, idOrName)
		}
		id := next.Judges[i].ID
		next.Judges = slices.Delete(next.Judges, i, i+1)
		return func(e model.ScoreEntry) (model.ScoreEntry, bool) {
			return e, e.JudgeID != id
		}, nil
	})
}

func (r *Roster) addName(ctx context.Context, kind Kind, name string) error {
	name, err := validName(kind, name)
	if err != nil {
		return err
	}
	return r.mutate(ctx, func(next *model.RosterState) (migration, error) {
		list := listOf(next, kind)
		if slices.Contains(*list, name) {
			return nil, duplicate(kind, name)
		}
		*list = append(*list, name)
		return keepAll, nil
	})
}

func (r *Roster) renameName(ctx context.Context, kind Kind, oldName, newName string) error {
	oldName = Normalize(oldName)
	newName, err := validName(kind, newName)
	if err != nil {
		return err
	}
	return r.mutate(ctx, func(next *model.RosterState) (migration, error) {
		list := listOf(next, kind)
		i := slices.Index(*list, oldName)
		if i < 0 {
			return nil, unknown(kind, oldName)
		}
		if oldName == newName {
			return nil, errNoChange
		}
		if slices.Contains(*list, newName) {
			return nil, duplicate(kind, newName)
		}
		(*list)[i] = newName
		return func(e model.ScoreEntry) (model.ScoreEntry, bool) {
			switch {
			case kind == KindTeam && e.Team == oldName:
				e.Team = newName
			case kind == KindRound && e.Round == oldName:
				e.Round = newName
			}
			return e, true
		}, nil
	})
}

func (r *Roster) removeName(ctx context.Context, kind Kind, name string) error {
	name = Normalize(name)
	return r.mutate(ctx, func(next *model.RosterState) (migration, error) {
		list := listOf(next, kind)
		i := slices.Index(*list, name)
		if i < 0 {
			return nil, unknown(kind, name)
		}
		*list = slices.Delete(*list, i, i+1)
		return func(e model.ScoreEntry) (model.ScoreEntry, bool) {
			if kind == KindTeam {
				return e, e.Team != name
			}
			return e, e.Round != name
		}, nil
	})
}

// migration maps a stored entry onto the next roster; false drops it.
type migration func(model.ScoreEntry) (model.ScoreEntry, bool)

func keepAll(e model.ScoreEntry) (model.ScoreEntry, bool) { return e, true }

// errNoChange short-circuits a mutation that would leave the roster as is.
var errNoChange = errors.New("roster unchanged")

// mutate applies edit to a copy of the state, migrates the stored entries and
// commits both. The in-memory state changes only after a successful commit.
func (r *Roster) mutate(ctx context.Context, edit func(next *model.RosterState) (migration, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.Clone()
	migrate, err := edit(&next)
	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return err
	}

	entries, err := r.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	migrated := make([]model.ScoreEntry, 0, len(entries))
	for _, e := range filterTo(r.state, entries) {
		if e, keep := migrate(e); keep {
			migrated = append(migrated, e)
		}
	}
	if err := r.store.Commit(ctx, next, migrated); err != nil {
		return err
	}
	r.state = next
	return nil
}

// filterTo keeps the entries whose round, team and judge are all on state.
func filterTo(state model.RosterState, entries []model.ScoreEntry) []model.ScoreEntry {
	out := make([]model.ScoreEntry, 0, len(entries))
	for _, e := range entries {
		if slices.Contains(state.Rounds, e.Round) &&
			slices.Contains(state.Teams, e.Team) &&
			slices.ContainsFunc(state.Judges, func(j model.Judge) bool { return j.ID == e.JudgeID }) {
			out = append(out, e)
		}
	}
	return out
}

func listOf(s *model.RosterState, kind Kind) *[]string {
	if kind == KindTeam {
		return &s.Teams
	}
	return &s.Rounds
}

func judgeIndex(judges []model.Judge, idOrName string) int {
	if i := slices.IndexFunc(judges, func(j model.Judge) bool { return j.ID == idOrName }); i >= 0 {
		return i
	}
	return judgeNameIndex(judges, Normalize(idOrName))
}

func judgeNameIndex(judges []model.Judge, name string) int {
	return slices.IndexFunc(judges, func(j model.Judge) bool { return j.Name == name })
}

func validName(kind Kind, name string) (string, error) {
	name = Normalize(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty %s name", model.ErrInvalidName, kind)
	}
	return name, nil
}

func uniqueNames(kind Kind, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n, err := validName(kind, n)
		if err != nil {
			return nil, err
		}
		if slices.Contains(out, n) {
			return nil, duplicate(kind, n)
		}
		out = append(out, n)
	}
	return out, nil
}

func duplicate(kind Kind, name string) error {
	return fmt.Errorf("%w: %s %q", model.ErrDuplicateName, kind, name)
}

func unknown(kind Kind, name string) error {
	return fmt.Errorf("%w: %s %q", model.ErrUnknownKey, kind, name)
}
