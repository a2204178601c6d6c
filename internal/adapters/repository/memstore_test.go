package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
)

func entry(round, team, judge string, v float64) model.ScoreEntry {
	return model.ScoreEntry{Round: round, Team: team, JudgeID: judge, Value: v}
}

func TestMemoryStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, time.March, 1, 18, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithClock(func() time.Time { return fixed }))

	all, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty store, got %d entries", len(all))
	}

	if err := store.Upsert(ctx, entry("СТЭМ", "A", "j1", 3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Upsert(ctx, entry("СТЭМ", "A", "j2", 4)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, err = store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].JudgeID != "j1" || all[1].JudgeID != "j2" {
		t.Errorf("expected entries ordered by judge id, got %s, %s", all[0].JudgeID, all[1].JudgeID)
	}
	if !all[0].UpdatedAt.Equal(fixed) {
		t.Errorf("expected entry stamped with %v, got %v", fixed, all[0].UpdatedAt)
	}
}

func TestMemoryStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, v := range []float64{1, 5, 2} {
		if err := store.Upsert(ctx, entry("Разминка", "A", "j1", v)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	all, _ := store.LoadAll(ctx)
	if len(all) != 1 {
		t.Fatalf("expected exactly one entry for the key, got %d", len(all))
	}
	if all[0].Value != 2 {
		t.Errorf("expected last value 2, got %v", all[0].Value)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}
}

func TestMemoryStore_DeleteAllKeepsRoster(t *testing.T) {
	ctx := context.Background()
	roster := model.RosterState{Teams: []string{"A"}, Rounds: []string{"СТЭМ"}}
	store := NewMemoryStore(WithRoster(roster))

	_ = store.Upsert(ctx, entry("СТЭМ", "A", "j1", 3))
	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, _ := store.LoadAll(ctx)
	if len(all) != 0 {
		t.Errorf("expected no entries after DeleteAll, got %d", len(all))
	}
	got, err := store.LoadRoster(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Teams) != 1 || got.Teams[0] != "A" {
		t.Errorf("expected roster kept, got %+v", got)
	}
}

func TestMemoryStore_Commit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.LoadRoster(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first commit, got %v", err)
	}

	_ = store.Upsert(ctx, entry("СТЭМ", "Old", "j1", 3))
	roster := model.RosterState{Teams: []string{"New"}, Rounds: []string{"СТЭМ"}}
	if err := store.Commit(ctx, roster, []model.ScoreEntry{entry("СТЭМ", "New", "j1", 3)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, _ := store.LoadAll(ctx)
	if len(all) != 1 || all[0].Team != "New" {
		t.Fatalf("expected only the migrated entry, got %+v", all)
	}

	roster.Teams[0] = "mutated"
	got, _ := store.LoadRoster(ctx)
	if got.Teams[0] != "New" {
		t.Errorf("expected committed roster to be isolated from caller, got %v", got.Teams)
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Close()

	checks := map[string]error{
		"upsert":     store.Upsert(ctx, entry("СТЭМ", "A", "j1", 1)),
		"delete_all": store.DeleteAll(ctx),
		"commit":     store.Commit(ctx, model.RosterState{}, nil),
	}
	_, checks["load_all"] = store.LoadAll(ctx)
	_, checks["load_roster"] = store.LoadRoster(ctx)
	_, checks["count"] = store.Count(ctx)

	for op, err := range checks {
		if !errors.Is(err, model.ErrStoreUnavailable) {
			t.Errorf("%s: expected ErrStoreUnavailable, got %v", op, err)
		}
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewMemoryStore()

	if err := store.Upsert(ctx, entry("СТЭМ", "A", "j1", 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryStore_ConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const judges = 5
	const rounds = 20
	var wg sync.WaitGroup
	for j := 0; j < judges; j++ {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			judge := fmt.Sprintf("j%d", j)
			for r := 0; r < rounds; r++ {
				for v := 0; v <= 5; v++ {
					_ = store.Upsert(ctx, entry(fmt.Sprintf("r%d", r), "A", judge, float64(v)))
				}
			}
		}(j)
	}
	wg.Wait()

	all, _ := store.LoadAll(ctx)
	if len(all) != judges*rounds {
		t.Fatalf("expected %d entries, got %d", judges*rounds, len(all))
	}
	seen := make(map[model.Key]bool)
	for _, e := range all {
		if seen[e.Key()] {
			t.Fatalf("duplicate entry for %+v", e.Key())
		}
		seen[e.Key()] = true
		if e.Value != 5 {
			t.Errorf("expected last write 5 for %+v, got %v", e.Key(), e.Value)
		}
	}
}
