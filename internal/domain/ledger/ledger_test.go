package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/iamofff/kvn-scoring-system/internal/adapters/repository"
	"github.com/iamofff/kvn-scoring-system/internal/domain/ledger"
	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
	"github.com/iamofff/kvn-scoring-system/internal/domain/roster"
	"github.com/iamofff/kvn-scoring-system/internal/domain/scale"
	"github.com/iamofff/kvn-scoring-system/internal/domain/scoring"
)

var fixedNow = time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

func setup() (*ledger.Ledger, *roster.Roster, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	n := 0
	r := roster.New(store, roster.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("j%d", n)
	}))
	_, err := r.Load(context.Background(), roster.Seed{
		Teams:  []string{"Alpha", "Beta"},
		Judges: []string{"J1", "J2", "J3", "J4", "J5"},
		Rounds: []string{"Greeting", "Warmup"},
	})
	if err != nil {
		panic(err)
	}
	l := ledger.New(store, r, scale.New(), ledger.WithClock(func() time.Time { return fixedNow }))
	return l, r, store
}

func TestSubmitScore(t *testing.T) {
	Convey("Given a ledger with five judges", t, func() {
		ctx := context.Background()
		l, _, store := setup()

		Convey("When a judge submits the same score twice", func() {
			_, err1 := l.SubmitScore(ctx, "Greeting", "Alpha", "j1", 4)
			_, err2 := l.SubmitScore(ctx, "Greeting", "Alpha", "j1", 4)

			Convey("Then exactly one entry exists", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				entries, _ := store.LoadAll(ctx)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].UpdatedAt.Equal(fixedNow), ShouldBeTrue)
			})
		})

		Convey("When a judge changes their score", func() {
			_, _ = l.SubmitScore(ctx, "Greeting", "Alpha", "j1", 4)
			_, _ = l.SubmitScore(ctx, "Greeting", "Alpha", "J1", 2)

			Convey("Then the later value replaces the earlier one", func() {
				entries, _ := store.LoadAll(ctx)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].Value, ShouldEqual, 2)
			})
		})

		Convey("When three judges score 3, 2 and 2", func() {
			for i, v := range []float64{3, 2, 2} {
				_, err := l.SubmitScore(ctx, "Greeting", "Alpha", fmt.Sprintf("j%d", i+1), v)
				So(err, ShouldBeNil)
			}

			Convey("Then the round average divides by all five judges", func() {
				snap, err := l.Snapshot(ctx)
				So(err, ShouldBeNil)
				So(scoring.New().RoundAverage(snap, "Greeting", "Alpha"), ShouldEqual, 1.4)
			})
		})

		Convey("When the round is not on the roster", func() {
			_, err := l.SubmitScore(ctx, "Finale", "Alpha", "j1", 3)

			Convey("Then the error is both an invalid score and a stale key", func() {
				So(errors.Is(err, model.ErrInvalidScore), ShouldBeTrue)
				So(errors.Is(err, model.ErrUnknownKey), ShouldBeTrue)
				n, _ := store.Count(ctx)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When the judge is unknown", func() {
			_, err := l.SubmitScore(ctx, "Greeting", "Alpha", "j9", 3)

			Convey("Then it is rejected as a stale key", func() {
				So(errors.Is(err, model.ErrUnknownKey), ShouldBeTrue)
			})
		})

		Convey("When the value is off the scale", func() {
			Convey("Then out of range, off-step and NaN values are rejected", func() {
				for _, v := range []float64{-1, 6, 2.5, math.NaN()} {
					_, err := l.SubmitScore(ctx, "Greeting", "Alpha", "j1", v)
					So(errors.Is(err, model.ErrInvalidScore), ShouldBeTrue)
					So(errors.Is(err, model.ErrUnknownKey), ShouldBeFalse)
				}
				n, _ := store.Count(ctx)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When names carry extra whitespace", func() {
			e, err := l.SubmitScore(ctx, " Greeting ", "Alpha  ", "j2", 5)

			Convey("Then they resolve to the roster names", func() {
				So(err, ShouldBeNil)
				So(e.Key(), ShouldResemble, model.Key{Round: "Greeting", Team: "Alpha", JudgeID: "j2"})
			})
		})
	})
}

func TestCurrentScore(t *testing.T) {
	Convey("Given a ledger", t, func() {
		ctx := context.Background()
		l, _, _ := setup()

		Convey("When nothing was submitted", func() {
			s, err := l.CurrentScore(ctx, "Warmup", "Beta", "j3")

			Convey("Then the default is zero and unscored", func() {
				So(err, ShouldBeNil)
				So(s, ShouldResemble, model.Score{})
			})
		})

		Convey("When a score was submitted", func() {
			_, _ = l.SubmitScore(ctx, "Warmup", "Beta", "j3", 5)
			s, err := l.CurrentScore(ctx, "Warmup", "Beta", "J3")

			Convey("Then it is returned", func() {
				So(err, ShouldBeNil)
				So(s, ShouldResemble, model.Score{Value: 5, Scored: true})
			})
		})

		Convey("When the triple is off the roster", func() {
			_, err := l.CurrentScore(ctx, "Warmup", "Gamma", "j3")

			Convey("Then it fails with an unknown key only", func() {
				So(errors.Is(err, model.ErrUnknownKey), ShouldBeTrue)
				So(errors.Is(err, model.ErrInvalidScore), ShouldBeFalse)
			})
		})
	})
}

func TestClearAll(t *testing.T) {
	Convey("Given a ledger with scores", t, func() {
		ctx := context.Background()
		l, r, _ := setup()
		_, _ = l.SubmitScore(ctx, "Greeting", "Alpha", "j1", 5)
		_, _ = l.SubmitScore(ctx, "Warmup", "Beta", "j2", 4)
		rosterBefore := r.State()

		Convey("When clearing", func() {
			So(l.ClearAll(ctx), ShouldBeNil)

			Convey("Then the scoreboard is all zeros and the roster is kept", func() {
				snap, err := l.Snapshot(ctx)
				So(err, ShouldBeNil)
				So(snap.Entries, ShouldBeEmpty)
				So(r.State(), ShouldResemble, rosterBefore)
				for _, row := range scoring.New().Scoreboard(snap) {
					So(row.Total, ShouldEqual, 0)
				}
			})
		})
	})
}

func TestDetailAndProtocol(t *testing.T) {
	Convey("Given scores from several judges", t, func() {
		ctx := context.Background()
		l, r, _ := setup()
		_, _ = l.SubmitScore(ctx, "Warmup", "Alpha", "j2", 3)
		_, _ = l.SubmitScore(ctx, "Greeting", "Beta", "j1", 4)
		_, _ = l.SubmitScore(ctx, "Greeting", "Alpha", "j3", 5)
		_, _ = l.SubmitScore(ctx, "Greeting", "Alpha", "j1", 1)

		Convey("When asking for a detail view", func() {
			detail, err := l.Detail(ctx, "Greeting", "Alpha")

			Convey("Then every judge is listed in roster order", func() {
				So(err, ShouldBeNil)
				So(detail, ShouldHaveLength, 5)
				So(detail[0], ShouldResemble, model.JudgeScore{JudgeID: "j1", JudgeName: "J1", Value: 1, Scored: true})
				So(detail[1].Scored, ShouldBeFalse)
				So(detail[2].Value, ShouldEqual, 5)
			})
		})

		Convey("When asking for a detail view of an unknown team", func() {
			_, err := l.Detail(ctx, "Greeting", "Gamma")

			Convey("Then it fails with an unknown key", func() {
				So(errors.Is(err, model.ErrUnknownKey), ShouldBeTrue)
			})
		})

		Convey("When asking for the protocol", func() {
			So(r.RenameJudge(ctx, "j1", "Chair"), ShouldBeNil)
			rows, err := l.Protocol(ctx)

			Convey("Then rows follow round, team and judge order with current names", func() {
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 4)
				got := make([]string, 0, len(rows))
				for _, row := range rows {
					got = append(got, row.Round+"/"+row.Team+"/"+row.JudgeName)
				}
				So(got, ShouldResemble, []string{
					"Greeting/Alpha/Chair",
					"Greeting/Alpha/J3",
					"Greeting/Beta/Chair",
					"Warmup/Alpha/J2",
				})
			})
		})
	})
}
