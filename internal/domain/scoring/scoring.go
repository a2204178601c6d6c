// Package scoring turns raw judge scores into round averages and a ranked scoreboard.
//
// Everything here is a pure function over a snapshot of the roster and the
// stored entries; nothing is cached between calls.
package scoring

import (
	"math"
	"slices"
	"sort"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
)

// Divisor selects what a round's score sum is divided by.
type Divisor string

const (
	// DivisorJudges divides by the configured judge count, so a judge who has
	// not scored counts as a zero.
	DivisorJudges Divisor = "judges"
	// DivisorResponders divides by the number of judges who actually scored.
	DivisorResponders Divisor = "responders"
)

// minTrimSample keeps at least one value after dropping the lowest and highest.
const minTrimSample = 3

// displayPrecision is the number of decimals shown on the board.
const displayPrecision = 100

// Policy holds the aggregation rules of a deployment.
type Policy struct {
	Divisor       Divisor
	TrimmedMean   bool
	TrimThreshold int // <= 0 means "the current judge count"
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithDivisor sets the divisor rule. Unknown values are ignored.
func WithDivisor(d Divisor) Option {
	return func(a *Aggregator) {
		switch d {
		case DivisorJudges, DivisorResponders:
			a.policy.Divisor = d
		}
	}
}

// WithTrimmedMean enables dropping the highest and lowest score once at least
// threshold judges have scored. A threshold <= 0 tracks the judge count.
func WithTrimmedMean(enabled bool, threshold int) Option {
	return func(a *Aggregator) {
		a.policy.TrimmedMean = enabled
		a.policy.TrimThreshold = threshold
	}
}

// Snapshot is the input of every aggregation: the roster and all stored entries.
type Snapshot struct {
	Roster  model.RosterState
	Entries []model.ScoreEntry
}

// Aggregator computes averages and scoreboards under a Policy.
type Aggregator struct {
	policy Policy
}

// New creates an Aggregator. By default it divides by the judge count and does not trim.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{policy: Policy{Divisor: DivisorJudges}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the active rules.
func (a *Aggregator) Policy() Policy { return a.policy }

// Average combines the submitted values of one (round, team) at full precision.
// judgeCount is the size of the panel, used by DivisorJudges and as the
// default trimming threshold.
func (a *Aggregator) Average(values []float64, judgeCount int) float64 {
	if len(values) == 0 {
		return 0
	}

	if a.policy.TrimmedMean && len(values) >= a.trimThreshold(judgeCount) {
		sorted := slices.Clone(values)
		slices.Sort(sorted)
		inner := sorted[1 : len(sorted)-1]
		return sum(inner) / float64(len(inner))
	}

	divisor := judgeCount
	if a.policy.Divisor == DivisorResponders {
		divisor = len(values)
	}
	if divisor <= 0 {
		return 0
	}
	return sum(values) / float64(divisor)
}

// RoundAverage returns the display value (two decimals) for one round and team.
func (a *Aggregator) RoundAverage(s Snapshot, round, team string) float64 {
	values := collect(s)[cell{round: round, team: team}]
	return Round2(a.Average(values, len(s.Roster.Judges)))
}

// Scoreboard returns one row per roster team ordered by total descending.
// Teams with equal totals keep roster order. Teams without scores are listed with zeros.
func (a *Aggregator) Scoreboard(s Snapshot) []model.ScoreboardRow {
	cells := collect(s)
	judgeCount := len(s.Roster.Judges)

	rows := make([]model.ScoreboardRow, 0, len(s.Roster.Teams))
	for _, team := range s.Roster.Teams {
		row := model.ScoreboardRow{
			Team:     team,
			PerRound: make(map[string]float64, len(s.Roster.Rounds)),
		}
		total := 0.0
		for _, round := range s.Roster.Rounds {
			avg := a.Average(cells[cell{round: round, team: team}], judgeCount)
			row.PerRound[round] = Round2(avg)
			total += avg
		}
		row.Total = Round2(total)
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Total > rows[j].Total
	})
	assignRanksWithTies(rows)
	return rows
}

// Round2 rounds to two decimal places for display.
func Round2(x float64) float64 {
	return math.Round(x*displayPrecision) / displayPrecision
}

func (a *Aggregator) trimThreshold(judgeCount int) int {
	t := a.policy.TrimThreshold
	if t <= 0 {
		t = judgeCount
	}
	return max(t, minTrimSample)
}

type cell struct {
	round string
	team  string
}

// collect groups entry values by (round, team), keeping only judges on the roster.
func collect(s Snapshot) map[cell][]float64 {
	judges := make(map[string]struct{}, len(s.Roster.Judges))
	for _, j := range s.Roster.Judges {
		judges[j.ID] = struct{}{}
	}
	out := make(map[cell][]float64)
	for _, e := range s.Entries {
		if _, ok := judges[e.JudgeID]; !ok {
			continue
		}
		k := cell{round: e.Round, team: e.Team}
		out[k] = append(out[k], e.Value)
	}
	return out
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// assignRanksWithTies gives equal totals the same rank; ranks are consecutive.
func assignRanksWithTies(rows []model.ScoreboardRow) {
	rank := 0
	for i := range rows {
		if i == 0 || rows[i].Total != rows[i-1].Total {
			rank++
		}
		rows[i].Rank = rank
	}
}
