// Package model contains domain models passed between layers.
package model

import "time"

// Key identifies the single score slot a judge owns for a team in a round.
type Key struct {
	Round   string
	Team    string
	JudgeID string
}

// ScoreEntry is one judge's score for a team in a round.
// At most one entry exists per Key; resubmissions replace the value.
type ScoreEntry struct {
	Round     string    `json:"round"`      // round display name, e.g. "Приветствие"
	Team      string    `json:"team"`       // team display name
	JudgeID   string    `json:"judge_id"`   // stable judge identifier, never a list position
	Value     float64   `json:"value"`      // value on the configured scale
	UpdatedAt time.Time `json:"updated_at"` // last write time, informational only
}

// Key returns the upsert key of the entry.
func (e ScoreEntry) Key() Key {
	return Key{Round: e.Round, Team: e.Team, JudgeID: e.JudgeID}
}

// Judge is a panel member. ID is assigned once and survives renames.
type Judge struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RosterState is the ordered set of identifiers a contest runs with.
// Order is presentation order.
type RosterState struct {
	Teams  []string `json:"teams"`
	Judges []Judge  `json:"judges"`
	Rounds []string `json:"rounds"`
}

// Clone returns a deep copy safe to mutate.
func (s RosterState) Clone() RosterState {
	return RosterState{
		Teams:  append([]string(nil), s.Teams...),
		Judges: append([]Judge(nil), s.Judges...),
		Rounds: append([]string(nil), s.Rounds...),
	}
}

// IsZero reports whether the state has no identifiers at all.
func (s RosterState) IsZero() bool {
	return len(s.Teams) == 0 && len(s.Judges) == 0 && len(s.Rounds) == 0
}

// Score is the answer to "what did this judge give": Scored is false when
// no entry exists and Value then holds the default 0.
type Score struct {
	Value  float64 `json:"value"`
	Scored bool    `json:"scored"`
}

// JudgeScore is one cell of the per-(round, team) detail view.
type JudgeScore struct {
	JudgeID   string  `json:"judge_id"`
	JudgeName string  `json:"judge_name"`
	Value     float64 `json:"value"`
	Scored    bool    `json:"scored"`
}

// ProtocolRow is one stored entry resolved to display names.
type ProtocolRow struct {
	Round     string    `json:"round"`
	Team      string    `json:"team"`
	JudgeID   string    `json:"judge_id"`
	JudgeName string    `json:"judge_name"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScoreboardRow is the derived standing of a team.
type ScoreboardRow struct {
	Rank     int                `json:"rank"`
	Team     string             `json:"team"`
	PerRound map[string]float64 `json:"per_round"`
	Total    float64            `json:"total"`
}

// Standings is a scoreboard with the round order of the roster it was
// computed from; PerRound is a map and carries no order of its own.
type Standings struct {
	Rounds []string        `json:"rounds"`
	Rows   []ScoreboardRow `json:"rows"`
}
