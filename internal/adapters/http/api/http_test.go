package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/iamofff/kvn-scoring-system/internal/adapters/http/api"
	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
	"github.com/iamofff/kvn-scoring-system/internal/domain/roster"
)

const (
	judgePassword = "kvn"
	adminPassword = "admin"
)

// mockDependencies records calls and returns canned results.
type mockDependencies struct {
	submitErr error
	submitted []string
	cleared   int
	state     model.RosterState
	board     []model.ScoreboardRow
	rounds    []string
	editErr   error
	edits     []string
}

func (m *mockDependencies) SubmitScore(_ context.Context, round, team, judge string, value float64) (model.ScoreEntry, error) {
	if m.submitErr != nil {
		return model.ScoreEntry{}, m.submitErr
	}
	m.submitted = append(m.submitted, fmt.Sprintf("%s/%s/%s=%g", round, team, judge, value))
	return model.ScoreEntry{Round: round, Team: team, JudgeID: judge, Value: value}, nil
}

func (m *mockDependencies) CurrentScore(_ context.Context, round, _, _ string) (model.Score, error) {
	if round == "Finale" {
		return model.Score{}, fmt.Errorf("%w: round %q", model.ErrUnknownKey, round)
	}
	return model.Score{Value: 3, Scored: true}, nil
}

func (m *mockDependencies) Detail(_ context.Context, _, _ string) ([]model.JudgeScore, error) {
	return []model.JudgeScore{{JudgeID: "j1", JudgeName: "Ann", Value: 4, Scored: true}, {JudgeID: "j2", JudgeName: "Bob"}}, nil
}

func (m *mockDependencies) Protocol(context.Context) ([]model.ProtocolRow, error) {
	return nil, nil
}

func (m *mockDependencies) Standings(context.Context) (model.Standings, error) {
	rounds := m.rounds
	if rounds == nil {
		rounds = m.state.Rounds
	}
	return model.Standings{Rounds: rounds, Rows: m.board}, nil
}

func (m *mockDependencies) ClearAll(context.Context) error {
	m.cleared++
	return nil
}

func (m *mockDependencies) Roster(context.Context) (model.RosterState, error) {
	return m.state, nil
}

func (m *mockDependencies) Add(_ context.Context, kind roster.Kind, name string) (model.RosterState, error) {
	m.edits = append(m.edits, fmt.Sprintf("add %s %s", kind, name))
	return m.state, m.editErr
}

func (m *mockDependencies) Rename(_ context.Context, kind roster.Kind, oldName, newName string) (model.RosterState, error) {
	m.edits = append(m.edits, fmt.Sprintf("rename %s %s->%s", kind, oldName, newName))
	return m.state, m.editErr
}

func (m *mockDependencies) Remove(_ context.Context, kind roster.Kind, name string) (model.RosterState, error) {
	m.edits = append(m.edits, fmt.Sprintf("remove %s %s", kind, name))
	return m.state, m.editErr
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	opts = append([]api.Option{api.WithPasswords(judgePassword, adminPassword)}, opts...)
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}}, opts...)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, password, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if password != "" {
		req.Header.Set("Authorization", "Bearer "+password)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func TestServer_Access(t *testing.T) {
	Convey("Given a registered API", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("Then public routes need no password", func() {
			So(do(mux, "GET", "/healthz", "", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "GET", "/scoreboard", "", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then judge routes reject anonymous callers", func() {
			w := do(mux, "GET", "/roster", "", "")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(w.Header().Get("WWW-Authenticate"), ShouldNotBeEmpty)
			So(do(mux, "GET", "/roster", "wrong", "").Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Then judges reach judge routes but not admin routes", func() {
			So(do(mux, "GET", "/roster", judgePassword, "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "DELETE", "/scores", judgePassword, "").Code, ShouldEqual, http.StatusForbidden)
			So(do(mux, "GET", "/stats", judgePassword, "").Code, ShouldEqual, http.StatusForbidden)
		})

		Convey("Then admins reach everything", func() {
			So(do(mux, "GET", "/roster", adminPassword, "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "GET", "/stats", adminPassword, "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "DELETE", "/scores", adminPassword, "").Code, ShouldEqual, http.StatusNoContent)
		})
	})

	Convey("Given a server without configured passwords", t, func() {
		server := api.NewServer(&mockDependencies{}, &mockStatsProvider{})
		mux := http.NewServeMux()
		server.Register(context.Background(), mux)

		Convey("Then an empty bearer token is not accepted", func() {
			req := httptest.NewRequest("GET", "/roster", http.NoBody)
			req.Header.Set("Authorization", "Bearer ")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}

func TestScoresHandler(t *testing.T) {
	Convey("Given a registered API", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When a judge submits a valid score", func() {
			w := do(mux, "POST", "/scores", judgePassword, `{"round":"Greeting","team":"Alpha","judge":"Ann","value":0}`)

			Convey("Then it is forwarded, zero included", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.submitted, ShouldResemble, []string{"Greeting/Alpha/Ann=0"})
			})

			Convey("Then the stored entry is echoed in snake_case", func() {
				var body map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body, ShouldContainKey, "round")
				So(body, ShouldContainKey, "team")
				So(body, ShouldContainKey, "judge_id")
				So(body, ShouldContainKey, "value")
				So(body, ShouldContainKey, "updated_at")
				So(body, ShouldNotContainKey, "JudgeID")
			})
		})

		Convey("When the value is missing", func() {
			w := do(mux, "POST", "/scores", judgePassword, `{"round":"Greeting","team":"Alpha","judge":"Ann"}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "bad_request")
				So(deps.submitted, ShouldBeEmpty)
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, "POST", "/scores", judgePassword, `round=Greeting`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the body has unknown fields", func() {
			w := do(mux, "POST", "/scores", judgePassword, `{"round":"G","team":"A","judge":"J","value":1,"extra":true}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the score is off the scale", func() {
			deps.submitErr = fmt.Errorf("%w: 7 outside [0, 5]", model.ErrInvalidScore)
			w := do(mux, "POST", "/scores", judgePassword, `{"round":"G","team":"A","judge":"J","value":7}`)

			Convey("Then it is unprocessable", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(errorCode(w), ShouldEqual, "invalid_score")
			})
		})

		Convey("When the roster changed under the judge", func() {
			deps.submitErr = fmt.Errorf("%w: %w", model.ErrInvalidScore, model.ErrUnknownKey)
			w := do(mux, "POST", "/scores", judgePassword, `{"round":"G","team":"A","judge":"J","value":1}`)

			Convey("Then the judge is told to refresh", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(errorCode(w), ShouldEqual, "stale_roster")
				So(w.Body.String(), ShouldContainSubstring, "please refresh")
			})
		})

		Convey("When the store is down", func() {
			deps.submitErr = fmt.Errorf("%w: disk", model.ErrStoreUnavailable)
			w := do(mux, "POST", "/scores", judgePassword, `{"round":"G","team":"A","judge":"J","value":1}`)

			Convey("Then it is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When reading a current score", func() {
			w := do(mux, "GET", "/scores?round=Greeting&team=Alpha&judge=Ann", judgePassword, "")

			Convey("Then it is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var s model.Score
				So(json.Unmarshal(w.Body.Bytes(), &s), ShouldBeNil)
				So(s, ShouldResemble, model.Score{Value: 3, Scored: true})
			})
		})

		Convey("When reading a score for a stale round", func() {
			w := do(mux, "GET", "/scores?round=Finale&team=Alpha&judge=Ann", judgePassword, "")

			Convey("Then it is a conflict", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("When query parameters are missing", func() {
			Convey("Then current and detail reject it", func() {
				So(do(mux, "GET", "/scores?round=Greeting", judgePassword, "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, "GET", "/scores/detail?team=Alpha", judgePassword, "").Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When reading the detail view", func() {
			w := do(mux, "GET", "/scores/detail?round=Greeting&team=Alpha", judgePassword, "")

			Convey("Then every judge is listed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var rows []model.JudgeScore
				So(json.Unmarshal(w.Body.Bytes(), &rows), ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
			})
		})

		Convey("When reading an empty protocol", func() {
			w := do(mux, "GET", "/protocol", judgePassword, "")

			Convey("Then an empty array is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
			})
		})

		Convey("When the admin clears all scores", func() {
			w := do(mux, "DELETE", "/scores", adminPassword, "")

			Convey("Then the dependency is called once", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(deps.cleared, ShouldEqual, 1)
			})
		})
	})
}

func TestSubmitRateLimit(t *testing.T) {
	Convey("Given a server with a burst of two submissions", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, api.WithSubmitLimit(0.001, 2))
		body := `{"round":"G","team":"A","judge":"J","value":1}`

		Convey("When three submissions arrive at once", func() {
			codes := []int{
				do(mux, "POST", "/scores", judgePassword, body).Code,
				do(mux, "POST", "/scores", judgePassword, body).Code,
				do(mux, "POST", "/scores", judgePassword, body).Code,
			}

			Convey("Then the third is rejected", func() {
				So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})
				So(deps.submitted, ShouldHaveLength, 2)
			})
		})

		Convey("Then reads are not limited", func() {
			for i := 0; i < 5; i++ {
				So(do(mux, "GET", "/scores?round=G&team=A&judge=J", judgePassword, "").Code, ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestScoreboardHandler(t *testing.T) {
	Convey("Given a scoreboard", t, func() {
		deps := &mockDependencies{
			state: model.RosterState{Rounds: []string{"Greeting", "Warmup"}},
			board: []model.ScoreboardRow{
				{Rank: 1, Team: "Beta", PerRound: map[string]float64{"Greeting": 4, "Warmup": 2.4}, Total: 6.4},
				{Rank: 2, Team: "Alpha", PerRound: map[string]float64{"Greeting": 1, "Warmup": 1}, Total: 2},
			},
		}
		mux := newMux(deps)

		Convey("When it is fetched anonymously", func() {
			w := do(mux, "GET", "/scoreboard", "", "")

			Convey("Then rows and round order are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body struct {
					Rounds []string              `json:"rounds"`
					Rows   []model.ScoreboardRow `json:"rows"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Rounds, ShouldResemble, []string{"Greeting", "Warmup"})
				So(body.Rows, ShouldResemble, deps.board)
			})
		})

		Convey("When the roster changed after the board was computed", func() {
			deps.state.Rounds = []string{"Greeting", "Finale"}
			deps.rounds = []string{"Greeting", "Warmup"}
			w := do(mux, "GET", "/scoreboard", "", "")

			Convey("Then the rounds are the ones the rows were computed with", func() {
				var body model.Standings
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Rounds, ShouldResemble, []string{"Greeting", "Warmup"})
				for _, row := range body.Rows {
					for round := range row.PerRound {
						So(body.Rounds, ShouldContain, round)
					}
				}
			})
		})
	})
}

func TestRosterHandler(t *testing.T) {
	Convey("Given an admin session", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When adding, renaming and removing", func() {
			So(do(mux, "POST", "/roster/teams", adminPassword, `{"name":"Gamma"}`).Code, ShouldEqual, http.StatusCreated)
			So(do(mux, "POST", "/roster/rounds/rename", adminPassword, `{"old":"Warmup","new":"Music"}`).Code, ShouldEqual, http.StatusOK)
			So(do(mux, "POST", "/roster/judges/remove", adminPassword, `{"name":"Ann"}`).Code, ShouldEqual, http.StatusOK)

			Convey("Then each edit reaches the service with its kind", func() {
				So(deps.edits, ShouldResemble, []string{
					"add team Gamma",
					"rename round Warmup->Music",
					"remove judge Ann",
				})
			})
		})

		Convey("When the list is unknown", func() {
			w := do(mux, "POST", "/roster/venues", adminPassword, `{"name":"Hall"}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.edits, ShouldBeEmpty)
			})
		})

		Convey("When the new name collides", func() {
			deps.editErr = fmt.Errorf("%w: team %q", model.ErrDuplicateName, "Beta")
			w := do(mux, "POST", "/roster/teams/rename", adminPassword, `{"old":"Alpha","new":"Beta"}`)

			Convey("Then it is a conflict", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(errorCode(w), ShouldEqual, "duplicate_name")
			})
		})

		Convey("When the name is empty", func() {
			w := do(mux, "POST", "/roster/teams", adminPassword, `{"name":""}`)

			Convey("Then validation rejects it", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When a judge tries to edit", func() {
			w := do(mux, "POST", "/roster/teams", judgePassword, `{"name":"Gamma"}`)

			Convey("Then it is forbidden", func() {
				So(w.Code, ShouldEqual, http.StatusForbidden)
			})
		})
	})
}
