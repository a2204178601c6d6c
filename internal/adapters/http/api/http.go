// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
	"github.com/iamofff/kvn-scoring-system/internal/domain/roster"
)

// maxBodyBytes bounds request bodies; every request is a handful of names.
const maxBodyBytes = 64 << 10

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmitScore(ctx context.Context, round, team, judge string, value float64) (model.ScoreEntry, error)
	CurrentScore(ctx context.Context, round, team, judge string) (model.Score, error)
	Detail(ctx context.Context, round, team string) ([]model.JudgeScore, error)
	Protocol(ctx context.Context) ([]model.ProtocolRow, error)
	Standings(ctx context.Context) (model.Standings, error)
	ClearAll(ctx context.Context) error

	Roster(ctx context.Context) (model.RosterState, error)
	Add(ctx context.Context, kind roster.Kind, name string) (model.RosterState, error)
	Rename(ctx context.Context, kind roster.Kind, oldName, newName string) (model.RosterState, error)
	Remove(ctx context.Context, kind roster.Kind, name string) (model.RosterState, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	scoresHandler     *ScoresHandler
	scoreboardHandler *ScoreboardHandler
	rosterHandler     *RosterHandler

	access  *Access
	limiter *rate.Limiter
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithPasswords sets the bearer passwords of the judge and admin roles.
func WithPasswords(judge, admin string) Option {
	return func(s *Server) {
		s.access = NewAccess(judge, admin)
	}
}

// WithSubmitLimit limits POST /scores to perSecond with the given burst.
// A non-positive rate disables limiting.
func WithSubmitLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		scoresHandler:     NewScoresHandler(deps),
		scoreboardHandler: NewScoreboardHandler(deps),
		rosterHandler:     NewRosterHandler(deps),
		access:            NewAccess("", ""),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	judge := func(h http.HandlerFunc) http.HandlerFunc { return s.access.Require(RoleJudge, h) }
	admin := func(h http.HandlerFunc) http.HandlerFunc { return s.access.Require(RoleAdmin, h) }

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(admin(s.statsHandler.HandleStats), "stats"))
	mux.HandleFunc("GET /scoreboard", MetricsMiddleware(s.scoreboardHandler.HandleGetScoreboard, "scoreboard"))

	mux.HandleFunc("POST /scores", MetricsMiddleware(judge(RateLimitMiddleware(s.limiter, s.scoresHandler.HandleSubmit)), "scores"))
	mux.HandleFunc("GET /scores", MetricsMiddleware(judge(s.scoresHandler.HandleCurrent), "scores"))
	mux.HandleFunc("DELETE /scores", MetricsMiddleware(admin(s.scoresHandler.HandleClear), "scores"))
	mux.HandleFunc("GET /scores/detail", MetricsMiddleware(judge(s.scoresHandler.HandleDetail), "scores_detail"))
	mux.HandleFunc("GET /protocol", MetricsMiddleware(judge(s.scoresHandler.HandleProtocol), "protocol"))

	mux.HandleFunc("GET /roster", MetricsMiddleware(judge(s.rosterHandler.HandleGetRoster), "roster"))
	mux.HandleFunc("POST /roster/{kind}", MetricsMiddleware(admin(s.rosterHandler.HandleAdd), "roster_add"))
	mux.HandleFunc("POST /roster/{kind}/rename", MetricsMiddleware(admin(s.rosterHandler.HandleRename), "roster_rename"))
	mux.HandleFunc("POST /roster/{kind}/remove", MetricsMiddleware(admin(s.rosterHandler.HandleRemove), "roster_remove"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

var validate = validator.New()

// decodeJSON reads a single JSON object into dst and validates its tags.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON object", ErrBadRequest)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
