// Package service wires the scoring domain to a store and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/iamofff/kvn-scoring-system/internal/adapters/repository"
	"github.com/iamofff/kvn-scoring-system/internal/domain/ledger"
	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
	"github.com/iamofff/kvn-scoring-system/internal/domain/roster"
	"github.com/iamofff/kvn-scoring-system/internal/domain/scale"
	"github.com/iamofff/kvn-scoring-system/internal/domain/scoring"
	"github.com/iamofff/kvn-scoring-system/pkg/logger"
	"github.com/iamofff/kvn-scoring-system/pkg/metrics"
)

const tracerName = "github.com/iamofff/kvn-scoring-system/internal/app"

// Submission outcomes reported to metrics.
const (
	outcomeAccepted = "accepted"
	outcomeInvalid  = "invalid"
	outcomeStale    = "stale"
	outcomeFailed   = "failed"
)

// Roster actions reported to metrics.
const (
	actionAdd    = "add"
	actionRename = "rename"
	actionRemove = "remove"
)

// ErrNotStarted is returned by every operation before Start.
var ErrNotStarted = errors.New("service not started")

// ErrStopped is returned by Start once the service has been stopped.
var ErrStopped = errors.New("service stopped")

// ErrUnknownKind rejects a roster operation on an unknown list.
var ErrUnknownKind = errors.New("unknown roster kind")

// Service implements the API dependencies for the scoring system.
type Service struct {
	mu sync.RWMutex

	// writeMu serialises every mutation: submissions, roster edits and resets.
	writeMu sync.Mutex

	// Core components
	store  repository.Store
	roster *roster.Roster
	ledger *ledger.Ledger
	agg    *scoring.Aggregator

	boards singleflight.Group
	// generation counts committed mutations and keys scoreboard flights, so
	// a read never joins a computation older than a write it has observed.
	generation atomic.Uint64

	// Configuration
	seed        roster.Seed
	scale       scale.Scale
	scoringOpts []scoring.Option
	idGen       func() string

	// State
	started   bool
	stopped   bool
	startedAt time.Time

	tracer trace.Tracer
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSeed sets the roster used when the store holds none.
func WithSeed(seed roster.Seed) Option {
	return func(s *Service) {
		s.seed = seed
	}
}

// WithScale sets the score scale.
func WithScale(sc scale.Scale) Option {
	return func(s *Service) {
		s.scale = sc
	}
}

// WithScoringOptions configures the aggregation policy.
func WithScoringOptions(opts ...scoring.Option) Option {
	return func(s *Service) {
		s.scoringOpts = append(s.scoringOpts, opts...)
	}
}

// WithIDGenerator overrides judge id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.idGen = gen
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer used for spans. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		scale: scale.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Start loads the roster and makes the service ready for requests.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}

	s.logger.Info(ctx, "starting scoring service...")

	var ropts []roster.Option
	if s.idGen != nil {
		ropts = append(ropts, roster.WithIDGenerator(s.idGen))
	}
	s.roster = roster.New(s.store, ropts...)
	seeded, err := s.roster.Load(ctx, s.seed)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	s.ledger = ledger.New(s.store, s.roster, s.scale)
	s.agg = scoring.New(s.scoringOpts...)

	state := s.roster.State()
	metrics.UpdateRosterSize(len(state.Teams), len(state.Judges), len(state.Rounds))
	if n, err := s.store.Count(ctx); err == nil {
		metrics.UpdateEntriesTotal(n)
	}

	policy := s.agg.Policy()
	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "scoring service started",
		logger.Bool("seeded", seeded),
		logger.Int("teams", len(state.Teams)),
		logger.Int("judges", len(state.Judges)),
		logger.Int("rounds", len(state.Rounds)),
		logger.String("divisor", string(policy.Divisor)),
		logger.Bool("trimmedMean", policy.TrimmedMean),
	)
	return nil
}

// Stop closes the store. A stopped service cannot be started again.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping scoring service...")

	s.writeMu.Lock()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store failed", logger.Error(err))
	}
	s.writeMu.Unlock()

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "scoring service stopped")
}

// SubmitScore records a judge's score. judge may be an id or a display name.
func (s *Service) SubmitScore(ctx context.Context, round, team, judge string, value float64) (model.ScoreEntry, error) {
	ctx, span := s.startSpan(ctx, "Service.SubmitScore",
		attribute.String("round", round),
		attribute.String("team", team),
		attribute.String("judge", judge),
		attribute.Float64("value", value),
	)
	defer span.End()

	if err := s.ready(); err != nil {
		return model.ScoreEntry{}, err
	}

	s.writeMu.Lock()
	e, err := s.ledger.SubmitScore(ctx, round, team, judge, value)
	if err == nil {
		s.generation.Add(1)
	}
	s.writeMu.Unlock()

	if err != nil {
		outcome := submissionOutcome(err)
		metrics.RecordScoreSubmission(outcome)
		endSpan(span, err)
		s.logger.Warn(ctx, "score rejected",
			logger.String("round", round),
			logger.String("team", team),
			logger.String("judge", judge),
			logger.Float64("value", value),
			logger.String("outcome", outcome),
			logger.Error(err),
		)
		return model.ScoreEntry{}, err
	}

	metrics.RecordScoreSubmission(outcomeAccepted)
	s.logger.Info(ctx, "score saved",
		logger.String("round", e.Round),
		logger.String("team", e.Team),
		logger.String("judgeID", e.JudgeID),
		logger.Float64("value", e.Value),
	)
	return e, nil
}

// CurrentScore returns what a judge has given a team in a round.
func (s *Service) CurrentScore(ctx context.Context, round, team, judge string) (model.Score, error) {
	ctx, span := s.startSpan(ctx, "Service.CurrentScore")
	defer span.End()
	if err := s.ready(); err != nil {
		return model.Score{}, err
	}
	score, err := s.ledger.CurrentScore(ctx, round, team, judge)
	endSpan(span, err)
	return score, err
}

// Detail returns every judge's score for a team in a round.
func (s *Service) Detail(ctx context.Context, round, team string) ([]model.JudgeScore, error) {
	ctx, span := s.startSpan(ctx, "Service.Detail")
	defer span.End()
	if err := s.ready(); err != nil {
		return nil, err
	}
	detail, err := s.ledger.Detail(ctx, round, team)
	endSpan(span, err)
	return detail, err
}

// Protocol returns every stored score resolved to display names.
func (s *Service) Protocol(ctx context.Context) ([]model.ProtocolRow, error) {
	ctx, span := s.startSpan(ctx, "Service.Protocol")
	defer span.End()
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.ledger.Protocol(ctx)
	endSpan(span, err)
	return rows, err
}

// Scoreboard computes the ranked scoreboard rows.
func (s *Service) Scoreboard(ctx context.Context) ([]model.ScoreboardRow, error) {
	st, err := s.Standings(ctx)
	if err != nil {
		return nil, err
	}
	return st.Rows, nil
}

// Standings computes the ranked scoreboard together with the round order of
// the roster it was computed from. Callers that arrive between the same two
// mutations share one computation; the result must not be modified.
func (s *Service) Standings(ctx context.Context) (model.Standings, error) {
	ctx, span := s.startSpan(ctx, "Service.Standings")
	defer span.End()
	if err := s.ready(); err != nil {
		return model.Standings{}, err
	}

	gen := s.generation.Load()
	// The flight outlives any single caller.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := s.boards.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		start := time.Now()
		snap, err := s.ledger.Snapshot(flightCtx)
		if err != nil {
			return nil, err
		}
		rows := s.agg.Scoreboard(snap)
		metrics.RecordScoreboard(float64(time.Since(start).Microseconds()) / 1000)
		return model.Standings{Rounds: snap.Roster.Rounds, Rows: rows}, nil
	})
	span.SetAttributes(attribute.Bool("shared", shared), attribute.Int64("generation", int64(gen)))
	if err != nil {
		endSpan(span, err)
		return model.Standings{}, err
	}
	return v.(model.Standings), nil
}

// ClearAll deletes every score and keeps the roster.
func (s *Service) ClearAll(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Service.ClearAll")
	defer span.End()
	if err := s.ready(); err != nil {
		return err
	}

	s.writeMu.Lock()
	err := s.ledger.ClearAll(ctx)
	if err == nil {
		s.generation.Add(1)
	}
	s.writeMu.Unlock()
	if err != nil {
		endSpan(span, err)
		s.logger.Error(ctx, "clearing scores failed", logger.Error(err))
		return err
	}
	metrics.RecordReset()
	s.logger.Warn(ctx, "all scores cleared")
	return nil
}

// Roster returns the current roster.
func (s *Service) Roster(ctx context.Context) (model.RosterState, error) {
	if err := s.ready(); err != nil {
		return model.RosterState{}, err
	}
	return s.roster.State(), nil
}

// Scale returns the configured score scale.
func (s *Service) Scale() scale.Scale { return s.scale }

// Add appends name to the list of kind. Judges receive a fresh id.
func (s *Service) Add(ctx context.Context, kind roster.Kind, name string) (model.RosterState, error) {
	return s.editRoster(ctx, kind, actionAdd, func() error {
		switch kind {
		case roster.KindTeam:
			return s.roster.AddTeam(ctx, name)
		case roster.KindRound:
			return s.roster.AddRound(ctx, name)
		case roster.KindJudge:
			_, err := s.roster.AddJudge(ctx, name)
			return err
		}
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}, logger.String("name", name))
}

// Rename changes a name on the list of kind and migrates its scores.
// Judges may be addressed by id or name.
func (s *Service) Rename(ctx context.Context, kind roster.Kind, oldName, newName string) (model.RosterState, error) {
	return s.editRoster(ctx, kind, actionRename, func() error {
		switch kind {
		case roster.KindTeam:
			return s.roster.RenameTeam(ctx, oldName, newName)
		case roster.KindRound:
			return s.roster.RenameRound(ctx, oldName, newName)
		case roster.KindJudge:
			return s.roster.RenameJudge(ctx, oldName, newName)
		}
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}, logger.String("old", oldName), logger.String("new", newName))
}

// Remove deletes a name from the list of kind together with its scores.
func (s *Service) Remove(ctx context.Context, kind roster.Kind, name string) (model.RosterState, error) {
	return s.editRoster(ctx, kind, actionRemove, func() error {
		switch kind {
		case roster.KindTeam:
			return s.roster.RemoveTeam(ctx, name)
		case roster.KindRound:
			return s.roster.RemoveRound(ctx, name)
		case roster.KindJudge:
			return s.roster.RemoveJudge(ctx, name)
		}
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}, logger.String("name", name))
}

func (s *Service) editRoster(ctx context.Context, kind roster.Kind, action string, edit func() error, fields ...logger.Field) (model.RosterState, error) {
	ctx, span := s.startSpan(ctx, "Service.Roster."+action, attribute.String("kind", string(kind)))
	defer span.End()
	if err := s.ready(); err != nil {
		return model.RosterState{}, err
	}

	s.writeMu.Lock()
	err := edit()
	if err == nil {
		s.generation.Add(1)
	}
	state := s.roster.State()
	s.writeMu.Unlock()

	fields = append(fields, logger.String("kind", string(kind)), logger.String("action", action))
	if err != nil {
		endSpan(span, err)
		s.logger.Warn(ctx, "roster change rejected", append(fields, logger.Error(err))...)
		return model.RosterState{}, err
	}

	metrics.RecordRosterMutation(string(kind), action)
	metrics.UpdateRosterSize(len(state.Teams), len(state.Judges), len(state.Rounds))
	s.logger.Info(ctx, "roster changed", fields...)
	return state, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started": s.started,
	}
	if !s.started {
		return stats
	}

	state := s.roster.State()
	policy := s.agg.Policy()
	stats["teams"] = len(state.Teams)
	stats["judges"] = len(state.Judges)
	stats["rounds"] = len(state.Rounds)
	stats["divisor"] = string(policy.Divisor)
	stats["trimmedMean"] = policy.TrimmedMean
	stats["trimThreshold"] = policy.TrimThreshold
	stats["scaleMin"] = s.scale.Min()
	stats["scaleMax"] = s.scale.Max()
	stats["uptimeSeconds"] = int(time.Since(s.startedAt).Seconds())
	if n, err := s.store.Count(context.Background()); err == nil {
		stats["entries"] = n
		metrics.UpdateEntriesTotal(n)
	}
	return stats
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func submissionOutcome(err error) string {
	switch {
	case errors.Is(err, model.ErrUnknownKey):
		return outcomeStale
	case errors.Is(err, model.ErrInvalidScore):
		return outcomeInvalid
	default:
		return outcomeFailed
	}
}
