package api

import (
	"net/http"
	"strings"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
)

// submitRequest mirrors the OpenAPI schema for POST /scores.
// Value is a pointer so that a missing value is told apart from 0.
type submitRequest struct {
	Round string   `json:"round" validate:"required"`
	Team  string   `json:"team" validate:"required"`
	Judge string   `json:"judge" validate:"required"`
	Value *float64 `json:"value" validate:"required"`
}

// ScoresHandler serves score submission and the per-judge views.
type ScoresHandler struct {
	deps Dependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Dependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

// HandleSubmit handles POST /scores.
func (h *ScoresHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_score"
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	entry, err := h.deps.SubmitScore(r.Context(), req.Round, req.Team, req.Judge, *req.Value)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleCurrent handles GET /scores?round=&team=&judge=.
func (h *ScoresHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	const op = "api.current_score"
	q := r.URL.Query()
	round, team, judge := q.Get("round"), q.Get("team"), q.Get("judge")
	if missing(round, team, judge) {
		fail(w, WrapKind(op, ErrBadRequest, errMissingParams))
		return
	}
	score, err := h.deps.CurrentScore(r.Context(), round, team, judge)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// HandleDetail handles GET /scores/detail?round=&team=.
func (h *ScoresHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	const op = "api.score_detail"
	q := r.URL.Query()
	round, team := q.Get("round"), q.Get("team")
	if missing(round, team) {
		fail(w, WrapKind(op, ErrBadRequest, errMissingParams))
		return
	}
	detail, err := h.deps.Detail(r.Context(), round, team)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleProtocol handles GET /protocol.
func (h *ScoresHandler) HandleProtocol(w http.ResponseWriter, r *http.Request) {
	const op = "api.protocol"
	rows, err := h.deps.Protocol(r.Context())
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if rows == nil {
		rows = []model.ProtocolRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleClear handles DELETE /scores.
func (h *ScoresHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	const op = "api.clear_scores"
	if err := h.deps.ClearAll(r.Context()); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func missing(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
