package api

import (
	"net/http"

	"github.com/iamofff/kvn-scoring-system/internal/domain/roster"
)

type nameRequest struct {
	Name string `json:"name" validate:"required"`
}

type renameRequest struct {
	Old string `json:"old" validate:"required"`
	New string `json:"new" validate:"required"`
}

// kinds maps the {kind} path segment onto roster lists.
var kinds = map[string]roster.Kind{
	"teams":  roster.KindTeam,
	"judges": roster.KindJudge,
	"rounds": roster.KindRound,
}

// RosterHandler serves the roster and its admin edits.
type RosterHandler struct {
	deps Dependencies
}

// NewRosterHandler creates a new roster handler.
func NewRosterHandler(deps Dependencies) *RosterHandler {
	return &RosterHandler{deps: deps}
}

// HandleGetRoster handles GET /roster.
func (h *RosterHandler) HandleGetRoster(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_roster"
	state, err := h.deps.Roster(r.Context())
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleAdd handles POST /roster/{kind}.
func (h *RosterHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	const op = "api.roster_add"
	kind, ok := kinds[r.PathValue("kind")]
	if !ok {
		fail(w, NewKind(op, ErrUnknownKind))
		return
	}
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	state, err := h.deps.Add(r.Context(), kind, req.Name)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

// HandleRename handles POST /roster/{kind}/rename.
func (h *RosterHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	const op = "api.roster_rename"
	kind, ok := kinds[r.PathValue("kind")]
	if !ok {
		fail(w, NewKind(op, ErrUnknownKind))
		return
	}
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	state, err := h.deps.Rename(r.Context(), kind, req.Old, req.New)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleRemove handles POST /roster/{kind}/remove.
func (h *RosterHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	const op = "api.roster_remove"
	kind, ok := kinds[r.PathValue("kind")]
	if !ok {
		fail(w, NewKind(op, ErrUnknownKind))
		return
	}
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	state, err := h.deps.Remove(r.Context(), kind, req.Name)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, state)
}
