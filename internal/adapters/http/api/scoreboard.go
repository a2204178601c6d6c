package api

import (
	"context"
	"net/http"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
)

// ScoreboardDependencies defines the interface for scoreboard reads.
type ScoreboardDependencies interface {
	Standings(ctx context.Context) (model.Standings, error)
}

// ScoreboardHandler serves the public ranked scoreboard.
type ScoreboardHandler struct {
	deps ScoreboardDependencies
}

// NewScoreboardHandler creates a new scoreboard handler.
func NewScoreboardHandler(deps ScoreboardDependencies) *ScoreboardHandler {
	return &ScoreboardHandler{deps: deps}
}

// HandleGetScoreboard handles GET /scoreboard.
func (h *ScoreboardHandler) HandleGetScoreboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_scoreboard"
	st, err := h.deps.Standings(r.Context())
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	// Rounds and rows come from one snapshot, so per_round keys match rounds.
	if st.Rounds == nil {
		st.Rounds = []string{}
	}
	if st.Rows == nil {
		st.Rows = []model.ScoreboardRow{}
	}
	writeJSON(w, http.StatusOK, st)
}
