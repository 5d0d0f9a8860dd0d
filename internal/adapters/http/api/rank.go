package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/hanta/internal/adapters/repository"
	"github.com/okian/hanta/internal/domain/model"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	CurrentBoard(mode model.Mode) repository.Board
	Rank(ctx context.Context, b repository.Board, name string) (model.RankedEntry, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /api/rank/{name}?mode=&year=&month= requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		writeFailure(w, wrapKind(op, ErrBadRequest, errors.New("name is required")))
		return
	}
	board, err := parseBoard(r, h.deps)
	if err != nil {
		writeFailure(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	entry, err := h.deps.Rank(r.Context(), board, name)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
