package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/hanta/internal/adapters/repository"
	"github.com/okian/hanta/internal/domain/model"
)

const defaultLeaderboardLimit = 10

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	CurrentBoard(mode model.Mode) repository.Board
	TopN(ctx context.Context, b repository.Board, n int) ([]model.RankedEntry, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /api/leaderboard?mode=&year=&month=&limit=.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	board, err := parseBoard(r, h.deps)
	if err != nil {
		writeFailure(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	n := defaultLeaderboardLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err = strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeFailure(w, wrapKind(op, ErrBadRequest, errors.New("limit must be a positive integer")))
			return
		}
	}
	n = min(n, h.maxLimit)

	entries, err := h.deps.TopN(r.Context(), board, n)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if entries == nil {
		entries = []model.RankedEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// parseBoard reads mode, year and month. Year and month default to the
// current period.
func parseBoard(r *http.Request, current interface {
	CurrentBoard(model.Mode) repository.Board
}) (repository.Board, error) {
	q := r.URL.Query()
	mode, err := model.ParseMode(q.Get("mode"))
	if err != nil {
		return repository.Board{}, err
	}
	b := current.CurrentBoard(mode)
	if s := q.Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil || y < 1 {
			return repository.Board{}, errors.New("year must be a positive integer")
		}
		b.Year = y
	}
	if s := q.Get("month"); s != "" {
		m, err := strconv.Atoi(s)
		if err != nil || m < 1 || m > 12 {
			return repository.Board{}, errors.New("month must be between 1 and 12")
		}
		b.Month = m
	}
	return b, nil
}
