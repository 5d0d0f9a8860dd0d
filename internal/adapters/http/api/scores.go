package api

import (
	"net/http"

	"github.com/okian/hanta/internal/domain/validation"
)

// ScoresHandler handles score submissions.
type ScoresHandler struct {
	deps ScoreDependencies
	addr func(*http.Request) string
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies, addr func(*http.Request) string) *ScoresHandler {
	return &ScoresHandler{deps: deps, addr: addr}
}

// submitRequest is the wire shape of POST /api/scores. Pointers tell
// absent fields from zero values.
type submitRequest struct {
	Token        string   `json:"token"`
	Name         string   `json:"name"`
	Type         string   `json:"type,omitempty"`
	OriginalText *string  `json:"originalText,omitempty"`
	TypedText    *string  `json:"typedText,omitempty"`
	TimeElapsed  *float64 `json:"timeElapsed,omitempty"`
	Score        *float64 `json:"score"`
	Accuracy     *float64 `json:"accuracy"`
	CPM          *float64 `json:"cpm,omitempty"`
	WPM          *float64 `json:"wpm,omitempty"`
	Grade        *string  `json:"grade,omitempty"`
	ProverbCount *int     `json:"proverbCount,omitempty"`
	TextTitle    *string  `json:"textTitle,omitempty"`
	Level        *int     `json:"level,omitempty"`
	WordsCaught  *int     `json:"wordsCaught,omitempty"`
	WordsMissed  *int     `json:"wordsMissed,omitempty"`
}

func (s submitRequest) toDomain() validation.Request {
	return validation.Request{
		Token:        s.Token,
		Name:         s.Name,
		Type:         s.Type,
		OriginalText: s.OriginalText,
		TypedText:    s.TypedText,
		TimeElapsed:  s.TimeElapsed,
		Score:        s.Score,
		Accuracy:     s.Accuracy,
		CPM:          s.CPM,
		WPM:          s.WPM,
		Grade:        s.Grade,
		ProverbCount: s.ProverbCount,
		TextTitle:    s.TextTitle,
		Level:        s.Level,
		WordsCaught:  s.WordsCaught,
		WordsMissed:  s.WordsMissed,
	}
}

type submitResponse struct {
	Success  bool     `json:"success"`
	Score    int64    `json:"score"`
	Accuracy float64  `json:"accuracy"`
	CPM      *float64 `json:"cpm,omitempty"`
}

// HandleSubmitScore handles POST /api/scores requests.
func (h *ScoresHandler) HandleSubmitScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_score"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	v, err := h.deps.Submit(r.Context(), h.addr(r), req.toDomain())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Success:  true,
		Score:    v.Record.Score,
		Accuracy: v.Record.Accuracy,
		CPM:      v.CPM,
	})
}
