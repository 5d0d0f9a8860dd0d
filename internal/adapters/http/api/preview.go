package api

import (
	"errors"
	"math"
	"net/http"

	"github.com/okian/hanta/internal/domain/model"
)

// PreviewHandler computes live statistics for external clients.
type PreviewHandler struct {
	deps PreviewDependencies
}

// NewPreviewHandler creates a new preview handler.
func NewPreviewHandler(deps PreviewDependencies) *PreviewHandler {
	return &PreviewHandler{deps: deps}
}

type previewRequest struct {
	OriginalText string  `json:"originalText"`
	TypedText    string  `json:"typedText"`
	TimeElapsed  float64 `json:"timeElapsed"`
	Mode         string  `json:"mode"`
}

// HandlePreview handles POST /api/stats/preview requests.
func (h *PreviewHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	const op = "api.preview"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		writeFailure(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	if req.TimeElapsed < 0 || math.IsNaN(req.TimeElapsed) {
		writeFailure(w, wrapKind(op, ErrBadRequest, errors.New("timeElapsed must not be negative")))
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Preview(req.OriginalText, req.TypedText, req.TimeElapsed, mode))
}
