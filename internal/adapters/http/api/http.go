// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	service "github.com/okian/hanta/internal/app"
	"github.com/okian/hanta/internal/adapters/repository"
	"github.com/okian/hanta/internal/domain/keystroke"
	"github.com/okian/hanta/internal/domain/model"
	"github.com/okian/hanta/internal/domain/session"
	"github.com/okian/hanta/internal/domain/validation"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	ScoreDependencies
	LeaderboardDependencies
	RankDependencies
	PreviewDependencies
}

type (
	// SessionDependencies opens practice sessions.
	SessionDependencies interface {
		OpenSession(ctx context.Context, addr, mode string) (session.Session, error)
	}
	// ScoreDependencies validates and stores submissions.
	ScoreDependencies interface {
		Submit(ctx context.Context, addr string, req validation.Request) (validation.Verdict, error)
	}
	// PreviewDependencies computes statistics without side effects.
	PreviewDependencies interface {
		Preview(reference, typed string, elapsedSeconds float64, mode model.Mode) keystroke.Result
	}
)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	sessionsHandler    *SessionsHandler
	scoresHandler      *ScoresHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	previewHandler     *PreviewHandler
}

// Option configures the Server.
type Option func(*serverOptions)

type serverOptions struct {
	maxLimit   int
	trustProxy bool
}

// WithMaxLeaderboardLimit caps the leaderboard limit parameter.
func WithMaxLeaderboardLimit(n int) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxLimit = n
		}
	}
}

// WithTrustProxyHeaders takes the caller address from X-Forwarded-For.
func WithTrustProxyHeaders(on bool) Option {
	return func(o *serverOptions) { o.trustProxy = on }
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := serverOptions{maxLimit: 100}
	for _, opt := range opts {
		opt(&o)
	}
	addr := func(r *http.Request) string { return clientAddr(r, o.trustProxy) }
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		sessionsHandler:    NewSessionsHandler(deps, addr),
		scoresHandler:      NewScoresHandler(deps, addr),
		leaderboardHandler: NewLeaderboardHandler(deps, o.maxLimit),
		rankHandler:        NewRankHandler(deps),
		previewHandler:     NewPreviewHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/sessions", MetricsMiddleware(s.sessionsHandler.HandleOpenSession, "sessions"))
	mux.HandleFunc("/api/scores", MetricsMiddleware(s.scoresHandler.HandleSubmitScore, "scores"))
	mux.HandleFunc("/api/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/api/rank/{name}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/api/stats/preview", MetricsMiddleware(s.previewHandler.HandlePreview, "preview"))
}

type errorResponse struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Reasons []string   `json:"reasons,omitempty"`
	ResetAt *time.Time `json:"resetAt,omitempty"`
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

// writeFailure maps a service error to its status and error body.
func writeFailure(w http.ResponseWriter, err error) {
	var rej *validation.Rejection
	switch {
	case errors.As(err, &rej):
		body := errorResponse{Code: rej.Code(), Message: rej.Kind.Error(), Reasons: rej.Reasons}
		status := rejectionStatus(rej)
		if !rej.ResetAt.IsZero() {
			at := rej.ResetAt.UTC()
			body.ResetAt = &at
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter(rej.RetryAfter)))
		}
		writeJSON(w, status, body)
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusServiceUnavailable, "backpressure", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, model.ErrInvalidMode), errors.Is(err, ErrBadRequest),
		errors.Is(err, repository.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

func rejectionStatus(rej *validation.Rejection) int {
	switch {
	case errors.Is(rej, validation.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(rej, validation.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(rej, validation.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(rej, validation.ErrScoreMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// retryAfter is the Retry-After value in whole seconds, at least one.
func retryAfter(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	return max(secs, 1)
}

// decodeJSON reads one JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// clientAddr returns the caller address used for throttling.
func clientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// compile-time checks against the application service
var (
	_ Dependencies  = (*service.Service)(nil)
	_ StatsProvider = (*service.Service)(nil)
)
