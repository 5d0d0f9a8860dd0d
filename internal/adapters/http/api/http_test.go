package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/hanta/internal/adapters/http/api"
	"github.com/okian/hanta/internal/adapters/repository"
	service "github.com/okian/hanta/internal/app"
	"github.com/okian/hanta/internal/domain/keystroke"
	"github.com/okian/hanta/internal/domain/model"
	"github.com/okian/hanta/internal/domain/session"
	"github.com/okian/hanta/internal/domain/validation"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies records what the handlers pass through.
type mockDependencies struct {
	mu sync.Mutex

	sess     session.Session
	openErr  error
	openMode string

	verdict   validation.Verdict
	submitErr error
	lastReq   validation.Request

	lastAddr string

	top       []model.RankedEntry
	topErr    error
	lastN     int
	lastBoard repository.Board

	rank    model.RankedEntry
	rankErr error
}

func (m *mockDependencies) OpenSession(_ context.Context, addr, mode string) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAddr, m.openMode = addr, mode
	if m.openErr != nil {
		return session.Session{}, m.openErr
	}
	return m.sess, nil
}

func (m *mockDependencies) Submit(_ context.Context, addr string, req validation.Request) (validation.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAddr, m.lastReq = addr, req
	return m.verdict, m.submitErr
}

func (m *mockDependencies) Preview(reference, typed string, elapsed float64, mode model.Mode) keystroke.Result {
	return keystroke.Compute(reference, typed, elapsed, mode)
}

func (m *mockDependencies) CurrentBoard(mode model.Mode) repository.Board {
	return repository.Board{Mode: mode, Year: 2026, Month: 3}
}

func (m *mockDependencies) TopN(_ context.Context, b repository.Board, n int) ([]model.RankedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastBoard, m.lastN = b, n
	return m.top, m.topErr
}

func (m *mockDependencies) Rank(_ context.Context, b repository.Board, _ string) (model.RankedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastBoard = b
	return m.rank, m.rankErr
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

func newMux(deps *mockDependencies, opts ...api.Option) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}}, opts...)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.RemoteAddr = "192.0.2.1:5555"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("Then the health endpoint should report ok", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["status"], ShouldEqual, "ok")
		})

		Convey("Then the metrics endpoint should expose the registry", func() {
			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "hanta_scores_sessions_active")
		})

		Convey("Then the stats endpoint should return provider stats", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["started"], ShouldEqual, true)
		})

		Convey("Then unknown paths should be not found", func() {
			w := do(mux, http.MethodGet, "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSessionsHandler(t *testing.T) {
	Convey("Given the sessions endpoint", t, func() {
		expires := time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)
		deps := &mockDependencies{sess: session.Session{Token: "tok-1", Mode: model.ModeLong, ExpiresAt: expires}}
		mux := newMux(deps)

		Convey("When a session is opened", func() {
			w := do(mux, http.MethodPost, "/api/sessions", `{"mode":"long"}`)

			Convey("Then it should return the token and expiry", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				body := decodeBody(w)
				So(body["token"], ShouldEqual, "tok-1")
				So(body["mode"], ShouldEqual, "long")
				So(body["expiresAt"], ShouldEqual, "2026-03-14T13:00:00Z")
				So(deps.lastAddr, ShouldEqual, "192.0.2.1")
				So(deps.openMode, ShouldEqual, "long")
			})
		})

		Convey("When the mode is unknown", func() {
			deps.openErr = fmt.Errorf("%w: %q", model.ErrInvalidMode, "marathon")
			w := do(mux, http.MethodPost, "/api/sessions", `{"mode":"marathon"}`)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When too many sessions were opened", func() {
			now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
			deps.openErr = validation.RateLimited(now.Add(29500*time.Millisecond), now, "too many sessions opened")
			w := do(mux, http.MethodPost, "/api/sessions", `{"mode":"short"}`)

			Convey("Then it should be rate limited with a retry hint", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(w.Header().Get("Retry-After"), ShouldEqual, "30")
				body := decodeBody(w)
				So(body["code"], ShouldEqual, "rate_limited")
				So(body["resetAt"], ShouldNotBeEmpty)
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, http.MethodPost, "/api/sessions", `{mode`)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the method is not POST", func() {
			w := do(mux, http.MethodGet, "/api/sessions", "")

			Convey("Then it should be not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestScoresHandler(t *testing.T) {
	Convey("Given the scores endpoint", t, func() {
		cpm := 30.0
		deps := &mockDependencies{verdict: validation.Verdict{
			Record: model.Record{Name: "민수", Score: 30, Accuracy: 100},
			CPM:    &cpm,
		}}
		mux := newMux(deps)
		const body = `{"token":"tok-1","name":"민수","type":"short","originalText":"cat",` +
			`"typedText":"cat","timeElapsed":6,"score":30,"accuracy":100,"cpm":30,"proverbCount":2}`

		Convey("When an accepted score is submitted", func() {
			w := do(mux, http.MethodPost, "/api/scores", body)

			Convey("Then it should echo the stored numbers", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				resp := decodeBody(w)
				So(resp["success"], ShouldEqual, true)
				So(resp["score"], ShouldEqual, 30.0)
				So(resp["accuracy"], ShouldEqual, 100.0)
				So(resp["cpm"], ShouldEqual, 30.0)
			})

			Convey("And every wire field should reach the pipeline", func() {
				req := deps.lastReq
				So(req.Token, ShouldEqual, "tok-1")
				So(*req.OriginalText, ShouldEqual, "cat")
				So(*req.TimeElapsed, ShouldEqual, 6)
				So(*req.ProverbCount, ShouldEqual, 2)
				So(req.WPM, ShouldBeNil)
				So(deps.lastAddr, ShouldEqual, "192.0.2.1")
			})
		})

		Convey("When the pipeline reports a mismatch", func() {
			deps.submitErr = &validation.Rejection{
				Kind:    validation.ErrScoreMismatch,
				Reasons: []string{"submitted statistics do not match"},
			}
			w := do(mux, http.MethodPost, "/api/scores", body)

			Convey("Then it should be unprocessable with a generic reason", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				resp := decodeBody(w)
				So(resp["code"], ShouldEqual, "score_mismatch")
				So(resp["reasons"], ShouldResemble, []any{"submitted statistics do not match"})
				So(w.Header().Get("Retry-After"), ShouldBeEmpty)
			})
		})

		Convey("When the token is rejected", func() {
			deps.submitErr = &validation.Rejection{Kind: validation.ErrUnauthorized}
			w := do(mux, http.MethodPost, "/api/scores", body)

			Convey("Then it should be unauthorized", func() {
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
				So(decodeBody(w)["code"], ShouldEqual, "unauthorized")
			})
		})

		Convey("When the persistence queue is full", func() {
			deps.submitErr = fmt.Errorf("%w: queue full", service.ErrBackpressure)
			w := do(mux, http.MethodPost, "/api/scores", body)

			Convey("Then it should be unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(decodeBody(w)["code"], ShouldEqual, "backpressure")
			})
		})

		Convey("When an unexpected error occurs", func() {
			deps.submitErr = errors.New("disk on fire")
			w := do(mux, http.MethodPost, "/api/scores", body)

			Convey("Then the cause should not leak", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldNotContainSubstring, "disk")
			})
		})

		Convey("When a field has the wrong type", func() {
			w := do(mux, http.MethodPost, "/api/scores", `{"token":"t","name":"n","score":"high"}`)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestLeaderboardHandler(t *testing.T) {
	Convey("Given the leaderboard endpoint capped at five", t, func() {
		deps := &mockDependencies{top: []model.RankedEntry{
			{Rank: 1, Name: "dan", Score: 90},
			{Rank: 2, Name: "amy", Score: 80},
		}}
		mux := newMux(deps, api.WithMaxLeaderboardLimit(5))

		Convey("When requesting the current month", func() {
			w := do(mux, http.MethodGet, "/api/leaderboard?mode=short", "")

			Convey("Then it should use the current board and default limit", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastBoard, ShouldResemble, repository.Board{Mode: model.ModeShort, Year: 2026, Month: 3})
				So(deps.lastN, ShouldEqual, 5)

				var entries []model.RankedEntry
				So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].Name, ShouldEqual, "dan")
			})
		})

		Convey("When requesting a past month with a small limit", func() {
			w := do(mux, http.MethodGet, "/api/leaderboard?mode=venice&year=2025&month=12&limit=2", "")

			Convey("Then the board and limit should be passed through", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastBoard, ShouldResemble, repository.Board{Mode: model.ModeVenice, Year: 2025, Month: 12})
				So(deps.lastN, ShouldEqual, 2)
			})
		})

		Convey("When the board is empty", func() {
			deps.top = nil
			w := do(mux, http.MethodGet, "/api/leaderboard?mode=long", "")

			Convey("Then it should return an empty array", func() {
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
			})
		})

		Convey("When parameters are invalid", func() {
			for _, q := range []string{"", "?mode=marathon", "?mode=short&limit=0", "?mode=short&limit=x", "?mode=short&month=13", "?mode=short&year=-1"} {
				w := do(mux, http.MethodGet, "/api/leaderboard"+q, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})
	})
}

func TestRankHandler(t *testing.T) {
	Convey("Given the rank endpoint", t, func() {
		deps := &mockDependencies{rank: model.RankedEntry{Rank: 2, Name: "amy", Score: 80}}
		mux := newMux(deps)

		Convey("When the name is ranked", func() {
			w := do(mux, http.MethodGet, "/api/rank/amy?mode=short", "")

			Convey("Then it should return the entry", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(w)
				So(body["rank"], ShouldEqual, 2.0)
				So(body["name"], ShouldEqual, "amy")
			})
		})

		Convey("When the name is unknown", func() {
			deps.rankErr = fmt.Errorf("%w: bob", repository.ErrNotFound)
			w := do(mux, http.MethodGet, "/api/rank/bob?mode=short", "")

			Convey("Then it should be not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeBody(w)["code"], ShouldEqual, "not_found")
			})
		})

		Convey("When the mode is missing", func() {
			w := do(mux, http.MethodGet, "/api/rank/amy", "")

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestPreviewHandler(t *testing.T) {
	Convey("Given the preview endpoint", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("When previewing an arcade run", func() {
			w := do(mux, http.MethodPost, "/api/stats/preview",
				`{"originalText":"cat","typedText":"cat","timeElapsed":6,"mode":"venice"}`)

			Convey("Then it should return the full statistics", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(w)
				So(body["correct"], ShouldEqual, 3.0)
				So(body["cpm"], ShouldEqual, 30.0)
				So(body["score"], ShouldEqual, 3000.0)
				So(body["grade"], ShouldNotBeEmpty)
			})
		})

		Convey("When the elapsed time is negative", func() {
			w := do(mux, http.MethodPost, "/api/stats/preview",
				`{"originalText":"a","typedText":"a","timeElapsed":-1,"mode":"short"}`)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestClientAddress(t *testing.T) {
	Convey("Given a request through a proxy", t, func() {
		deps := &mockDependencies{}
		req := func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"mode":"short"}`))
			r.RemoteAddr = "10.0.0.1:4444"
			r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			return r
		}

		Convey("When proxy headers are trusted", func() {
			newMux(deps, api.WithTrustProxyHeaders(true)).ServeHTTP(httptest.NewRecorder(), req())

			Convey("Then the first forwarded address should be used", func() {
				So(deps.lastAddr, ShouldEqual, "203.0.113.7")
			})
		})

		Convey("When proxy headers are not trusted", func() {
			newMux(deps).ServeHTTP(httptest.NewRecorder(), req())

			Convey("Then the socket address should be used", func() {
				So(deps.lastAddr, ShouldEqual, "10.0.0.1")
			})
		})
	})
}
