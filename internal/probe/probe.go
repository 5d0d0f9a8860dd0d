// Package probe drives one end-to-end submission against a running server
// to check that honest runs are ranked and tampered runs are refused.
package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/okian/hanta/internal/domain/keystroke"
	"github.com/okian/hanta/internal/domain/model"
	"github.com/okian/hanta/pkg/logger"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultSettle   = 3 * time.Second
	rankPollBackoff = 50 * time.Millisecond

	// tamperFactor inflates speed well past any tolerance.
	tamperFactor = 1.5
)

// Run executes the probe.
func Run(ctx context.Context, cfg Config) (Report, error) {
	start := time.Now()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	mode, err := model.ParseMode(cfg.Mode)
	if err != nil {
		return Report{}, err
	}
	log := logger.Named("probe")
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting probe",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("mode", mode.String()),
		logger.Bool("tamper", cfg.Tamper),
	)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return Report{}, err
	}

	// Step 2: Open a session
	var opened struct {
		Token string `json:"token"`
	}
	status, err := client.post(ctx, "/api/sessions", map[string]string{"mode": mode.String()}, &opened)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrSession, err)
	}
	if status != http.StatusCreated || opened.Token == "" {
		return Report{}, fmt.Errorf("%w: status %d", ErrSession, status)
	}

	// Step 3: Compute locally and build the submission
	local := keystroke.Compute(cfg.Reference, cfg.Typed, cfg.Elapsed, mode)
	sub := buildSubmission(opened.Token, cfg, mode, local)

	// Step 4: Submit
	rep := Report{Local: local, Submitted: sub, Expected: http.StatusOK}
	if cfg.Tamper {
		rep.Expected = http.StatusUnprocessableEntity
	}
	rep.Status, err = client.post(ctx, "/api/scores", sub, &rep.Response)
	if err != nil {
		return Report{}, err
	}
	rep.Passed = rep.Status == rep.Expected

	// Step 5: Verify the accepted score is ranked
	if rep.Passed && !cfg.Tamper {
		entry, err := waitForRank(ctx, client, cfg.Name, mode.String(), cfg.Settle)
		if err != nil {
			rep.Passed = false
			log.Warn(ctx, "accepted score not ranked", logger.Error(err))
		} else {
			rep.Entry = &entry
			if entry.Score < int64(math.Round(sub.Score)) {
				rep.Passed = false
			}
		}
	}

	rep.Duration = time.Since(start).Round(time.Millisecond).String()
	log.Info(ctx, "probe finished",
		logger.Int("status", rep.Status),
		logger.Int("expected", rep.Expected),
		logger.Bool("passed", rep.Passed),
	)
	return rep, nil
}

// buildSubmission reports the local numbers, or inflated ones when tampering.
func buildSubmission(token string, cfg Config, mode model.Mode, local keystroke.Result) Submission {
	sub := Submission{
		Token:        token,
		Name:         cfg.Name,
		Type:         mode.String(),
		OriginalText: cfg.Reference,
		TypedText:    cfg.Typed,
		TimeElapsed:  cfg.Elapsed,
		Score:        float64(local.Score),
		Accuracy:     local.Accuracy,
		CPM:          local.CPM,
		WPM:          local.WPM,
		Grade:        string(local.Grade),
	}
	if cfg.Tamper {
		sub.Accuracy = 100
		sub.CPM = math.Max(local.CPM*tamperFactor, local.CPM+10)
		sub.WPM = sub.CPM / 5
		sub.Score = float64(keystroke.Score(mode, sub.Accuracy, sub.CPM))
		sub.Grade = string(keystroke.GradeFor(int64(sub.Score), sub.Accuracy))
	}
	return sub
}

func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	var health map[string]string
	status, err := client.get(ctx, "/healthz", &health)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if status != http.StatusOK || health["status"] != "ok" {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}
	return nil
}

// waitForRank polls the rank endpoint until the worker pool persisted name.
func waitForRank(ctx context.Context, client *HTTPClient, name, mode string, settle time.Duration) (Entry, error) {
	deadline := time.Now().Add(settle)
	for {
		var e Entry
		status, err := client.get(ctx, rankPath(name, mode), &e)
		if err == nil && status == http.StatusOK {
			return e, nil
		}
		if time.Now().After(deadline) {
			if err == nil {
				err = fmt.Errorf("status %d", status)
			}
			return Entry{}, fmt.Errorf("%w: %w", ErrNotRanked, err)
		}
		select {
		case <-ctx.Done():
			return Entry{}, errors.Join(ErrNotRanked, ctx.Err())
		case <-time.After(rankPollBackoff):
		}
	}
}
