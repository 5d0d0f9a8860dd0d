// Package validation decides whether a client-reported score may be kept.
//
// Submit authorises the session, throttles the caller, recomputes the
// statistics from the raw texts and cross-checks the submitted numbers
// before the session is charged with the submission.
package validation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/okian/hanta/internal/domain/keystroke"
	"github.com/okian/hanta/internal/domain/model"
	"github.com/okian/hanta/internal/domain/ratelimit"
	"github.com/okian/hanta/internal/domain/session"
	"github.com/okian/hanta/pkg/logger"
	"github.com/okian/hanta/pkg/metrics"
)

const (
	defaultMaxTextLength     = 10_000
	defaultMinElapsed        = 1.0
	defaultAccuracyTolerance = 1.0
	defaultSpeedRatio        = 0.01
	defaultMaxSpeed          = 2000.0
	defaultMaxNameWidth      = 16
)

// SessionStore is the part of the session manager the pipeline needs.
type SessionStore interface {
	Reserve(token string) (session.Session, error)
	Release(token string)
	RecordSubmission(token, name string) bool
}

// RateLimiter is the part of the limiter the pipeline needs.
type RateLimiter interface {
	Check(family ratelimit.Family, key string) (ratelimit.Decision, error)
}

// Request is one untrusted score submission.
type Request struct {
	Token   string
	Name    string
	Address string
	// Type is the mode the client claims. Scoring always uses the session mode.
	Type string

	OriginalText *string
	TypedText    *string
	TimeElapsed  *float64

	Score    *float64
	Accuracy *float64
	CPM      *float64
	WPM      *float64

	Grade        *string
	ProverbCount *int
	TextTitle    *string
	Level        *int
	WordsCaught  *int
	WordsMissed  *int
}

func (r Request) hasText() bool { return r.OriginalText != nil || r.TypedText != nil }

// Verdict is an accepted submission.
type Verdict struct {
	Record  model.Record
	Session session.Session
	// Recomputed is nil when the mode did not submit raw text.
	Recomputed *keystroke.Result
	CPM        *float64
}

// Pipeline runs the ordered submission checks.
type Pipeline struct {
	sessions SessionStore
	limiter  RateLimiter

	maxTextLength     int
	minElapsed        float64
	accuracyTolerance float64
	speedRatio        float64
	slackFloor        float64
	maxSpeed          float64
	maxNameWidth      int

	now   func() time.Time
	newID func() string
	log   logger.Logger
}

// NewPipeline wires a Pipeline over sessions and limiter.
func NewPipeline(sessions SessionStore, limiter RateLimiter, opts ...Option) *Pipeline {
	p := &Pipeline{
		sessions:          sessions,
		limiter:           limiter,
		maxTextLength:     defaultMaxTextLength,
		minElapsed:        defaultMinElapsed,
		accuracyTolerance: defaultAccuracyTolerance,
		speedRatio:        defaultSpeedRatio,
		maxSpeed:          defaultMaxSpeed,
		maxNameWidth:      defaultMaxNameWidth,
		now:               time.Now,
		newID:             uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Named("pipeline")
	}
	return p
}

// Submit validates req. On failure the error is a *Rejection.
func (p *Pipeline) Submit(ctx context.Context, req Request) (Verdict, error) {
	start := time.Now()
	v, rej := p.submit(ctx, req)
	metrics.RecordPipelineLatency(float64(time.Since(start).Milliseconds()))

	if rej != nil {
		metrics.RecordSubmission(rej.Code())
		if !errors.Is(rej, ErrScoreMismatch) {
			p.log.Debug(ctx, "submission rejected",
				logger.String("code", rej.Code()),
				logger.Any("reasons", rej.Reasons),
				logger.String("address", req.Address),
			)
		}
		return Verdict{}, rej
	}
	metrics.RecordSubmission("accepted")
	return v, nil
}

func (p *Pipeline) submit(ctx context.Context, req Request) (Verdict, *Rejection) {
	// 1. required fields
	if req.Token == "" {
		return Verdict{}, reject(ErrUnauthorized, "token is required")
	}
	if req.Name == "" {
		return Verdict{}, reject(ErrBadRequest, "name is required")
	}
	if req.Score == nil || req.Accuracy == nil {
		return Verdict{}, reject(ErrBadRequest, "score and accuracy are required")
	}

	// 2-3. session and cadence, reserved atomically
	sess, err := p.sessions.Reserve(req.Token)
	if err != nil {
		return Verdict{}, sessionRejection(err, p.now())
	}
	v, rej := p.checkReserved(ctx, req, sess)
	if rej != nil {
		p.sessions.Release(req.Token)
		return Verdict{}, rej
	}

	// 9. charge the session
	if !p.sessions.RecordSubmission(req.Token, v.Record.Name) {
		return Verdict{}, reject(ErrInternal, "session record failed")
	}
	return v, nil
}

func (p *Pipeline) checkReserved(ctx context.Context, req Request, sess session.Session) (Verdict, *Rejection) {
	// 4. name
	name, problems := ValidateName(req.Name, p.maxNameWidth)
	if len(problems) > 0 {
		return Verdict{}, reject(ErrBadRequest, problems...)
	}
	if sess.Name != "" && name != sess.Name {
		return Verdict{}, reject(ErrBadRequest, "name does not match this session")
	}

	// 5-6. throttling; both consume quota even if a later step rejects
	if rej := p.throttle(ratelimit.FamilyAddress, req.Address); rej != nil {
		return Verdict{}, rej
	}
	if rej := p.throttle(ratelimit.FamilyName, name); rej != nil {
		return Verdict{}, rej
	}

	if rej := p.checkRanges(req); rej != nil {
		return Verdict{}, rej
	}

	score := int64(math.Round(*req.Score))
	accuracy := *req.Accuracy
	var recomputed *keystroke.Result

	if req.hasText() {
		// 7. text shape
		if rej := p.checkText(req); rej != nil {
			return Verdict{}, rej
		}
		// 8. recompute with the session mode
		res := keystroke.Compute(*req.OriginalText, *req.TypedText, *req.TimeElapsed, sess.Mode)
		if rej := p.crossCheck(ctx, req, sess, res); rej != nil {
			return Verdict{}, rej
		}
		recomputed = &res
		score, accuracy = res.Score, res.Accuracy
	}

	// 10. metadata, validated before the session is charged
	md, err := model.NewMetadata(sess.Mode, accuracy, model.Fields{
		CPM:          req.CPM,
		WPM:          req.WPM,
		TimeElapsed:  req.TimeElapsed,
		Grade:        req.Grade,
		ProverbCount: req.ProverbCount,
		TextTitle:    req.TextTitle,
		Level:        req.Level,
		WordsCaught:  req.WordsCaught,
		WordsMissed:  req.WordsMissed,
	})
	if err != nil {
		return Verdict{}, reject(ErrBadRequest, err.Error())
	}

	now := p.now()
	year, month := model.Period(now)
	return Verdict{
		Record: model.Record{
			ID:          p.newID(),
			Name:        name,
			Mode:        sess.Mode,
			Score:       score,
			Accuracy:    accuracy,
			Year:        year,
			Month:       month,
			Metadata:    md,
			SubmittedAt: now,
		},
		Session:    sess,
		Recomputed: recomputed,
		CPM:        req.CPM,
	}, nil
}

func (p *Pipeline) throttle(family ratelimit.Family, key string) *Rejection {
	d, err := p.limiter.Check(family, key)
	if err != nil {
		return reject(ErrInternal, err.Error())
	}
	if !d.Allowed {
		return RateLimited(d.ResetAt, p.now(), fmt.Sprintf("too many submissions for this %s", family))
	}
	return nil
}

func (p *Pipeline) checkRanges(req Request) *Rejection {
	var reasons []string
	if a := *req.Accuracy; math.IsNaN(a) || a < 0 || a > 100 {
		reasons = append(reasons, "accuracy must be between 0 and 100")
	}
	if s := *req.Score; math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
		reasons = append(reasons, "score must not be negative")
	}
	if req.CPM != nil {
		if c := *req.CPM; math.IsNaN(c) || c < 0 || c > p.maxSpeed {
			reasons = append(reasons, fmt.Sprintf("cpm must be between 0 and %g", p.maxSpeed))
		}
	}
	if len(reasons) > 0 {
		return reject(ErrBadRequest, reasons...)
	}
	return nil
}

func (p *Pipeline) checkText(req Request) *Rejection {
	var reasons []string
	for _, t := range []struct {
		field string
		text  *string
	}{{"originalText", req.OriginalText}, {"typedText", req.TypedText}} {
		switch {
		case t.text == nil || *t.text == "":
			reasons = append(reasons, t.field+" must not be empty")
		case utf8.RuneCountInString(*t.text) > p.maxTextLength:
			reasons = append(reasons, fmt.Sprintf("%s exceeds %d characters", t.field, p.maxTextLength))
		}
	}
	if req.TimeElapsed == nil || math.IsNaN(*req.TimeElapsed) || *req.TimeElapsed < p.minElapsed {
		reasons = append(reasons, fmt.Sprintf("timeElapsed must be at least %g seconds", p.minElapsed))
	}
	if req.CPM == nil {
		reasons = append(reasons, "cpm is required with text")
	}
	if len(reasons) > 0 {
		return reject(ErrBadRequest, reasons...)
	}
	return nil
}

func (p *Pipeline) crossCheck(ctx context.Context, req Request, sess session.Session, res keystroke.Result) *Rejection {
	var fields []string
	if math.Abs(*req.Accuracy-res.Accuracy) > p.accuracyTolerance {
		fields = append(fields, "accuracy")
	}
	if !p.withinRatio(*req.CPM, res.CPM) {
		fields = append(fields, "cpm")
	}
	if !p.withinRatio(*req.Score, float64(res.Score)) {
		fields = append(fields, "score")
	}
	if len(fields) == 0 {
		return nil
	}

	for _, f := range fields {
		metrics.RecordScoreMismatch(f)
	}
	p.log.Warn(ctx, "score mismatch",
		logger.Any("fields", fields),
		logger.String("session", sess.Token),
		logger.String("mode", string(sess.Mode)),
		logger.String("claimed_mode", req.Type),
		logger.String("name", req.Name),
		logger.String("address", req.Address),
		logger.Float64("submitted_accuracy", *req.Accuracy),
		logger.Float64("recomputed_accuracy", res.Accuracy),
		logger.Float64("submitted_cpm", *req.CPM),
		logger.Float64("recomputed_cpm", res.CPM),
		logger.Float64("submitted_score", *req.Score),
		logger.Int64("recomputed_score", res.Score),
		logger.Float64("time_elapsed", res.ElapsedSeconds),
	)
	return reject(ErrScoreMismatch, "submitted statistics do not match")
}

// withinRatio allows speedRatio of the recomputed value, never less than
// slackFloor. The floor is zero unless configured.
func (p *Pipeline) withinRatio(submitted, recomputed float64) bool {
	slack := math.Max(math.Abs(recomputed)*p.speedRatio, p.slackFloor)
	return math.Abs(submitted-recomputed) <= slack
}

func sessionRejection(err error, now time.Time) *Rejection {
	var denied *session.Denied
	if errors.As(err, &denied) {
		return RateLimited(denied.ResetAt, now, denied.Error())
	}
	return reject(ErrUnauthorized, "session is invalid or expired")
}
