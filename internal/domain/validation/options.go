package validation

import (
	"time"

	"github.com/okian/hanta/pkg/logger"
)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithMaxTextLength caps reference and typed text, in characters.
func WithMaxTextLength(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxTextLength = n
		}
	}
}

// WithMinElapsed sets the elapsed time floor in seconds for text submissions.
func WithMinElapsed(seconds float64) Option {
	return func(p *Pipeline) {
		if seconds >= 0 {
			p.minElapsed = seconds
		}
	}
}

// WithTolerances sets the absolute accuracy slack and the relative speed
// and score slack.
func WithTolerances(accuracy, speedRatio float64) Option {
	return func(p *Pipeline) {
		if accuracy >= 0 {
			p.accuracyTolerance = accuracy
		}
		if speedRatio >= 0 {
			p.speedRatio = speedRatio
		}
	}
}

// WithSlackFloor sets the smallest absolute cpm and score slack, for
// clients that round those numbers before sending them.
func WithSlackFloor(abs float64) Option {
	return func(p *Pipeline) {
		if abs >= 0 {
			p.slackFloor = abs
		}
	}
}

// WithMaxSpeed sets the upper bound for submitted cpm.
func WithMaxSpeed(cpm float64) Option {
	return func(p *Pipeline) {
		if cpm > 0 {
			p.maxSpeed = cpm
		}
	}
}

// WithMaxNameWidth sets the display width cap for names.
func WithMaxNameWidth(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxNameWidth = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator replaces the uuid record id source.
func WithIDGenerator(gen func() string) Option {
	return func(p *Pipeline) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// WithLogger sets the logger used for rejections.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}
