package service

import (
	"strings"
	"time"

	"github.com/okian/hanta/internal/adapters/repository"
	"github.com/okian/hanta/internal/config"
	"github.com/okian/hanta/internal/domain/ratelimit"
	"github.com/okian/hanta/internal/domain/session"
	"github.com/okian/hanta/internal/domain/validation"
	"github.com/okian/hanta/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of persistence workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the persistence queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStoreDriver selects the ranking store opened by Start.
func WithStoreDriver(driver, dsn string, opts ...repository.GormOption) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
			s.storeDSN = dsn
			s.gormOpts = opts
		}
	}
}

// WithStore injects an already opened store. Stop closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for the queue to drain.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithSessionOptions forwards options to the session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Service) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

// WithRateLimitOptions forwards options to the rate limiter.
func WithRateLimitOptions(opts ...ratelimit.Option) Option {
	return func(s *Service) {
		s.limiterOpts = append(s.limiterOpts, opts...)
	}
}

// WithPipelineOptions forwards options to the validation pipeline.
func WithPipelineOptions(opts ...validation.Option) Option {
	return func(s *Service) {
		s.pipelineOpts = append(s.pipelineOpts, opts...)
	}
}

// WithClock replaces time.Now in every time-dependent component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now == nil {
			return
		}
		s.now = now
		s.sessionOpts = append(s.sessionOpts, session.WithClock(now))
		s.limiterOpts = append(s.limiterOpts, ratelimit.WithClock(now))
		s.pipelineOpts = append(s.pipelineOpts, validation.WithClock(now))
	}
}

// OptionsFromConfig translates a loaded Config into Service options.
func OptionsFromConfig(cfg *config.Config) []Option {
	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithStoreDriver(cfg.StoreDriver, cfg.StoreDSN,
			repository.WithSQLLogging(strings.EqualFold(cfg.LogLevel, "debug"))),
		WithSessionOptions(
			session.WithTTL(cfg.SessionTTL),
			session.WithMaxSubmissions(cfg.SessionMaxSubmissions),
			session.WithMinInterval(cfg.SessionMinInterval),
			session.WithSweepInterval(cfg.SessionSweepInterval),
		),
		WithRateLimitOptions(
			ratelimit.WithPolicy(ratelimit.FamilyAddress, cfg.RateIPLimit, cfg.RateIPWindow),
			ratelimit.WithPolicy(ratelimit.FamilyName, cfg.RateNameLimit, cfg.RateNameWindow),
			ratelimit.WithPolicy(ratelimit.FamilySession, cfg.RateSessionLimit, cfg.RateSessionWindow),
			ratelimit.WithSweepInterval(cfg.RateSweepInterval),
		),
		WithPipelineOptions(
			validation.WithMaxTextLength(cfg.MaxTextLength),
			validation.WithMinElapsed(cfg.MinElapsedSeconds),
			validation.WithTolerances(cfg.AccuracyTolerance, cfg.SpeedToleranceRatio),
			validation.WithSlackFloor(cfg.SpeedToleranceFloor),
			validation.WithMaxSpeed(cfg.MaxSpeed),
			validation.WithMaxNameWidth(cfg.MaxNameWidth),
		),
	}
}
