// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/hanta/internal/adapters/mq/queue"
	"github.com/okian/hanta/internal/adapters/mq/worker"
	"github.com/okian/hanta/internal/adapters/repository"
	"github.com/okian/hanta/internal/domain/keystroke"
	"github.com/okian/hanta/internal/domain/model"
	"github.com/okian/hanta/internal/domain/ratelimit"
	"github.com/okian/hanta/internal/domain/session"
	"github.com/okian/hanta/internal/domain/validation"
	"github.com/okian/hanta/pkg/logger"
	"github.com/okian/hanta/pkg/metrics"
)

// Service implements the API dependencies for the score service.
type Service struct {
	mu sync.RWMutex

	// Core components
	sessions *session.Manager
	limiter  *ratelimit.Limiter
	pipeline *validation.Pipeline
	store    repository.Store
	queue    *queue.InMemoryQueue
	pool     *worker.Pool

	// Configuration
	workerCount     int
	queueSize       int
	storeDriver     string
	storeDSN        string
	gormOpts        []repository.GormOption
	shutdownTimeout time.Duration
	sessionOpts     []session.Option
	limiterOpts     []ratelimit.Option
	pipelineOpts    []validation.Option
	now             func() time.Time

	// State
	started    bool
	stopped    bool
	stopWorker context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service. Sessions and limits are usable right away;
// Start opens the store and the persistence workers.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       10_000,
		storeDriver:     repository.DriverMemory,
		shutdownTimeout: 10 * time.Second,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	s.sessions = session.NewManager(s.sessionOpts...)
	s.limiter = ratelimit.NewLimiter(s.limiterOpts...)
	s.pipeline = validation.NewPipeline(s.sessions, s.limiter,
		append([]validation.Option{validation.WithLogger(s.logger.Named("pipeline"))}, s.pipelineOpts...)...)
	return s
}

// Start opens the store, starts the workers and the background sweeps.
// A Service cannot be restarted; Start after Stop returns ErrStopped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}

	s.logger.Info(ctx, "starting score service...")

	if s.store == nil {
		store, err := repository.Open(s.storeDriver, s.storeDSN, s.gormOpts...)
		if err != nil {
			return fmt.Errorf("open %s store: %w", s.storeDriver, err)
		}
		s.store = store
	}
	s.logger.Info(ctx, "using ranking store", logger.String("driver", s.storeDriver))

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.store)

	// Workers outlive the caller's ctx; Stop drains them.
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopWorker = cancel
	s.pool.Start(workerCtx)

	s.sessions.Start()
	s.limiter.Start()

	s.started = true
	s.logger.Info(ctx, "score service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop drains the queue, stops the sweeps and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping score service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "persistence queue not drained",
			logger.Int("pending", s.queue.Len()),
			logger.Error(err),
		)
	}
	s.stopWorker()

	s.sessions.Close()
	s.limiter.Close()

	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "score service stopped",
		logger.Int64("processed", s.pool.Processed()),
	)
}

// OpenSession starts a practice session for mode on behalf of addr.
// Too many opens from one address yield a rate limited *validation.Rejection.
func (s *Service) OpenSession(ctx context.Context, addr, mode string) (session.Session, error) {
	m, err := model.ParseMode(mode)
	if err != nil {
		return session.Session{}, err
	}

	d, err := s.limiter.Check(ratelimit.FamilySession, addr)
	if err != nil {
		return session.Session{}, err
	}
	if !d.Allowed {
		s.logger.Debug(ctx, "session open throttled",
			logger.String("address", addr),
			logger.Time("resetAt", d.ResetAt),
		)
		return session.Session{}, validation.RateLimited(d.ResetAt, s.now(), "too many sessions opened")
	}

	sess := s.sessions.Open(m)
	s.logger.Debug(ctx, "session opened",
		logger.String("mode", m.String()),
		logger.Time("expiresAt", sess.ExpiresAt),
	)
	return sess, nil
}

// Submit validates req from addr and queues the accepted record.
func (s *Service) Submit(ctx context.Context, addr string, req validation.Request) (validation.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return validation.Verdict{}, ErrNotStarted
	}

	req.Address = addr
	v, err := s.pipeline.Submit(ctx, req)
	if err != nil {
		return validation.Verdict{}, err
	}

	if err := s.queue.Enqueue(ctx, v.Record); err != nil {
		s.logger.Error(ctx, "accepted score dropped",
			logger.String("id", v.Record.ID),
			logger.String("name", v.Record.Name),
			logger.Int64("score", v.Record.Score),
			logger.Error(err),
		)
		return v, fmt.Errorf("%w: %w", ErrBackpressure, err)
	}
	return v, nil
}

// Preview computes statistics without touching any session or board.
func (s *Service) Preview(reference, typed string, elapsedSeconds float64, mode model.Mode) keystroke.Result {
	return keystroke.Compute(reference, typed, elapsedSeconds, mode)
}

// CurrentBoard returns the board for mode in the current month.
func (s *Service) CurrentBoard(mode model.Mode) repository.Board {
	year, month := model.Period(s.now())
	return repository.Board{Mode: mode, Year: year, Month: month}
}

// TopN returns the top n entries of board b.
func (s *Service) TopN(ctx context.Context, b repository.Board, n int) ([]model.RankedEntry, error) {
	store, err := s.rankingStore()
	if err != nil {
		return nil, err
	}
	return store.TopN(ctx, b, n)
}

// Rank returns the entry for name on board b.
func (s *Service) Rank(ctx context.Context, b repository.Board, name string) (model.RankedEntry, error) {
	store, err := s.rankingStore()
	if err != nil {
		return model.RankedEntry{}, err
	}
	return store.Rank(ctx, b, name)
}

func (s *Service) rankingStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":        s.started,
		"workerCount":    s.workerCount,
		"queueSize":      s.queueSize,
		"storeDriver":    s.storeDriver,
		"sessionsActive": s.sessions.Len(),
		"rateLimitBuckets": map[string]int{
			string(ratelimit.FamilyAddress): s.limiter.Len(ratelimit.FamilyAddress),
			string(ratelimit.FamilyName):    s.limiter.Len(ratelimit.FamilyName),
			string(ratelimit.FamilySession): s.limiter.Len(ratelimit.FamilySession),
		},
	}

	if s.started {
		queueLen := s.queue.Len()
		records := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["records"] = records
		stats["processed"] = s.pool.Processed()

		metrics.UpdateRankingRecords(records)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
