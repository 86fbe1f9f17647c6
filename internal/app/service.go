// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	passqueue "github.com/okian/seatalloc/internal/adapters/mq/queue"
	workerpool "github.com/okian/seatalloc/internal/adapters/mq/worker"
	"github.com/okian/seatalloc/internal/adapters/repository"
	"github.com/okian/seatalloc/internal/adapters/snapshot"
	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/internal/domain/dedupe"
	"github.com/okian/seatalloc/internal/domain/model"
	"github.com/okian/seatalloc/pkg/logger"
	"github.com/okian/seatalloc/pkg/metrics"
)

// Default service configuration.
const (
	defaultWorkerCount = 2
	defaultQueueSize   = 64
	defaultMaxRetries  = 3
	maxTrackedPasses   = 1024
)

// Service runs allocation passes and confirmations against a store.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	deduper    dedupe.Deduper
	passQueue  *passqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// Configuration
	metric      allocation.MeritMetric
	workerCount int
	queueSize   int
	maxRetries  int
	seedFile    string
	now         func() time.Time
	newID       func() string

	// One pass per category at a time.
	locksMu   sync.Mutex
	passLocks map[model.Category]*sync.Mutex

	// Asynchronous pass bookkeeping.
	passMu    sync.RWMutex
	passes    map[string]*model.PassState
	passOrder []string

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithMeritMetric selects how merit scores are derived from academic records.
func WithMeritMetric(m allocation.MeritMetric) Option {
	return func(s *Service) {
		if m != "" {
			s.metric = m
		}
	}
}

// WithWorkerCount sets the number of asynchronous pass workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the asynchronous pass queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMaxRetries caps how often a pass is recomputed after a stale snapshot.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithSeedFile preloads categories from a YAML snapshot on Start.
func WithSeedFile(path string) Option {
	return func(s *Service) {
		s.seedFile = path
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

// WithClock overrides the time source used for pass timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		metric:      allocation.MeritPercentage,
		workerCount: defaultWorkerCount,
		queueSize:   defaultQueueSize,
		maxRetries:  defaultMaxRetries,
		now:         time.Now,
		newID:       uuid.NewString,
		passLocks:   make(map[model.Category]*sync.Mutex),
		passes:      make(map[string]*model.PassState),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the store, the submission guard and the pass workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting allocation service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	s.logger.Info(ctx, "using store", logger.String("backend", s.store.Backend()))

	if s.seedFile != "" {
		file, err := snapshot.Load(s.seedFile)
		if err != nil {
			return fmt.Errorf("load seed file: %w", err)
		}
		for i := range file.Categories {
			snap := &file.Categories[i]
			if err := allocation.Validate(snap.Applicants, snap.Resources); err != nil {
				return fmt.Errorf("seed %s: %w", snap.Category, err)
			}
			if err := s.store.ReplaceCategory(ctx, snap.Category, snap.Applicants, snap.Resources); err != nil {
				return fmt.Errorf("seed %s: %w", snap.Category, err)
			}
			s.logger.Info(ctx, "seeded category",
				logger.String("category", string(snap.Category)),
				logger.Int("applicants", len(snap.Applicants)),
				logger.Int("resources", len(snap.Resources)),
			)
		}
	}

	submitted, err := s.submittedKeys(ctx)
	if err != nil {
		return fmt.Errorf("load submissions: %w", err)
	}
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithSizeHint(len(submitted)),
		dedupe.WithSeen(submitted...),
	)

	for _, c := range model.Categories() {
		open, err := s.store.AllocationOpen(ctx, c)
		if err != nil {
			return fmt.Errorf("read gate for %s: %w", c, err)
		}
		metrics.UpdateAllocationClosed(string(c), !open)
	}

	s.passQueue = passqueue.NewInMemoryQueue(passqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.passQueue, s)
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "allocation service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("maxRetries", s.maxRetries),
		logger.String("meritMetric", string(s.metric)),
	)

	return nil
}

// Stop drains queued passes and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	pool, store := s.workerPool, s.store
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping allocation service...")

	var firstErr error
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "pass workers did not drain", logger.Error(err))
		firstErr = err
	}
	if err := store.Close(ctx); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	s.logger.Info(ctx, "allocation service stopped")
	return firstErr
}

// running returns the store once the service has started.
func (s *Service) running() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// submittedKeys lists the guard keys of every applicant that already has
// preferences on record.
func (s *Service) submittedKeys(ctx context.Context) ([]string, error) {
	var keys []string
	for _, c := range model.Categories() {
		roster, err := s.store.FetchEligibleApplicants(ctx, c)
		if err != nil {
			return nil, err
		}
		for i := range roster {
			if len(roster[i].Preferences) > 0 {
				keys = append(keys, dedupe.Key(c, roster[i].ID))
			}
		}
	}
	return keys, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"maxRetries":  s.maxRetries,
		"meritMetric": string(s.metric),
	}

	if s.started {
		queueLen := s.passQueue.Len(ctx)
		stats["store"] = s.store.Backend()
		stats["queueLength"] = queueLen
		stats["submissions"] = s.deduper.Size()

		s.passMu.RLock()
		stats["trackedPasses"] = len(s.passes)
		s.passMu.RUnlock()

		categories := make(map[string]interface{}, len(model.Categories()))
		for _, c := range model.Categories() {
			entry := map[string]interface{}{}
			if open, err := s.store.AllocationOpen(ctx, c); err == nil {
				entry["open"] = open
			}
			if report, err := s.store.LatestPass(ctx, c); err == nil {
				entry["latestPass"] = report.PassID
				entry["allocated"] = report.AllocatedCount
				entry["unassigned"] = report.UnassignedCount
			}
			categories[string(c)] = entry
		}
		stats["categories"] = categories

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
