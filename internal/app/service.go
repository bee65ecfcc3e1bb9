// Package service wires the ledger, its store, the risk scorer and the
// event bus into the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/okian/blindfold/internal/adapters/mq/journal"
	eventqueue "github.com/okian/blindfold/internal/adapters/mq/queue"
	workerpool "github.com/okian/blindfold/internal/adapters/mq/worker"
	"github.com/okian/blindfold/internal/adapters/repository"
	"github.com/okian/blindfold/internal/domain/dedupe"
	"github.com/okian/blindfold/internal/domain/ledger"
	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/internal/domain/risk"
	"github.com/okian/blindfold/internal/domain/types"
	"github.com/okian/blindfold/pkg/logger"
	"github.com/okian/blindfold/pkg/metrics"
)

// Service implements the API dependencies for the advisory ledger.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	ownsStore  bool
	ledger     *ledger.Ledger
	scorer     risk.Scorer
	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	journal    *journal.Journal

	// Configuration
	sqlitePath        string
	relay             types.AccountID
	minDeposit        sdkmath.Uint
	workerCount       int
	queueSize         int
	dedupeSize        int
	journalSize       int
	riskCacheTTL      time.Duration
	riskCacheCleanup  time.Duration
	clock             func() time.Time
	verificationIndex bool

	// submitMu makes idempotency lookup, submission and remember one step.
	submitMu sync.Mutex

	// State
	started bool

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		relay:             ledger.DefaultRelay,
		minDeposit:        ledger.DefaultMinDeposit,
		workerCount:       2,
		queueSize:         10_000,
		dedupeSize:        50_000,
		journalSize:       1024,
		riskCacheTTL:      5 * time.Minute,
		riskCacheCleanup:  10 * time.Minute,
		verificationIndex: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting ledger service...")

	if s.store == nil {
		if s.sqlitePath != "" {
			store, err := repository.OpenSQLStore(s.sqlitePath)
			if err != nil {
				return fmt.Errorf("open sqlite store: %w", err)
			}
			s.store = store
			s.logger.Info(ctx, "using sqlite store", logger.String("path", s.sqlitePath))
		} else {
			s.store = repository.NewMemoryStore()
			s.logger.Info(ctx, "using memory store")
		}
		s.ownsStore = true
	}

	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.journal = journal.New(s.journalSize)
	handlers := []workerpool.Handler{
		workerpool.LogHandler(s.logger.Named("events")),
		s.journal,
	}
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, handlers, s.logger)
	// Workers outlive the caller's context so Stop can drain them.
	s.workerPool.Start(context.WithoutCancel(ctx))

	ledgerOpts := []ledger.Option{
		ledger.WithRelay(s.relay),
		ledger.WithMinDeposit(s.minDeposit),
		ledger.WithPublisher(s.eventQueue),
		ledger.WithVerificationIndex(s.verificationIndex),
		ledger.WithLogger(s.logger.Named("ledger")),
	}
	if s.clock != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithClock(s.clock))
	}
	s.ledger = ledger.New(s.store, ledgerOpts...)

	s.scorer = risk.NewCachedScorer(
		risk.WithTTL(s.riskCacheTTL),
		risk.WithCleanupInterval(s.riskCacheCleanup),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))

	s.started = true
	s.logger.Info(ctx, "ledger service started",
		logger.String("relay", s.relay.String()),
		logger.String("minDeposit", s.minDeposit.String()),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop drains the event bus and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping ledger service...")

	if s.workerPool != nil {
		if err := s.workerPool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "event bus did not drain", logger.Error(err))
		}
	}
	if s.store != nil && s.ownsStore {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "closing store failed", logger.Error(err))
		}
		s.store = nil
	}

	s.started = false
	s.logger.Info(ctx, "ledger service stopped")
}

// Ledger returns the running ledger or ErrNotStarted.
func (s *Service) Ledger() (*ledger.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.ledger, nil
}

// Initialize sets the ledger owner.
func (s *Service) Initialize(ctx context.Context, owner types.AccountID) error {
	l, err := s.Ledger()
	if err != nil {
		return err
	}
	return l.Initialize(ctx, owner)
}

// SubmitRequest records a request. A non-empty idempotencyKey that caller
// already used returns the original id with replayed set.
func (s *Service) SubmitRequest(ctx context.Context, caller types.AccountID, in ledger.RequestInput, idempotencyKey string) (id uint64, replayed bool, err error) {
	l, err := s.Ledger()
	if err != nil {
		return 0, false, err
	}
	if idempotencyKey == "" {
		id, err = l.SubmitRequest(ctx, caller, in)
		return id, false, err
	}

	key := caller.String() + ":" + idempotencyKey
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	if prev, ok := s.deduper.Lookup(ctx, key); ok {
		metrics.RecordIdempotentReplay()
		s.logger.Debug(ctx, "idempotent replay",
			logger.String("caller", caller.String()),
			logger.Uint64("request_id", prev),
		)
		return prev, true, nil
	}
	id, err = l.SubmitRequest(ctx, caller, in)
	if err != nil {
		return 0, false, err
	}
	s.deduper.Remember(ctx, key, id)
	return id, false, nil
}

// MarkProcessing moves a request to Processing.
func (s *Service) MarkProcessing(ctx context.Context, caller types.AccountID, id uint64) error {
	l, err := s.Ledger()
	if err != nil {
		return err
	}
	return l.MarkProcessing(ctx, caller, id)
}

// MarkFailed moves a request to Failed.
func (s *Service) MarkFailed(ctx context.Context, caller types.AccountID, id uint64, reason string) error {
	l, err := s.Ledger()
	if err != nil {
		return err
	}
	return l.MarkFailed(ctx, caller, id, reason)
}

// SubmitVerification stores a verification and completes its request.
func (s *Service) SubmitVerification(ctx context.Context, caller types.AccountID, in ledger.VerificationInput) (uint64, error) {
	l, err := s.Ledger()
	if err != nil {
		return 0, err
	}
	return l.SubmitVerification(ctx, caller, in)
}

func (s *Service) Request(ctx context.Context, id uint64) (model.AdvisorRequest, error) {
	l, err := s.Ledger()
	if err != nil {
		return model.AdvisorRequest{}, err
	}
	return l.Request(ctx, id)
}

func (s *Service) Verification(ctx context.Context, id uint64) (model.Verification, error) {
	l, err := s.Ledger()
	if err != nil {
		return model.Verification{}, err
	}
	return l.Verification(ctx, id)
}

func (s *Service) VerificationByRequest(ctx context.Context, requestID uint64) (model.Verification, error) {
	l, err := s.Ledger()
	if err != nil {
		return model.Verification{}, err
	}
	return l.VerificationByRequest(ctx, requestID)
}

func (s *Service) PendingRequests(ctx context.Context) ([]model.AdvisorRequest, error) {
	l, err := s.Ledger()
	if err != nil {
		return nil, err
	}
	pending, err := l.PendingRequests(ctx)
	if err == nil {
		metrics.UpdatePendingRequests(len(pending))
	}
	return pending, err
}

func (s *Service) UserRequests(ctx context.Context, user types.AccountID) ([]model.AdvisorRequest, error) {
	l, err := s.Ledger()
	if err != nil {
		return nil, err
	}
	return l.UserRequests(ctx, user)
}

func (s *Service) UserVerifications(ctx context.Context, user types.AccountID) ([]model.Verification, error) {
	l, err := s.Ledger()
	if err != nil {
		return nil, err
	}
	return l.UserVerifications(ctx, user)
}

// LedgerStats returns the ledger counters.
func (s *Service) LedgerStats(ctx context.Context) (model.Stats, error) {
	l, err := s.Ledger()
	if err != nil {
		return model.Stats{}, err
	}
	return l.Stats(ctx)
}

// ScorePortfolio scores a portfolio payload. It works before the ledger is
// initialized and never fails.
func (s *Service) ScorePortfolio(ctx context.Context, payload string) risk.Score {
	s.mu.RLock()
	scorer := s.scorer
	s.mu.RUnlock()
	if scorer == nil {
		scorer = risk.Engine
	}
	return scorer.Score(ctx, payload)
}

// RecentEvents returns up to n of the latest ledger events.
func (s *Service) RecentEvents(n int) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.journal == nil {
		return []model.Event{}
	}
	return s.journal.Recent(n)
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
		"dedupeSize":  s.dedupeSize,
		"relay":       s.relay.String(),
		"minDeposit":  s.minDeposit.String(),
	}

	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["idempotencyKeys"] = s.deduper.Size()
		stats["journalLength"] = s.journal.Len()

		if ls, err := s.ledger.Stats(ctx); err == nil {
			stats["initialized"] = true
			stats["totalRequests"] = ls.TotalRequests
			stats["totalVerifications"] = ls.TotalVerifications
			stats["ledgerHeight"] = ls.LedgerHeight
			metrics.UpdateLedgerTotals(ls.TotalRequests, ls.TotalVerifications)
		} else {
			stats["initialized"] = false
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerPool.Size())
	}

	return stats
}
