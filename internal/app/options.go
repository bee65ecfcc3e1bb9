package service

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/okian/blindfold/internal/adapters/repository"
	"github.com/okian/blindfold/internal/domain/types"
	"github.com/okian/blindfold/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of event dispatch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the event bus.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many idempotency keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithJournalSize sets how many recent events GET /events can return.
func WithJournalSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.journalSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore uses store instead of opening one. The caller keeps ownership.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithSQLite persists the ledger in the SQLite database at path.
func WithSQLite(path string) Option {
	return func(s *Service) {
		s.sqlitePath = path
	}
}

// WithRelay sets the relay account.
func WithRelay(id types.AccountID) Option {
	return func(s *Service) {
		if !id.IsZero() {
			s.relay = id
		}
	}
}

// WithMinDeposit sets the minimum attached value for submissions.
func WithMinDeposit(min sdkmath.Uint) Option {
	return func(s *Service) {
		s.minDeposit = min
	}
}

// WithRiskCache sets risk score cache expiry and cleanup intervals.
func WithRiskCache(ttl, cleanup time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.riskCacheTTL = ttl
		}
		if cleanup > 0 {
			s.riskCacheCleanup = cleanup
		}
	}
}

// WithClock overrides the ledger clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.clock = now
	}
}

// WithVerificationIndex toggles the request -> verification index.
func WithVerificationIndex(enabled bool) Option {
	return func(s *Service) {
		s.verificationIndex = enabled
	}
}
