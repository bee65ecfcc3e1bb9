package ledger

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/okian/blindfold/internal/domain/types"
	"github.com/okian/blindfold/pkg/logger"
)

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithRelay sets the relay account allowed to drive request status.
func WithRelay(id types.AccountID) Option {
	return func(l *Ledger) {
		if !id.IsZero() {
			l.relay = id
		}
	}
}

// WithMinDeposit sets the minimum attached value for SubmitRequest.
func WithMinDeposit(min sdkmath.Uint) Option {
	return func(l *Ledger) {
		l.minDeposit = min
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithPublisher receives events after each committed mutation.
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) {
		l.publisher = p
	}
}

// WithVerificationIndex selects the request -> verification index (true,
// default) or a linear scan of the verification table for
// VerificationByRequest.
func WithVerificationIndex(enabled bool) Option {
	return func(l *Ledger) {
		l.useIndex = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.logger = log
		}
	}
}
