// Package ledger is the advisory ledger: advisor requests, their
// verifications, and the status machine that links them. Every operation
// runs as one unit of work against a repository.Store.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/okian/blindfold/internal/adapters/repository"
	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/internal/domain/types"
	"github.com/okian/blindfold/pkg/logger"
	"github.com/okian/blindfold/pkg/metrics"
)

// DefaultRelay is the relay account used when none is configured.
const DefaultRelay types.AccountID = "relay.blindfold.near"

// DefaultMinDeposit is 0.01 NEAR in yoctoNEAR.
var DefaultMinDeposit = sdkmath.NewUintFromString("10000000000000000000000")

// Publisher receives ledger events after commit. Publish must not block.
type Publisher interface {
	Publish(ctx context.Context, e model.Event) bool
}

// RequestInput carries submit_request arguments.
type RequestInput struct {
	Question      string
	PortfolioData string
	// Deposit is the attached value as a base-10 unsigned integer. Empty means zero.
	Deposit string
}

// VerificationInput carries submit_verification arguments. The attestation
// fields are stored as given.
type VerificationInput struct {
	RequestID      uint64
	RequestHash    string
	ResponseHash   string
	Signature      string
	SigningAddress string
	SigningAlgo    string
	TEEAttestation string
	ResponseText   string
}

// Ledger implements the advisory ledger operations.
type Ledger struct {
	store      repository.Store
	relay      types.AccountID
	minDeposit sdkmath.Uint
	now        func() time.Time
	publisher  Publisher
	useIndex   bool
	logger     logger.Logger
}

// New creates a Ledger over store.
func New(store repository.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:      store,
		relay:      DefaultRelay,
		minDeposit: DefaultMinDeposit,
		now:        func() time.Time { return time.Now().UTC() },
		useIndex:   true,
		logger:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Relay returns the configured relay account.
func (l *Ledger) Relay() types.AccountID { return l.relay }

// MinDeposit returns the minimum attached value for SubmitRequest.
func (l *Ledger) MinDeposit() sdkmath.Uint { return l.minDeposit }

// mutate runs fn in a unit of work, then publishes the events it produced.
func (l *Ledger) mutate(ctx context.Context, op string, fn func(tx repository.Tx, meta *repository.Meta, emit func(model.Event)) error) error {
	var (
		events    []model.Event
		committed repository.Meta
	)
	err := l.store.Atomic(ctx, func(tx repository.Tx) error {
		events = events[:0]
		meta, err := tx.Meta(ctx)
		if err != nil {
			return err
		}
		emit := func(e model.Event) {
			e.Height = meta.Height
			e.TS = l.now()
			events = append(events, e)
		}
		if err := fn(tx, &meta, emit); err != nil {
			return err
		}
		if err := tx.SaveMeta(ctx, meta); err != nil {
			return err
		}
		committed = meta
		return nil
	})
	if err != nil {
		metrics.RecordLedgerError(op, Kind(err))
		l.logger.Debug(ctx, "ledger operation rejected",
			logger.String("operation", op),
			logger.String("kind", Kind(err)),
			logger.Error(err),
		)
		return err
	}
	metrics.UpdateLedgerTotals(committed.TotalRequests, committed.TotalVerifications)
	if l.publisher != nil {
		for _, e := range events {
			l.publisher.Publish(ctx, e)
		}
	}
	return nil
}

// view runs fn against a read-only snapshot of an initialized ledger.
func (l *Ledger) view(ctx context.Context, op string, fn func(tx repository.Tx, meta repository.Meta) error) error {
	err := l.store.View(ctx, func(tx repository.Tx) error {
		meta, err := tx.Meta(ctx)
		if err != nil {
			return err
		}
		if !meta.Initialized {
			return ErrNotInitialized
		}
		return fn(tx, meta)
	})
	if err != nil {
		metrics.RecordLedgerError(op, Kind(err))
	}
	return err
}

func (l *Ledger) authorize(meta repository.Meta, caller types.AccountID) error {
	if !meta.Initialized {
		return ErrNotInitialized
	}
	if caller.IsZero() || (caller != l.relay && caller.String() != meta.Owner) {
		return errorsmod.Wrapf(ErrUnauthorized, "caller %q is neither the relay nor the owner", caller)
	}
	return nil
}

func loadRequest(ctx context.Context, tx repository.Tx, id uint64) (model.AdvisorRequest, error) {
	r, err := tx.Request(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return r, errorsmod.Wrapf(ErrNotFound, "request %d", id)
	}
	return r, err
}

func requestID(id uint64) *uint64 { return &id }

// Initialize sets the owner. It may run once per ledger.
func (l *Ledger) Initialize(ctx context.Context, owner types.AccountID) error {
	if owner.IsZero() {
		return errorsmod.Wrap(ErrInvalidArgument, "owner must not be empty")
	}
	return l.mutate(ctx, "initialize", func(_ repository.Tx, meta *repository.Meta, emit func(model.Event)) error {
		if meta.Initialized {
			return errorsmod.Wrapf(ErrAlreadyInitialized, "owner is %q", meta.Owner)
		}
		meta.Initialized = true
		meta.Owner = owner.String()
		meta.Height++
		emit(model.Event{Kind: model.EventInitialized, User: owner.String()})
		return nil
	})
}

// ParseDeposit parses an attached value. Empty means zero.
func ParseDeposit(s string) (sdkmath.Uint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return sdkmath.ZeroUint(), nil
	}
	u, err := sdkmath.ParseUint(s)
	if err != nil {
		return sdkmath.Uint{}, errorsmod.Wrapf(ErrInvalidArgument, "deposit %q: %v", s, err)
	}
	return u, nil
}

// SubmitRequest records a new Pending request from caller and returns its id.
func (l *Ledger) SubmitRequest(ctx context.Context, caller types.AccountID, in RequestInput) (uint64, error) {
	var id uint64
	err := l.mutate(ctx, "submit_request", func(tx repository.Tx, meta *repository.Meta, emit func(model.Event)) error {
		if !meta.Initialized {
			return ErrNotInitialized
		}
		if caller.IsZero() {
			return errorsmod.Wrap(ErrInvalidArgument, "caller must not be empty")
		}
		if strings.TrimSpace(in.Question) == "" {
			return errorsmod.Wrap(ErrInvalidArgument, "question must not be empty")
		}
		deposit, err := ParseDeposit(in.Deposit)
		if err != nil {
			return err
		}
		if deposit.LT(l.minDeposit) {
			return errorsmod.Wrapf(ErrInsufficientDeposit, "attached %s, minimum %s", deposit, l.minDeposit)
		}

		now := l.now()
		r := model.AdvisorRequest{
			ID:            meta.NextRequestID,
			User:          caller.String(),
			Question:      in.Question,
			PortfolioData: in.PortfolioData,
			Deposit:       deposit.String(),
			Status:        model.StatusPending,
			Timestamp:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertRequest(ctx, r); err != nil {
			return err
		}
		id = r.ID
		meta.NextRequestID++
		meta.TotalRequests++
		meta.Height++
		emit(model.Event{Kind: model.EventRequestCreated, RequestID: requestID(id), User: r.User})
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.RecordRequestCreated()
	return id, nil
}

// MarkProcessing moves a request from Pending to Processing.
func (l *Ledger) MarkProcessing(ctx context.Context, caller types.AccountID, id uint64) error {
	return l.transition(ctx, "mark_processing", caller, id, model.StatusProcessing, "")
}

// MarkFailed moves a Pending or Processing request to Failed.
func (l *Ledger) MarkFailed(ctx context.Context, caller types.AccountID, id uint64, reason string) error {
	return l.transition(ctx, "mark_failed", caller, id, model.StatusFailed, strings.TrimSpace(reason))
}

func (l *Ledger) transition(ctx context.Context, op string, caller types.AccountID, id uint64, to model.RequestStatus, reason string) error {
	var from model.RequestStatus
	err := l.mutate(ctx, op, func(tx repository.Tx, meta *repository.Meta, emit func(model.Event)) error {
		if err := l.authorize(*meta, caller); err != nil {
			return err
		}
		r, err := loadRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(r, to); err != nil {
			return err
		}
		from = r.Status
		r.Status = to
		r.UpdatedAt = l.now()
		if to == model.StatusFailed {
			r.FailureReason = reason
		}
		if err := tx.UpdateRequest(ctx, r); err != nil {
			return err
		}
		meta.Height++

		kind := model.EventRequestProcessing
		if to == model.StatusFailed {
			kind = model.EventRequestFailed
		}
		emit(model.Event{Kind: kind, RequestID: requestID(id), User: r.User, Reason: reason})
		return nil
	})
	if err == nil {
		metrics.RecordTransition(string(from), string(to))
	}
	return err
}

// SubmitVerification stores an attested response for a Processing request
// and completes it. Both happen or neither does.
func (l *Ledger) SubmitVerification(ctx context.Context, caller types.AccountID, in VerificationInput) (uint64, error) {
	var vid uint64
	err := l.mutate(ctx, "submit_verification", func(tx repository.Tx, meta *repository.Meta, emit func(model.Event)) error {
		if err := l.authorize(*meta, caller); err != nil {
			return err
		}
		r, err := loadRequest(ctx, tx, in.RequestID)
		if err != nil {
			return err
		}
		if r.Status != model.StatusProcessing {
			return errorsmod.Wrapf(ErrInvalidTransition, "request %d is %s, want %s", r.ID, r.Status, model.StatusProcessing)
		}

		meta.Height++
		now := l.now()
		v := model.Verification{
			ID:             meta.NextVerificationID,
			RequestID:      r.ID,
			User:           r.User,
			RequestHash:    in.RequestHash,
			ResponseHash:   in.ResponseHash,
			Signature:      in.Signature,
			SigningAddress: in.SigningAddress,
			SigningAlgo:    in.SigningAlgo,
			TEEAttestation: in.TEEAttestation,
			ResponseText:   in.ResponseText,
			Timestamp:      now,
			LedgerHeight:   meta.Height,
		}
		if err := tx.InsertVerification(ctx, v); err != nil {
			return err
		}
		r.Status = model.StatusCompleted
		r.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, r); err != nil {
			return err
		}
		vid = v.ID
		meta.NextVerificationID++
		meta.TotalVerifications++

		emit(model.Event{Kind: model.EventVerificationStored, RequestID: requestID(r.ID), VerificationID: requestID(vid), User: r.User})
		emit(model.Event{Kind: model.EventRequestCompleted, RequestID: requestID(r.ID), User: r.User})
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.RecordVerificationStored()
	metrics.RecordTransition(string(model.StatusProcessing), string(model.StatusCompleted))
	return vid, nil
}
