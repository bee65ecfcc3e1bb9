package ledger

import (
	"context"
	"errors"

	errorsmod "cosmossdk.io/errors"

	"github.com/okian/blindfold/internal/adapters/repository"
	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/internal/domain/types"
)

// Request returns the request with id.
func (l *Ledger) Request(ctx context.Context, id uint64) (model.AdvisorRequest, error) {
	var r model.AdvisorRequest
	err := l.view(ctx, "get_request", func(tx repository.Tx, _ repository.Meta) error {
		var err error
		r, err = loadRequest(ctx, tx, id)
		return err
	})
	return r, err
}

// Verification returns the verification with id.
func (l *Ledger) Verification(ctx context.Context, id uint64) (model.Verification, error) {
	var v model.Verification
	err := l.view(ctx, "get_verification", func(tx repository.Tx, _ repository.Meta) error {
		var err error
		v, err = tx.Verification(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return errorsmod.Wrapf(ErrNotFound, "verification %d", id)
		}
		return err
	})
	return v, err
}

// VerificationByRequest returns the first verification stored for a request.
func (l *Ledger) VerificationByRequest(ctx context.Context, requestID uint64) (model.Verification, error) {
	var v model.Verification
	err := l.view(ctx, "get_verification_by_request", func(tx repository.Tx, _ repository.Meta) error {
		if l.useIndex {
			id, ok, err := tx.VerificationIDByRequest(ctx, requestID)
			if err != nil {
				return err
			}
			if ok {
				v, err = tx.Verification(ctx, id)
				return err
			}
			return errorsmod.Wrapf(ErrNotFound, "verification for request %d", requestID)
		}

		found := false
		err := tx.ScanVerifications(ctx, func(candidate model.Verification) bool {
			if candidate.RequestID == requestID {
				v, found = candidate, true
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
		if !found {
			return errorsmod.Wrapf(ErrNotFound, "verification for request %d", requestID)
		}
		return nil
	})
	return v, err
}

// PendingRequests lists Pending requests in id order.
func (l *Ledger) PendingRequests(ctx context.Context) ([]model.AdvisorRequest, error) {
	return l.filterRequests(ctx, "list_pending_requests", func(r model.AdvisorRequest) bool {
		return r.Status == model.StatusPending
	})
}

// UserRequests lists the requests submitted by user in id order.
func (l *Ledger) UserRequests(ctx context.Context, user types.AccountID) ([]model.AdvisorRequest, error) {
	return l.filterRequests(ctx, "list_user_requests", func(r model.AdvisorRequest) bool {
		return r.User == user.String()
	})
}

func (l *Ledger) filterRequests(ctx context.Context, op string, keep func(model.AdvisorRequest) bool) ([]model.AdvisorRequest, error) {
	out := []model.AdvisorRequest{}
	err := l.view(ctx, op, func(tx repository.Tx, _ repository.Meta) error {
		out = out[:0]
		return tx.ScanRequests(ctx, func(r model.AdvisorRequest) bool {
			if keep(r) {
				out = append(out, r)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UserVerifications lists the verifications of user's requests in id order.
func (l *Ledger) UserVerifications(ctx context.Context, user types.AccountID) ([]model.Verification, error) {
	out := []model.Verification{}
	err := l.view(ctx, "list_user_verifications", func(tx repository.Tx, _ repository.Meta) error {
		out = out[:0]
		return tx.ScanVerifications(ctx, func(v model.Verification) bool {
			if v.User == user.String() {
				out = append(out, v)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns the ledger counters.
func (l *Ledger) Stats(ctx context.Context) (model.Stats, error) {
	var s model.Stats
	err := l.view(ctx, "get_stats", func(_ repository.Tx, meta repository.Meta) error {
		s = model.Stats{
			TotalRequests:      meta.TotalRequests,
			TotalVerifications: meta.TotalVerifications,
			NextRequestID:      meta.NextRequestID,
			NextVerificationID: meta.NextVerificationID,
			LedgerHeight:       meta.Height,
		}
		return nil
	})
	return s, err
}

// Owner returns the owner set by Initialize.
func (l *Ledger) Owner(ctx context.Context) (types.AccountID, error) {
	var owner types.AccountID
	err := l.view(ctx, "get_owner", func(_ repository.Tx, meta repository.Meta) error {
		owner = types.AccountID(meta.Owner)
		return nil
	})
	return owner, err
}
