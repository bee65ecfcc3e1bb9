// Package repository persists the advisory ledger: the meta record, the
// request and verification tables, and the request -> verification index.
package repository

import (
	"context"

	"github.com/okian/blindfold/internal/domain/model"
)

// Meta is the singleton aggregate record: owner, counters and height.
type Meta struct {
	Initialized        bool
	Owner              string
	NextRequestID      uint64
	NextVerificationID uint64
	TotalRequests      uint64
	TotalVerifications uint64
	Height             uint64
}

// Tx is one unit of work against the ledger tables. Reads observe the
// writes already made through the same Tx.
type Tx interface {
	Meta(ctx context.Context) (Meta, error)
	SaveMeta(ctx context.Context, m Meta) error

	// Request returns ErrNotFound if id was never inserted.
	Request(ctx context.Context, id uint64) (model.AdvisorRequest, error)
	// InsertRequest appends r. r.ID must be the next dense id, else ErrConflict.
	InsertRequest(ctx context.Context, r model.AdvisorRequest) error
	// UpdateRequest replaces an existing request.
	UpdateRequest(ctx context.Context, r model.AdvisorRequest) error
	// ScanRequests calls fn in id order until it returns false.
	ScanRequests(ctx context.Context, fn func(model.AdvisorRequest) bool) error

	Verification(ctx context.Context, id uint64) (model.Verification, error)
	// InsertVerification appends v under the next dense id and indexes it by
	// request. The first verification stored for a request keeps the index.
	InsertVerification(ctx context.Context, v model.Verification) error
	// VerificationIDByRequest consults the request -> verification index.
	VerificationIDByRequest(ctx context.Context, requestID uint64) (uint64, bool, error)
	ScanVerifications(ctx context.Context, fn func(model.Verification) bool) error
}

// Store runs units of work.
type Store interface {
	// Atomic runs fn in a unit of work that commits only if fn returns nil.
	// Units of work are serialized.
	Atomic(ctx context.Context, fn func(Tx) error) error
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}
