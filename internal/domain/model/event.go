// Package model contains domain models passed between layers.
package model

import "time"

// EventKind names a ledger event.
type EventKind string

// Ledger event kinds.
const (
	EventInitialized        EventKind = "Initialized"
	EventRequestCreated     EventKind = "RequestCreated"
	EventRequestProcessing  EventKind = "RequestProcessing"
	EventRequestCompleted   EventKind = "RequestCompleted"
	EventRequestFailed      EventKind = "RequestFailed"
	EventVerificationStored EventKind = "VerificationStored"
)

// Event is emitted after a ledger mutation commits.
type Event struct {
	Kind           EventKind `json:"kind"`
	RequestID      *uint64   `json:"request_id,omitempty"`
	VerificationID *uint64   `json:"verification_id,omitempty"`
	User           string    `json:"user,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Height         uint64    `json:"ledger_height"`
	TS             time.Time `json:"ts"`
}

// Stats are the ledger counters returned by get_stats.
type Stats struct {
	TotalRequests      uint64 `json:"total_requests"`
	TotalVerifications uint64 `json:"total_verifications"`
	NextRequestID      uint64 `json:"next_request_id"`
	NextVerificationID uint64 `json:"next_verification_id"`
	LedgerHeight       uint64 `json:"ledger_height"`
}
