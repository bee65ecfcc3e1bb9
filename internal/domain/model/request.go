package model

import "time"

// RequestStatus is the lifecycle state of an AdvisorRequest.
type RequestStatus string

// Request statuses.
const (
	StatusPending    RequestStatus = "Pending"
	StatusProcessing RequestStatus = "Processing"
	StatusCompleted  RequestStatus = "Completed"
	StatusFailed     RequestStatus = "Failed"
)

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// AdvisorRequest is a user question about a portfolio awaiting an attested answer.
type AdvisorRequest struct {
	ID            uint64        `json:"id"`
	User          string        `json:"user"`
	Question      string        `json:"question"`
	PortfolioData string        `json:"portfolio_data"`
	Deposit       string        `json:"deposit"`
	Status        RequestStatus `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Verification binds an attested response to a completed request.
type Verification struct {
	ID             uint64    `json:"id"`
	RequestID      uint64    `json:"request_id"`
	User           string    `json:"user"`
	RequestHash    string    `json:"request_hash"`
	ResponseHash   string    `json:"response_hash"`
	Signature      string    `json:"signature"`
	SigningAddress string    `json:"signing_address"`
	SigningAlgo    string    `json:"signing_algo"`
	TEEAttestation string    `json:"tee_attestation"`
	ResponseText   string    `json:"response_text"`
	Timestamp      time.Time `json:"timestamp"`
	LedgerHeight   uint64    `json:"ledger_height"`
}
