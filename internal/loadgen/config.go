package loadgen

import (
	"time"

	"github.com/okian/blindfold/internal/domain/model"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the ledger API
	NumRequests  int           // Number of advisor requests to submit
	Users        int           // Number of distinct user accounts
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	Deposit      string        // Attached deposit per request, in base units
	ReplayEvery  int           // Resubmit every Nth request with the same idempotency key; 0 disables
	WaitTimeout  time.Duration // How long to wait for the relay to finish every request
	PollInterval time.Duration // Delay between completion rounds
	RelayAddress string        // Expected signing address; empty accepts any
	OutputFile   string        // Output file for submissions
	LogFile      string        // Log file for run output
	Verbose      bool          // Log every verified request
}

// Submission is one generated advisor request and what became of it.
type Submission struct {
	User           string              `json:"user"`
	Question       string              `json:"question"`
	PortfolioData  string              `json:"portfolio_data"`
	IdempotencyKey string              `json:"idempotency_key"`
	RequestID      uint64              `json:"request_id"`
	Accepted       bool                `json:"accepted"`
	Status         model.RequestStatus `json:"status,omitempty"`
	VerificationID uint64              `json:"verification_id,omitempty"`
	Error          string              `json:"error,omitempty"`

	request model.AdvisorRequest
}

// Stats holds run statistics.
type Stats struct {
	RequestsGenerated  int
	RequestsSubmitted  int
	RequestsAccepted   int
	RequestsRejected   int
	ReplaysSent        int
	ReplayMismatches   int
	Completed          int
	Failed             int
	Unfinished         int
	Verified           int
	VerificationErrors int
	LedgerRequests     uint64
	LedgerHeight       uint64
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
