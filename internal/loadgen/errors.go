package loadgen

import "errors"

// Run failures.
var (
	ErrUnhealthy          = errors.New("ledger api is not healthy")
	ErrNothingAccepted    = errors.New("no request was accepted")
	ErrReplayMismatch     = errors.New("idempotent replay returned a different request")
	ErrUnfinished         = errors.New("requests not finished within wait timeout")
	ErrVerification       = errors.New("verification check failed")
	ErrLedgerTotals       = errors.New("ledger totals lower than observed")
	ErrUnexpectedResponse = errors.New("unexpected response")
)
