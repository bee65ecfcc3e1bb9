package ledger

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// Codespace scopes the ledger error codes.
const Codespace = "blindfold"

// BaseErrorCode is the first code below the ledger's range.
const BaseErrorCode uint32 = 1

// Ledger error kinds. Match with errors.Is; wrapped variants keep the code.
var (
	ErrNotFound            = errorsmod.Register(Codespace, BaseErrorCode+1, "not found")
	ErrInvalidTransition   = errorsmod.Register(Codespace, BaseErrorCode+2, "invalid status transition")
	ErrUnauthorized        = errorsmod.Register(Codespace, BaseErrorCode+3, "unauthorized")
	ErrInsufficientDeposit = errorsmod.Register(Codespace, BaseErrorCode+4, "insufficient deposit")
	ErrAlreadyInitialized  = errorsmod.Register(Codespace, BaseErrorCode+5, "already initialized")
	ErrNotInitialized      = errorsmod.Register(Codespace, BaseErrorCode+6, "not initialized")
	ErrInvalidArgument     = errorsmod.Register(Codespace, BaseErrorCode+7, "invalid argument")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, "not_found"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInsufficientDeposit, "insufficient_deposit"},
	{ErrAlreadyInitialized, "already_initialized"},
	{ErrNotInitialized, "not_initialized"},
	{ErrInvalidArgument, "invalid_argument"},
}

// Kind returns a stable label for err, "internal" for errors outside the
// ledger taxonomy and "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// Code returns the ABCI-style codespace and code of err.
func Code(err error) (string, uint32) {
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	return codespace, code
}
