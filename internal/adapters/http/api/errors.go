package api

import (
	"errors"
	"net/http"

	"github.com/okian/blindfold/internal/domain/ledger"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrMissingCaller = errors.New("missing caller identity")

	ErrInvalidCredentials = errors.New("privileged operation requires a valid bearer credential")
)

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Codespace string `json:"codespace,omitempty"`
	ABCICode  uint32 `json:"abci_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

var kindStatus = map[string]int{
	"not_found":            http.StatusNotFound,
	"invalid_transition":   http.StatusConflict,
	"unauthorized":         http.StatusForbidden,
	"insufficient_deposit": http.StatusPaymentRequired,
	"already_initialized":  http.StatusConflict,
	"not_initialized":      http.StatusPreconditionFailed,
	"invalid_argument":     http.StatusBadRequest,
}

// statusFor maps err to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrMissingCaller):
		return http.StatusUnauthorized, "missing_caller"
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusForbidden, "invalid_credentials"
	}
	kind := ledger.Kind(err)
	if status, ok := kindStatus[kind]; ok {
		return status, kind
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	resp := errorResponse{Code: code, Message: err.Error(), RequestID: RequestIDFrom(r.Context())}
	if _, ok := kindStatus[code]; ok {
		resp.Codespace, resp.ABCICode = ledger.Code(err)
	}
	if status == http.StatusInternalServerError {
		resp.Message = http.StatusText(status)
	}
	writeJSON(w, status, resp)
}
