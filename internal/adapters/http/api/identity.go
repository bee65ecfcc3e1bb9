package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/blindfold/internal/domain/types"
)

// Identity and deposit headers.
const (
	CallerHeader         = "X-Caller-ID"
	DepositHeader        = "X-Attached-Deposit"
	IdempotencyKeyHeader = "Idempotency-Key"
)

const bearerPrefix = "Bearer "

// Credential binds a bearer secret to the account it authenticates.
type Credential struct {
	Account types.AccountID
	Token   string
}

// callerFrom resolves the predecessor account from X-Caller-ID. The header is
// self-asserted; privileged routes use authenticate instead.
func callerFrom(r *http.Request) (types.AccountID, error) {
	raw := strings.TrimSpace(r.Header.Get(CallerHeader))
	if raw == "" {
		return "", ErrMissingCaller
	}
	id, err := types.ParseAccountID(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return id, nil
}

// authenticate resolves the caller of a privileged route from an
// Authorization bearer secret. Every credential is compared so the time taken
// does not depend on which one matched.
func authenticate(r *http.Request, creds []Credential) (types.AccountID, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(auth, bearerPrefix)
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		if auth == "" && strings.TrimSpace(r.Header.Get(CallerHeader)) == "" {
			return "", ErrMissingCaller
		}
		return "", ErrInvalidCredentials
	}

	var match types.AccountID
	for _, c := range creds {
		if subtle.ConstantTimeCompare([]byte(token), []byte(c.Token)) == 1 && match == "" {
			match = c.Account
		}
	}
	if match == "" {
		return "", ErrInvalidCredentials
	}
	if claimed := strings.TrimSpace(r.Header.Get(CallerHeader)); claimed != "" {
		if id, err := types.ParseAccountID(claimed); err != nil || id != match {
			return "", ErrInvalidCredentials
		}
	}
	return match, nil
}

// depositFrom prefers the X-Attached-Deposit header over the body field.
func depositFrom(r *http.Request, body string) string {
	if h := strings.TrimSpace(r.Header.Get(DepositHeader)); h != "" {
		return h
	}
	return strings.TrimSpace(body)
}

func idParam(r *http.Request, name string) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", ErrBadRequest, name)
	}
	return id, nil
}

func userParam(r *http.Request) (types.AccountID, error) {
	id, err := types.ParseAccountID(chi.URLParam(r, "user"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return id, nil
}

// page reads offset and limit. limit defaults to and is capped at max.
func page(r *http.Request, max int) (offset, limit int, err error) {
	q := r.URL.Query()
	limit = max
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: invalid offset", ErrBadRequest)
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("%w: invalid limit", ErrBadRequest)
		}
		if limit > max {
			limit = max
		}
	}
	return offset, limit, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
