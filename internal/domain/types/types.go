// Package types contains common types used across the application
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAccountID is returned when an account identifier is malformed.
var ErrInvalidAccountID = errors.New("invalid account id")

const (
	minAccountLen = 2
	maxAccountLen = 64
)

// AccountID identifies a caller: a user, the relay or the owner. It follows
// NEAR account naming: 2-64 chars of [a-z0-9], with single '-', '_' or '.'
// separators that never lead, trail or repeat.
type AccountID string

// ParseAccountID normalizes s (trim, lowercase) and validates it.
func ParseAccountID(s string) (AccountID, error) {
	id := strings.ToLower(strings.TrimSpace(s))
	if len(id) < minAccountLen || len(id) > maxAccountLen {
		return "", fmt.Errorf("%w: length %d out of range", ErrInvalidAccountID, len(id))
	}
	prevSep := true
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevSep = false
		case c == '-' || c == '_' || c == '.':
			if prevSep {
				return "", fmt.Errorf("%w: %q has a misplaced separator", ErrInvalidAccountID, s)
			}
			prevSep = true
		default:
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidAccountID, s, c)
		}
	}
	if prevSep {
		return "", fmt.Errorf("%w: %q ends with a separator", ErrInvalidAccountID, s)
	}
	return AccountID(id), nil
}

// MustAccountID is ParseAccountID for constants and tests.
func MustAccountID(s string) AccountID {
	id, err := ParseAccountID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (a AccountID) String() string { return string(a) }

// IsZero reports whether a is unset.
func (a AccountID) IsZero() bool { return a == "" }
