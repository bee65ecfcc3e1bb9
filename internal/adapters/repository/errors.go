package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record id is not the next dense id")
	ErrReadOnly = errors.New("write in read-only unit of work")
	ErrClosed   = errors.New("store closed")
	ErrInvalid  = errors.New("record has an unknown status")
)
