package service

import "errors"

// ErrNotStarted is returned by ledger operations before Start.
var ErrNotStarted = errors.New("service not started")
