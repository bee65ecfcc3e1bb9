package ledger

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/okian/blindfold/internal/domain/model"
)

// transitions lists the statuses reachable from each status.
var transitions = map[model.RequestStatus][]model.RequestStatus{
	model.StatusPending:    {model.StatusProcessing, model.StatusFailed},
	model.StatusProcessing: {model.StatusCompleted, model.StatusFailed},
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to model.RequestStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(r model.AdvisorRequest, to model.RequestStatus) error {
	if !CanTransition(r.Status, to) {
		return errorsmod.Wrapf(ErrInvalidTransition, "request %d: %s -> %s", r.ID, r.Status, to)
	}
	return nil
}
