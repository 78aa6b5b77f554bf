package workflow

import (
	"fmt"

	"compliance/api/internal/store"
	"compliance/api/internal/visibility"
)

// Legal status moves shared by evidence and DMAX reports. Entering
// Submitted happens only by creating a new record.
var transitions = map[store.Status][]store.Status{
	store.StatusSubmitted:       {store.StatusManagerApproved, store.StatusRejected},
	store.StatusManagerApproved: {store.StatusFinalAuditCompleted},
}

func CanTransition(from, to store.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func target(action visibility.Action) store.Status {
	switch action {
	case visibility.ActionApprove:
		return store.StatusManagerApproved
	case visibility.ActionReject:
		return store.StatusRejected
	case visibility.ActionCertify:
		return store.StatusFinalAuditCompleted
	default:
		return ""
	}
}

func transitionError(from, to store.Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
