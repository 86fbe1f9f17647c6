// Package confirmation implements the per-applicant lifecycle
// Unallocated -> Allocated -> Confirmed.
//
// The machine is a pure transition function; stores apply it under their own
// serialization so that two racing confirmations of one applicant cannot both
// succeed.
package confirmation

import (
	"errors"

	"github.com/okian/seatalloc/internal/domain/model"
)

// Event drives a transition.
type Event string

// Events understood by the machine.
const (
	// EventAllocate is raised by the allocation engine only.
	EventAllocate Event = "allocate"
	// EventConfirm is raised by the applicant.
	EventConfirm Event = "confirm"
)

// StateOf derives the lifecycle state from an applicant record.
func StateOf(a *model.Applicant) model.State {
	switch {
	case a.Confirmed:
		return model.StateConfirmed
	case a.Assigned():
		return model.StateAllocated
	default:
		return model.StateUnallocated
	}
}

// Next returns the state reached from s on ev, or a *model.StateError.
func Next(s model.State, ev Event) (model.State, error) {
	switch ev {
	case EventAllocate:
		switch s {
		case model.StateUnallocated, model.StateAllocated:
			return model.StateAllocated, nil
		case model.StateConfirmed:
			return s, &model.StateError{State: s, Err: model.ErrAlreadyConfirmed}
		}
	case EventConfirm:
		switch s {
		case model.StateAllocated:
			return model.StateConfirmed, nil
		case model.StateUnallocated:
			return s, &model.StateError{State: s, Err: model.ErrNotAllocated}
		case model.StateConfirmed:
			return s, &model.StateError{State: s, Err: model.ErrAlreadyConfirmed}
		}
	}
	return s, &model.StateError{State: s, Err: errUnknownTransition(s, ev)}
}

// Confirm applies EventConfirm to a, mutating it only on success. Callers must
// hold whatever lock guards a.
func Confirm(a *model.Applicant) error {
	if _, err := Next(StateOf(a), EventConfirm); err != nil {
		var se *model.StateError
		if errors.As(err, &se) {
			se.ApplicantID = a.ID
		}
		return err
	}
	a.Confirmed = true
	return nil
}

// Status builds the reporting view of a.
func Status(a *model.Applicant) model.AssignmentStatus {
	return model.AssignmentStatus{
		ApplicantID: a.ID,
		ResourceID:  a.AssignedResourceID,
		Confirmed:   a.Confirmed,
		State:       StateOf(a),
	}
}
