package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds for the allocation domain. These allow errors.Is/As from callers.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrNotAllocated     = errors.New("applicant has no allocation")
	ErrAlreadyConfirmed = errors.New("allocation already confirmed")
	ErrPersistence      = errors.New("persistence failed")
	ErrStaleSnapshot    = errors.New("snapshot is stale")
	ErrAllocationClosed = errors.New("allocation is closed for category")
	ErrAlreadySubmitted = errors.New("preferences already submitted")
)

// Issue is a single structural problem found in input data.
type Issue struct {
	ApplicantID string `json:"applicant_id,omitempty"`
	ResourceID  string `json:"resource_id,omitempty"`
	Field       string `json:"field"`
	Reason      string `json:"reason"`
}

func (i Issue) String() string {
	var b strings.Builder
	if i.ApplicantID != "" {
		b.WriteString("applicant " + i.ApplicantID + ": ")
	}
	if i.ResourceID != "" {
		b.WriteString("resource " + i.ResourceID + ": ")
	}
	b.WriteString(i.Field + ": " + i.Reason)
	return b.String()
}

// ValidationError reports malformed rosters, catalogs or preference lists.
type ValidationError struct {
	Issues []Issue
}

// NewValidationError builds a ValidationError from issues.
func NewValidationError(issues ...Issue) *ValidationError {
	return &ValidationError{Issues: issues}
}

func (e *ValidationError) Error() string {
	switch len(e.Issues) {
	case 0:
		return ErrValidation.Error()
	case 1:
		return ErrValidation.Error() + ": " + e.Issues[0].String()
	}
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("%s: %d issues: %s", ErrValidation, len(e.Issues), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports an applicant or resource id a provider could not resolve.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StateError reports a confirmation attempted out of order.
type StateError struct {
	ApplicantID string
	State       State
	Err         error
}

func (e *StateError) Error() string {
	if e.ApplicantID == "" {
		return fmt.Sprintf("state %s: %v", e.State, e.Err)
	}
	return fmt.Sprintf("applicant %q in state %s: %v", e.ApplicantID, e.State, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// PersistenceError reports that a sink failed to durably record a pass or confirmation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrPersistence, e.Err)
}

// Is matches ErrPersistence in addition to the wrapped cause.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsStateError reports whether err is a confirmation ordering error.
func IsStateError(err error) bool {
	return errors.Is(err, ErrNotAllocated) || errors.Is(err, ErrAlreadyConfirmed)
}
