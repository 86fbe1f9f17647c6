package api

import (
	"errors"
	"net/http"

	"github.com/okian/seatalloc/internal/adapters/mq/queue"
	"github.com/okian/seatalloc/internal/adapters/repository"
	service "github.com/okian/seatalloc/internal/app"
	"github.com/okian/seatalloc/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
)

// Error tags a failure with the handler operation that saw it.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Kind != nil && e.Err != nil:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	default:
		return e.Op
	}
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap tags err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// NewKind reports a failure of the given kind in op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind tags err with op and classifies it as kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// statusFor maps an error onto the response status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrNotAllocated):
		return http.StatusConflict, "not_allocated"
	case errors.Is(err, model.ErrAlreadyConfirmed):
		return http.StatusConflict, "already_confirmed"
	case errors.Is(err, model.ErrAlreadySubmitted):
		return http.StatusConflict, "already_submitted"
	case errors.Is(err, model.ErrStaleSnapshot):
		return http.StatusConflict, "stale_snapshot"
	case errors.Is(err, repository.ErrResourceInUse):
		return http.StatusConflict, "resource_in_use"
	case errors.Is(err, model.ErrAllocationClosed):
		return http.StatusLocked, "allocation_closed"
	case errors.Is(err, ErrBackpressure), errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, model.ErrPersistence),
		errors.Is(err, queue.ErrQueueClosed),
		errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
