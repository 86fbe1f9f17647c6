package allocctl

import "errors"

// Error constants.
var (
	ErrNoCategory       = errors.New("snapshot holds several categories; choose one with --category")
	ErrCategoryNotFound = errors.New("category not in snapshot")
	ErrVerifyFailed     = errors.New("result violates allocation invariants")
	ErrServer           = errors.New("server request failed")
	ErrPassFailed       = errors.New("queued pass failed")
)
