package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrResourceInUse  = errors.New("resource is referenced by applicants")
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrStoreClosed    = errors.New("store is closed")
)
