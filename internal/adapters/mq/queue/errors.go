package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrQueueFull   = errors.New("pass queue is full")
	ErrQueueClosed = errors.New("pass queue is closed")
)
