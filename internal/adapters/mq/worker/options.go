package worker

import (
	"sync/atomic"

	"github.com/okian/seatalloc/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// withSharedGauge makes pool workers report activity against one counter.
func withSharedGauge(active *atomic.Int32, total int) Option {
	return func(w *InMemoryWorker) {
		w.active = active
		w.total = total
	}
}
