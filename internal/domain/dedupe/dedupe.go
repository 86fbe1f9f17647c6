// Package dedupe guards one-time operations such as preference submission.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/seatalloc/internal/domain/model"
)

// Deduper records keys to ensure an operation happens at most once per key.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord removes a key so the operation can be retried. Use it when the
	// guarded operation failed after the key was recorded.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key builds the guard key for one applicant within a category.
func Key(category model.Category, applicantID string) string {
	return string(category) + "/" + applicantID
}

// inMemoryDeduper implements Deduper with a map. Entries are never evicted:
// forgetting a key would allow a second submission.
type inMemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
	size atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &inMemoryDeduper{seen: make(map[string]struct{}, cfg.sizeHint)}
	for _, k := range cfg.preload {
		if _, ok := d.seen[k]; !ok {
			d.seen[k] = struct{}{}
			d.size.Add(1)
		}
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}
	d.seen[key] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		delete(d.seen, key)
		d.size.Add(-1)
	}
}

// Size returns the current number of recorded keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
