package dedupe

type config struct {
	sizeHint int
	preload  []string
}

// Option applies a configuration option to the in-memory deduper.
type Option func(*config)

// WithSizeHint preallocates room for n keys.
func WithSizeHint(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.sizeHint = n
		}
	}
}

// WithSeen marks keys as already recorded, for state restored from a store.
func WithSeen(keys ...string) Option {
	return func(c *config) {
		c.preload = append(c.preload, keys...)
	}
}
