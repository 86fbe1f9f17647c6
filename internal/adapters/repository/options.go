package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithClock sets the time source used to stamp preference submissions.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// MongoOption applies a configuration option to the MongoStore.
type MongoOption func(*MongoStore)

// WithDatabase sets the database name. Defaults to "seatalloc".
func WithDatabase(name string) MongoOption {
	return func(s *MongoStore) {
		if name != "" {
			s.database = name
		}
	}
}

// WithMongoClock sets the time source used to stamp preference submissions.
func WithMongoClock(now func() time.Time) MongoOption {
	return func(s *MongoStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithClient reuses an existing client instead of connecting. The store does
// not disconnect a client it did not create.
func WithClient(c *mongo.Client) MongoOption {
	return func(s *MongoStore) {
		s.client = c
		s.ownsClient = false
	}
}
