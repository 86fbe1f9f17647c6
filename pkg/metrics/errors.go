package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrInvalidBuckets = errors.New("histogram buckets must be strictly increasing")
)

// ValidateBuckets reports whether buckets can back a histogram.
func ValidateBuckets(buckets []float64) error {
	for i := 1; i < len(buckets); i++ {
		if buckets[i] <= buckets[i-1] {
			return ErrInvalidBuckets
		}
	}
	return nil
}
