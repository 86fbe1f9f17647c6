package allocctl

import (
	"time"

	"github.com/okian/seatalloc/internal/domain/model"
)

// Config holds the settings shared by the allocctl commands.
type Config struct {
	BaseURL     string         // Base URL of a running server, for push
	Timeout     time.Duration  // HTTP request timeout
	Input       string         // Snapshot file to read
	Output      string         // Result or snapshot file to write ("" or "-" is stdout)
	Category    model.Category // Category to process; optional when the file holds one
	MeritMetric string         // Overrides the snapshot's merit metric
	Async       bool           // Queue the pass on the server instead of waiting
	Verbose     bool           // Log every placement
}

// GenerateConfig shapes a synthetic snapshot.
type GenerateConfig struct {
	Category    model.Category
	Applicants  int
	Resources   int
	Preferences int // choices per applicant, capped at Resources
	Confirmed   int // applicants that already hold a confirmed seat
	Output      string
}

// Stats summarises one command run.
type Stats struct {
	Applicants   int
	Resources    int
	Allocated    int
	Unassigned   int
	Fallback     int
	Retained     int
	OverCapacity int
	Violations   int
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}
