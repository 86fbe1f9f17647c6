package model

import "time"

// State is the confirmation lifecycle state of one applicant.
type State string

// Confirmation lifecycle states.
const (
	StateUnallocated State = "unallocated"
	StateAllocated   State = "allocated"
	StateConfirmed   State = "confirmed"
)

// AssignmentStatus is the read-only view returned to reporting callers.
type AssignmentStatus struct {
	ApplicantID string `json:"applicant_id" yaml:"applicant_id"`
	ResourceID  string `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`
	Confirmed   bool   `json:"confirmed" yaml:"confirmed"`
	State       State  `json:"state" yaml:"state"`
}

// AllocationReport summarises one allocation pass.
type AllocationReport struct {
	PassID          string    `json:"pass_id" yaml:"pass_id"`
	Category        Category  `json:"category" yaml:"category"`
	AllocatedCount  int       `json:"allocated_count" yaml:"allocated_count"`
	UnassignedCount int       `json:"unassigned_count" yaml:"unassigned_count"`
	FallbackCount   int       `json:"fallback_count" yaml:"fallback_count"`
	RetainedCount   int       `json:"retained_count" yaml:"retained_count"`
	OverCapacity    int       `json:"over_capacity" yaml:"over_capacity"`
	Attempts        int       `json:"attempts" yaml:"attempts"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time `json:"finished_at" yaml:"finished_at"`
}

// PassStatus tracks an allocation pass requested asynchronously.
type PassStatus string

// Pass lifecycle values.
const (
	PassQueued    PassStatus = "queued"
	PassRunning   PassStatus = "running"
	PassSucceeded PassStatus = "succeeded"
	PassFailed    PassStatus = "failed"
)

// PassRequest is the unit of work carried by the pass queue.
type PassRequest struct {
	ID          string
	Category    Category
	RequestedAt time.Time
}

// PassState is the externally visible record of a requested pass.
type PassState struct {
	ID       string            `json:"id"`
	Category Category          `json:"category"`
	Status   PassStatus        `json:"status"`
	Report   *AllocationReport `json:"report,omitempty"`
	Error    string            `json:"error,omitempty"`
}
