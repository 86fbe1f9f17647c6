package model

import "time"

// Preference is one ranked choice on an applicant's list. Rank 1 is the most wanted.
type Preference struct {
	Rank       int    `json:"rank" yaml:"rank"`
	ResourceID string `json:"resource_id" yaml:"resource_id"`
}

// AcademicRecord holds the raw metrics a merit score is reduced from.
type AcademicRecord struct {
	Percentage float64 `json:"percentage" yaml:"percentage"`
	CGPA       float64 `json:"cgpa" yaml:"cgpa"`
}

// Applicant is one student taking part in one category's allocation cycle.
type Applicant struct {
	ID                   string         `json:"id" yaml:"id"`
	Name                 string         `json:"name,omitempty" yaml:"name,omitempty"`
	MeritScore           float64        `json:"merit_score" yaml:"merit_score"`
	Academic             AcademicRecord `json:"academic" yaml:"academic"`
	Preferences          []Preference   `json:"preferences" yaml:"preferences"`
	CompletedResourceIDs []string       `json:"completed_resource_ids,omitempty" yaml:"completed_resource_ids,omitempty"`
	SubmittedAt          time.Time      `json:"submitted_at,omitempty" yaml:"submitted_at,omitempty"`

	// AssignedResourceID is written by the allocation engine only. Empty means none.
	AssignedResourceID string `json:"assigned_resource_id,omitempty" yaml:"assigned_resource_id,omitempty"`
	// Confirmed is written by the confirmation state machine only.
	Confirmed bool `json:"confirmed" yaml:"confirmed"`

	// TieBreakScore orders applicants of equal merit, higher first. It is
	// derived from the academic record and never stored.
	TieBreakScore float64 `json:"-" yaml:"-"`
}

// Assigned reports whether the applicant currently holds a seat.
func (a *Applicant) Assigned() bool { return a.AssignedResourceID != "" }

// Clone returns a deep copy so callers can hand snapshots across goroutines.
func (a Applicant) Clone() Applicant {
	c := a
	if a.Preferences != nil {
		c.Preferences = append([]Preference(nil), a.Preferences...)
	}
	if a.CompletedResourceIDs != nil {
		c.CompletedResourceIDs = append([]string(nil), a.CompletedResourceIDs...)
	}
	return c
}

// Resource is one capacity-limited offering (a course's seats).
type Resource struct {
	ID                   string  `json:"id" yaml:"id"`
	Name                 string  `json:"name,omitempty" yaml:"name,omitempty"`
	Capacity             int     `json:"capacity" yaml:"capacity"`
	EligibilityThreshold float64 `json:"eligibility_threshold" yaml:"eligibility_threshold"`
	AllocatedCount       int     `json:"allocated_count" yaml:"allocated_count"`
}

// HasRoom reports whether another seat can be granted without exceeding capacity.
func (r *Resource) HasRoom() bool { return r.AllocatedCount < r.Capacity }

// Admits reports whether merit meets the eligibility threshold.
func (r *Resource) Admits(merit float64) bool { return merit >= r.EligibilityThreshold }
