// Package repository defines the provider and sink interfaces the allocation
// service depends on, with in-memory and MongoDB implementations.
package repository

import (
	"context"
	"time"

	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/internal/domain/model"
	"github.com/okian/seatalloc/pkg/metrics"
)

// Roster supplies the applicants eligible for a category: those who submitted
// preferences. Applicants are ordered by submission time, then id, which is
// the tie-break the engine preserves for equal merit.
type Roster interface {
	FetchEligibleApplicants(ctx context.Context, category model.Category) ([]model.Applicant, error)
}

// Catalog supplies the resources of a category ordered by id.
type Catalog interface {
	FetchResources(ctx context.Context, category model.Category) ([]model.Resource, error)
}

// PassRecord is everything one pass writes.
type PassRecord struct {
	Report model.AllocationReport
	// Assignments maps every applicant the pass placed (or left unassigned) to
	// its resource id. Confirmed applicants the pass retained are absent.
	Assignments map[string]string
	// Counts maps resource id to its allocated count after the pass.
	Counts map[string]int
}

// Sink persists a pass. Persist is all-or-nothing: it fails with
// model.ErrStaleSnapshot when an applicant in Assignments was confirmed after
// the snapshot was taken, and with a *model.PersistenceError on storage failure.
type Sink interface {
	Persist(ctx context.Context, category model.Category, rec PassRecord) error
}

// Ledger answers and mutates per-applicant confirmation state.
type Ledger interface {
	Confirm(ctx context.Context, category model.Category, applicantID string) error
	Assignment(ctx context.Context, category model.Category, applicantID string) (model.AssignmentStatus, error)
	Allotments(ctx context.Context, category model.Category) ([]model.AssignmentStatus, error)
	LatestPass(ctx context.Context, category model.Category) (model.AllocationReport, error)
}

// Gate reports whether allocation is open for a category.
type Gate interface {
	AllocationOpen(ctx context.Context, category model.Category) (bool, error)
	SetAllocationOpen(ctx context.Context, category model.Category, open bool) error
}

// Admin maintains roster and catalog records.
type Admin interface {
	// UpsertApplicant stores identity, academic record and completed items.
	// Preferences, assignment and confirmation are never changed by it.
	UpsertApplicant(ctx context.Context, category model.Category, a model.Applicant) error
	Applicant(ctx context.Context, category model.Category, applicantID string) (model.Applicant, error)
	// SubmitPreferences stores a preference list once. A second submission
	// fails with model.ErrAlreadySubmitted.
	SubmitPreferences(ctx context.Context, category model.Category, applicantID string, prefs []model.Preference) error
	UpsertResource(ctx context.Context, category model.Category, r model.Resource) error
	// DeleteResource removes a resource no applicant prefers or holds.
	DeleteResource(ctx context.Context, category model.Category, resourceID string) error
	// ReplaceCategory resets a category to the given roster and catalog, the
	// whole-cycle reset used for seeding and a new session.
	ReplaceCategory(ctx context.Context, category model.Category, applicants []model.Applicant, resources []model.Resource) error
}

// Store bundles every interface a backend implements.
type Store interface {
	Roster
	Catalog
	Sink
	Ledger
	Gate
	Admin
	Backend() string
	Close(ctx context.Context) error
}

// observe records latency and failure metrics for one store operation.
func observe(backend, op string, start time.Time, err error) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordStoreError(backend, op)
	}
}

// completedConflict rejects a completed list that names a resource already in
// the preferences a has on record.
func completedConflict(a model.Applicant, completed []string) error {
	if len(a.Preferences) == 0 || len(completed) == 0 {
		return nil
	}
	if issues := allocation.ValidatePreferences(a.ID, a.Preferences, completed, nil); len(issues) > 0 {
		return model.NewValidationError(issues...)
	}
	return nil
}

// importStamp gives the i-th imported applicant a submission time after the
// (i-1)-th, so equal merit keeps file order. Steps are a millisecond, the
// resolution MongoDB stores.
func importStamp(base time.Time, i int) time.Time {
	return base.Add(time.Duration(i) * time.Millisecond)
}
