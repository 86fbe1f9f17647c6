package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/seatalloc/internal/domain/confirmation"
	"github.com/okian/seatalloc/internal/domain/model"
)

const backendMemory = "memory"

type categoryState struct {
	applicants map[string]*model.Applicant
	resources  map[string]*model.Resource
	closed     bool
	latest     *model.AllocationReport
}

func newCategoryState() *categoryState {
	return &categoryState{
		applicants: make(map[string]*model.Applicant),
		resources:  make(map[string]*model.Resource),
	}
}

// MemoryStore keeps every category in process memory behind one lock, which
// makes a pass persist and a confirmation mutually atomic.
type MemoryStore struct {
	mu         sync.RWMutex
	categories map[model.Category]*categoryState
	now        func() time.Time
	closed     bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		categories: make(map[model.Category]*categoryState),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend names the store in metrics and logs.
func (s *MemoryStore) Backend() string { return backendMemory }

// Close marks the store closed; later writes fail with ErrStoreClosed.
func (s *MemoryStore) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// state returns the category state, creating it when create is set.
// Must be called with s.mu held.
func (s *MemoryStore) state(category model.Category, create bool) *categoryState {
	st, ok := s.categories[category]
	if !ok && create {
		st = newCategoryState()
		s.categories[category] = st
	}
	return st
}

func (s *MemoryStore) FetchEligibleApplicants(_ context.Context, category model.Category) ([]model.Applicant, error) {
	defer observe(backendMemory, "fetch_applicants", time.Now(), nil)

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state(category, false)
	if st == nil {
		return nil, nil
	}
	var out []model.Applicant
	for _, a := range st.applicants {
		if len(a.Preferences) == 0 && !a.Confirmed {
			continue
		}
		out = append(out, a.Clone())
	}
	sortRoster(out)
	return out, nil
}

func (s *MemoryStore) FetchResources(_ context.Context, category model.Category) ([]model.Resource, error) {
	defer observe(backendMemory, "fetch_resources", time.Now(), nil)

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state(category, false)
	if st == nil {
		return nil, nil
	}
	out := make([]model.Resource, 0, len(st.resources))
	for _, r := range st.resources {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Persist(_ context.Context, category model.Category, rec PassRecord) (err error) {
	defer func(start time.Time) { observe(backendMemory, "persist_pass", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &model.PersistenceError{Op: "persist pass", Err: ErrStoreClosed}
	}
	st := s.state(category, true)

	for id := range rec.Assignments {
		if a, ok := st.applicants[id]; ok && a.Confirmed {
			return fmt.Errorf("applicant %q confirmed during pass %s: %w", id, rec.Report.PassID, model.ErrStaleSnapshot)
		}
	}

	for id, resourceID := range rec.Assignments {
		if a, ok := st.applicants[id]; ok {
			a.AssignedResourceID = resourceID
		}
	}
	for id, n := range rec.Counts {
		if r, ok := st.resources[id]; ok {
			r.AllocatedCount = n
		}
	}
	report := rec.Report
	st.latest = &report
	return nil
}

func (s *MemoryStore) Confirm(_ context.Context, category model.Category, applicantID string) (err error) {
	defer func(start time.Time) { observe(backendMemory, "confirm", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &model.PersistenceError{Op: "confirm", Err: ErrStoreClosed}
	}
	a, err := s.applicant(category, applicantID)
	if err != nil {
		return err
	}
	return confirmation.Confirm(a)
}

func (s *MemoryStore) Assignment(_ context.Context, category model.Category, applicantID string) (model.AssignmentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := s.applicant(category, applicantID)
	if err != nil {
		return model.AssignmentStatus{}, err
	}
	return confirmation.Status(a), nil
}

func (s *MemoryStore) Allotments(_ context.Context, category model.Category) ([]model.AssignmentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state(category, false)
	if st == nil {
		return nil, nil
	}
	out := make([]model.AssignmentStatus, 0, len(st.applicants))
	for _, a := range st.applicants {
		out = append(out, confirmation.Status(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApplicantID < out[j].ApplicantID })
	return out, nil
}

func (s *MemoryStore) LatestPass(_ context.Context, category model.Category) (model.AllocationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state(category, false)
	if st == nil || st.latest == nil {
		return model.AllocationReport{}, &model.NotFoundError{Kind: "pass", ID: string(category)}
	}
	return *st.latest, nil
}

func (s *MemoryStore) AllocationOpen(_ context.Context, category model.Category) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state(category, false)
	return st == nil || !st.closed, nil
}

func (s *MemoryStore) SetAllocationOpen(_ context.Context, category model.Category, open bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state(category, true).closed = !open
	return nil
}

func (s *MemoryStore) UpsertApplicant(_ context.Context, category model.Category, in model.Applicant) (err error) {
	defer func(start time.Time) { observe(backendMemory, "upsert_applicant", start, err) }(time.Now())

	if in.ID == "" {
		return model.NewValidationError(model.Issue{Field: "id", Reason: "empty applicant id"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(category, true)
	a, ok := st.applicants[in.ID]
	if ok {
		if err := completedConflict(*a, in.CompletedResourceIDs); err != nil {
			return err
		}
	} else {
		a = &model.Applicant{ID: in.ID}
		st.applicants[in.ID] = a
	}
	a.Name = in.Name
	a.Academic = in.Academic
	a.MeritScore = in.MeritScore
	a.CompletedResourceIDs = append([]string(nil), in.CompletedResourceIDs...)
	return nil
}

func (s *MemoryStore) Applicant(_ context.Context, category model.Category, applicantID string) (model.Applicant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := s.applicant(category, applicantID)
	if err != nil {
		return model.Applicant{}, err
	}
	return a.Clone(), nil
}

func (s *MemoryStore) SubmitPreferences(_ context.Context, category model.Category, applicantID string, prefs []model.Preference) (err error) {
	defer func(start time.Time) { observe(backendMemory, "submit_preferences", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.applicant(category, applicantID)
	if err != nil {
		return err
	}
	if len(a.Preferences) > 0 {
		return fmt.Errorf("applicant %q: %w", applicantID, model.ErrAlreadySubmitted)
	}
	a.Preferences = append([]model.Preference(nil), prefs...)
	a.SubmittedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) UpsertResource(_ context.Context, category model.Category, in model.Resource) (err error) {
	defer func(start time.Time) { observe(backendMemory, "upsert_resource", start, err) }(time.Now())

	if err := validateResource(in); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(category, true)
	r, ok := st.resources[in.ID]
	if !ok {
		r = &model.Resource{ID: in.ID}
		st.resources[in.ID] = r
	}
	r.Name = in.Name
	r.Capacity = in.Capacity
	r.EligibilityThreshold = in.EligibilityThreshold
	return nil
}

func (s *MemoryStore) DeleteResource(_ context.Context, category model.Category, resourceID string) (err error) {
	defer func(start time.Time) { observe(backendMemory, "delete_resource", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(category, false)
	if st == nil {
		return &model.NotFoundError{Kind: "resource", ID: resourceID}
	}
	if _, ok := st.resources[resourceID]; !ok {
		return &model.NotFoundError{Kind: "resource", ID: resourceID}
	}
	for _, a := range st.applicants {
		if references(a, resourceID) {
			return fmt.Errorf("resource %q: %w", resourceID, ErrResourceInUse)
		}
	}
	delete(st.resources, resourceID)
	return nil
}

func (s *MemoryStore) ReplaceCategory(_ context.Context, category model.Category, applicants []model.Applicant, resources []model.Resource) (err error) {
	defer func(start time.Time) { observe(backendMemory, "replace_category", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &model.PersistenceError{Op: "replace category", Err: ErrStoreClosed}
	}
	st := newCategoryState()
	if old, ok := s.categories[category]; ok {
		st.closed = old.closed
	}
	now := s.now().UTC()
	for i := range applicants {
		a := applicants[i].Clone()
		if len(a.Preferences) > 0 && a.SubmittedAt.IsZero() {
			a.SubmittedAt = importStamp(now, i)
		}
		st.applicants[a.ID] = &a
	}
	for i := range resources {
		r := resources[i]
		st.resources[r.ID] = &r
	}
	s.categories[category] = st
	return nil
}

// applicant looks up a live record. Must be called with s.mu held.
func (s *MemoryStore) applicant(category model.Category, id string) (*model.Applicant, error) {
	st := s.state(category, false)
	if st == nil {
		return nil, &model.NotFoundError{Kind: "applicant", ID: id}
	}
	a, ok := st.applicants[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "applicant", ID: id}
	}
	return a, nil
}

func sortRoster(applicants []model.Applicant) {
	sort.Slice(applicants, func(i, j int) bool {
		if !applicants[i].SubmittedAt.Equal(applicants[j].SubmittedAt) {
			return applicants[i].SubmittedAt.Before(applicants[j].SubmittedAt)
		}
		return applicants[i].ID < applicants[j].ID
	})
}

func references(a *model.Applicant, resourceID string) bool {
	if a.AssignedResourceID == resourceID {
		return true
	}
	for _, p := range a.Preferences {
		if p.ResourceID == resourceID {
			return true
		}
	}
	return false
}

func validateResource(r model.Resource) error {
	var issues []model.Issue
	if r.ID == "" {
		issues = append(issues, model.Issue{Field: "id", Reason: "empty resource id"})
	}
	if r.Capacity < 0 {
		issues = append(issues, model.Issue{ResourceID: r.ID, Field: "capacity", Reason: "must not be negative"})
	}
	if len(issues) > 0 {
		return model.NewValidationError(issues...)
	}
	return nil
}
