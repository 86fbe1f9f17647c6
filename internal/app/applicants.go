package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/internal/domain/dedupe"
	"github.com/okian/seatalloc/internal/domain/model"
	"github.com/okian/seatalloc/pkg/logger"
	"github.com/okian/seatalloc/pkg/metrics"
	"github.com/okian/seatalloc/pkg/tracing"
)

// Confirm moves an applicant from allocated to confirmed. It returns only after
// the store has recorded the confirmation.
func (s *Service) Confirm(ctx context.Context, category model.Category, applicantID string) (err error) {
	store, err := s.running()
	if err != nil {
		return err
	}
	if !category.Valid() {
		return invalidCategory(category)
	}

	ctx, span := tracing.StartSpan(ctx, "allocation.confirm")
	span.WithAttributes(map[string]string{"category": string(category), "applicant_id": applicantID})
	defer func() { tracing.EndSpan(span, err) }()

	err = store.Confirm(ctx, category, applicantID)
	metrics.RecordConfirmation(string(category), confirmResult(err))
	if err != nil {
		s.logger.Debug(ctx, "confirmation refused",
			logger.String("category", string(category)),
			logger.String("applicant_id", applicantID),
			logger.Error(err),
		)
		return err
	}

	s.logger.Info(ctx, "allocation confirmed",
		logger.String("category", string(category)),
		logger.String("applicant_id", applicantID),
	)
	return nil
}

// GetAssignment returns an applicant's current resource, confirmation flag and state.
func (s *Service) GetAssignment(ctx context.Context, category model.Category, applicantID string) (model.AssignmentStatus, error) {
	store, err := s.running()
	if err != nil {
		return model.AssignmentStatus{}, err
	}
	if !category.Valid() {
		return model.AssignmentStatus{}, invalidCategory(category)
	}
	return store.Assignment(ctx, category, applicantID)
}

// Allotments lists the assignment status of every applicant in category.
func (s *Service) Allotments(ctx context.Context, category model.Category) ([]model.AssignmentStatus, error) {
	store, err := s.running()
	if err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, invalidCategory(category)
	}
	return store.Allotments(ctx, category)
}

// RegisterApplicant creates or updates an applicant's profile and academic record.
func (s *Service) RegisterApplicant(ctx context.Context, category model.Category, a model.Applicant) error {
	store, err := s.running()
	if err != nil {
		return err
	}
	if !category.Valid() {
		return invalidCategory(category)
	}
	return store.UpsertApplicant(ctx, category, a)
}

// Applicant returns one applicant record.
func (s *Service) Applicant(ctx context.Context, category model.Category, applicantID string) (model.Applicant, error) {
	store, err := s.running()
	if err != nil {
		return model.Applicant{}, err
	}
	if !category.Valid() {
		return model.Applicant{}, invalidCategory(category)
	}
	return store.Applicant(ctx, category, applicantID)
}

// SubmitPreferences stores an applicant's ranked list. Each applicant submits
// once per category; the list must name catalog resources the applicant has
// not completed, with ranks 1..n.
func (s *Service) SubmitPreferences(ctx context.Context, category model.Category, applicantID string, prefs []model.Preference) error {
	if _, err := s.running(); err != nil {
		return err
	}
	if !category.Valid() {
		return invalidCategory(category)
	}

	key := dedupe.Key(category, applicantID)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordSubmission(string(category), "duplicate")
		return fmt.Errorf("applicant %q: %w", applicantID, model.ErrAlreadySubmitted)
	}

	if err := s.submit(ctx, category, applicantID, prefs); err != nil {
		if !errors.Is(err, model.ErrAlreadySubmitted) {
			s.deduper.Unrecord(ctx, key)
		}
		metrics.RecordSubmission(string(category), submissionResult(err))
		return err
	}

	metrics.RecordSubmission(string(category), "accepted")
	s.logger.Info(ctx, "preferences submitted",
		logger.String("category", string(category)),
		logger.String("applicant_id", applicantID),
		logger.Int("preferences", len(prefs)),
	)
	return nil
}

func (s *Service) submit(ctx context.Context, category model.Category, applicantID string, prefs []model.Preference) error {
	if len(prefs) == 0 {
		return model.NewValidationError(model.Issue{ApplicantID: applicantID, Field: "preferences", Reason: "must not be empty"})
	}

	a, err := s.store.Applicant(ctx, category, applicantID)
	if err != nil {
		return err
	}
	resources, err := s.store.FetchResources(ctx, category)
	if err != nil {
		return err
	}
	catalog := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		catalog[r.ID] = struct{}{}
	}
	if issues := allocation.ValidatePreferences(applicantID, prefs, a.CompletedResourceIDs, catalog); len(issues) > 0 {
		return model.NewValidationError(issues...)
	}

	return s.store.SubmitPreferences(ctx, category, applicantID, prefs)
}

func confirmResult(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, model.ErrAlreadyConfirmed):
		return "already_confirmed"
	case errors.Is(err, model.ErrNotAllocated):
		return "not_allocated"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func submissionResult(err error) string {
	switch {
	case errors.Is(err, model.ErrAlreadySubmitted):
		return "duplicate"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
