package service

import (
	"context"

	"github.com/okian/seatalloc/internal/adapters/snapshot"
	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/internal/domain/dedupe"
	"github.com/okian/seatalloc/internal/domain/model"
	"github.com/okian/seatalloc/pkg/logger"
	"github.com/okian/seatalloc/pkg/metrics"
)

// ListResources returns the catalog of category ordered by id.
func (s *Service) ListResources(ctx context.Context, category model.Category) ([]model.Resource, error) {
	store, err := s.running()
	if err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, invalidCategory(category)
	}
	return store.FetchResources(ctx, category)
}

// UpsertResource creates or updates a catalog entry. Its allocated count is
// owned by allocation passes and is left unchanged.
func (s *Service) UpsertResource(ctx context.Context, category model.Category, r model.Resource) error {
	store, err := s.running()
	if err != nil {
		return err
	}
	if !category.Valid() {
		return invalidCategory(category)
	}
	return store.UpsertResource(ctx, category, r)
}

// DeleteResource removes a resource nobody prefers or holds.
func (s *Service) DeleteResource(ctx context.Context, category model.Category, resourceID string) error {
	store, err := s.running()
	if err != nil {
		return err
	}
	if !category.Valid() {
		return invalidCategory(category)
	}
	return store.DeleteResource(ctx, category, resourceID)
}

// SetAllocationOpen locks or unlocks allocation for category.
func (s *Service) SetAllocationOpen(ctx context.Context, category model.Category, open bool) error {
	store, err := s.running()
	if err != nil {
		return err
	}
	if !category.Valid() {
		return invalidCategory(category)
	}
	if err := store.SetAllocationOpen(ctx, category, open); err != nil {
		return err
	}
	metrics.UpdateAllocationClosed(string(category), !open)
	s.logger.Info(ctx, "allocation gate changed",
		logger.String("category", string(category)),
		logger.Bool("open", open),
	)
	return nil
}

// AllocationOpen reports whether passes may run for category.
func (s *Service) AllocationOpen(ctx context.Context, category model.Category) (bool, error) {
	store, err := s.running()
	if err != nil {
		return false, err
	}
	if !category.Valid() {
		return false, invalidCategory(category)
	}
	return store.AllocationOpen(ctx, category)
}

// ImportSnapshot replaces a category's roster and catalog, starting a new
// cycle. The snapshot is validated first and the submission guard is rebuilt
// for the category.
func (s *Service) ImportSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	store, err := s.running()
	if err != nil {
		return err
	}
	if !snap.Category.Valid() {
		return invalidCategory(snap.Category)
	}
	if err := allocation.Validate(snap.Applicants, snap.Resources); err != nil {
		return err
	}

	lock := s.passLock(snap.Category)
	lock.Lock()
	defer lock.Unlock()

	previous, err := store.FetchEligibleApplicants(ctx, snap.Category)
	if err != nil {
		return err
	}
	if err := store.ReplaceCategory(ctx, snap.Category, snap.Applicants, snap.Resources); err != nil {
		return err
	}

	for i := range previous {
		s.deduper.Unrecord(ctx, dedupe.Key(snap.Category, previous[i].ID))
	}
	for i := range snap.Applicants {
		if len(snap.Applicants[i].Preferences) > 0 {
			s.deduper.SeenAndRecord(ctx, dedupe.Key(snap.Category, snap.Applicants[i].ID))
		}
	}

	s.logger.Info(ctx, "category imported",
		logger.String("category", string(snap.Category)),
		logger.Int("applicants", len(snap.Applicants)),
		logger.Int("resources", len(snap.Resources)),
	)
	return nil
}
