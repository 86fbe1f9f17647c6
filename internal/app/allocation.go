package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/seatalloc/internal/adapters/repository"
	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/internal/domain/model"
	"github.com/okian/seatalloc/pkg/logger"
	"github.com/okian/seatalloc/pkg/metrics"
	"github.com/okian/seatalloc/pkg/tracing"
)

// RunAllocation runs one allocation pass for category and persists it.
//
// Only one pass per category runs at a time. A pass whose snapshot went stale
// because an applicant confirmed meanwhile is recomputed from a fresh snapshot,
// at most maxRetries times.
func (s *Service) RunAllocation(ctx context.Context, category model.Category) (model.AllocationReport, error) {
	if _, err := s.running(); err != nil {
		return model.AllocationReport{}, err
	}
	return s.runAllocation(ctx, category, s.newID())
}

// RunQueued executes a pass taken off the pass queue and records its outcome.
func (s *Service) RunQueued(ctx context.Context, req model.PassRequest) error {
	s.updatePass(req.ID, func(st *model.PassState) { st.Status = model.PassRunning })

	report, err := s.runAllocation(ctx, req.Category, req.ID)

	s.updatePass(req.ID, func(st *model.PassState) {
		if err != nil {
			st.Status = model.PassFailed
			st.Error = err.Error()
			return
		}
		st.Status = model.PassSucceeded
		st.Report = &report
	})
	return err
}

// EnqueuePass schedules a pass for the worker pool and returns its queued state.
func (s *Service) EnqueuePass(ctx context.Context, category model.Category) (model.PassState, error) {
	if _, err := s.running(); err != nil {
		return model.PassState{}, err
	}
	if !category.Valid() {
		return model.PassState{}, invalidCategory(category)
	}

	req := model.PassRequest{ID: s.newID(), Category: category, RequestedAt: s.now().UTC()}
	st := model.PassState{ID: req.ID, Category: category, Status: model.PassQueued}
	s.trackPass(st)

	if err := s.passQueue.Enqueue(ctx, req); err != nil {
		s.forgetPass(req.ID)
		return model.PassState{}, fmt.Errorf("enqueue pass for %s: %w", category, err)
	}

	s.logger.Info(ctx, "pass queued",
		logger.String("pass_id", req.ID),
		logger.String("category", string(category)),
	)
	return st, nil
}

// PassStatus reports the state of a pass requested through EnqueuePass.
func (s *Service) PassStatus(_ context.Context, passID string) (model.PassState, error) {
	s.passMu.RLock()
	defer s.passMu.RUnlock()

	st, ok := s.passes[passID]
	if !ok {
		return model.PassState{}, &model.NotFoundError{Kind: "pass", ID: passID}
	}
	out := *st
	if st.Report != nil {
		report := *st.Report
		out.Report = &report
	}
	return out, nil
}

// LatestPass returns the report of the last persisted pass for category.
func (s *Service) LatestPass(ctx context.Context, category model.Category) (model.AllocationReport, error) {
	store, err := s.running()
	if err != nil {
		return model.AllocationReport{}, err
	}
	if !category.Valid() {
		return model.AllocationReport{}, invalidCategory(category)
	}
	return store.LatestPass(ctx, category)
}

func (s *Service) runAllocation(ctx context.Context, category model.Category, passID string) (report model.AllocationReport, err error) {
	if !category.Valid() {
		return model.AllocationReport{}, invalidCategory(category)
	}

	lock := s.passLock(category)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := tracing.StartSpan(ctx, "allocation.pass")
	span.WithAttributes(map[string]string{"category": string(category), "pass_id": passID})
	defer func() { tracing.EndSpan(span, err) }()

	log := s.logger.With(logger.String("pass_id", passID), logger.String("category", string(category)))
	start := s.now().UTC()

	open, err := s.store.AllocationOpen(ctx, category)
	if err != nil {
		return model.AllocationReport{}, err
	}
	if !open {
		metrics.RecordPass(string(category), "closed", 0)
		return model.AllocationReport{}, fmt.Errorf("%s: %w", category, model.ErrAllocationClosed)
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.AllocationReport{}, err
		}

		report, err = s.pass(ctx, category, passID, attempt, start)
		if err == nil {
			break
		}
		if errors.Is(err, model.ErrStaleSnapshot) && attempt <= s.maxRetries {
			metrics.RecordPassRetry()
			span.AddEvent("stale_snapshot")
			log.Warn(ctx, "snapshot went stale, recomputing", logger.Int("attempt", attempt))
			continue
		}
		metrics.RecordPass(string(category), "failed", s.elapsedMs(start))
		metrics.RecordErrorByComponent("service", errorKind(err))
		log.Error(ctx, "allocation pass failed", logger.Int("attempt", attempt), logger.Error(err))
		return model.AllocationReport{}, err
	}

	span.SetInt("allocated", report.AllocatedCount).SetInt("unassigned", report.UnassignedCount)
	metrics.RecordPass(string(category), "succeeded", s.elapsedMs(start))
	metrics.RecordPlacements(string(category), report.AllocatedCount, report.FallbackCount, report.RetainedCount, report.UnassignedCount)
	metrics.UpdateOverCapacity(string(category), report.OverCapacity)

	log.Info(ctx, "allocation pass persisted",
		logger.Int("allocated", report.AllocatedCount),
		logger.Int("unassigned", report.UnassignedCount),
		logger.Int("fallback", report.FallbackCount),
		logger.Int("retained", report.RetainedCount),
		logger.Int("over_capacity", report.OverCapacity),
		logger.Int("attempts", report.Attempts),
	)
	if report.OverCapacity > 0 {
		log.Warn(ctx, "fallback grants exceeded capacity", logger.Int("resources", report.OverCapacity))
	}
	return report, nil
}

// pass takes one snapshot, allocates it and persists the outcome.
func (s *Service) pass(ctx context.Context, category model.Category, passID string, attempt int, start time.Time) (model.AllocationReport, error) {
	roster, err := s.store.FetchEligibleApplicants(ctx, category)
	if err != nil {
		return model.AllocationReport{}, err
	}
	resources, err := s.store.FetchResources(ctx, category)
	if err != nil {
		return model.AllocationReport{}, err
	}
	metrics.UpdateRosterSize(string(category), len(roster))

	s.metric.ScoreAll(roster)
	// Counts are recomputed from scratch; confirmed seats are re-counted by the engine.
	for i := range resources {
		resources[i].AllocatedCount = 0
	}

	res, err := allocation.AllocateValidated(roster, resources)
	if err != nil {
		return model.AllocationReport{}, err
	}

	report := model.AllocationReport{
		PassID:          passID,
		Category:        category,
		AllocatedCount:  res.Report.Allocated,
		UnassignedCount: res.Report.Unassigned,
		FallbackCount:   res.Report.Fallback,
		RetainedCount:   res.Report.Retained,
		OverCapacity:    res.Report.OverCapacity,
		Attempts:        attempt,
		StartedAt:       start,
		FinishedAt:      s.now().UTC(),
	}

	pctx, span := tracing.StartSpan(ctx, "allocation.persist")
	err = s.store.Persist(pctx, category, passRecord(report, res))
	tracing.EndSpan(span, err)
	if err != nil {
		return model.AllocationReport{}, err
	}
	return report, nil
}

// passRecord converts an engine result into what the sink writes. Retained
// placements are left out so the sink never rewrites a confirmed applicant.
func passRecord(report model.AllocationReport, res allocation.Result) repository.PassRecord {
	rec := repository.PassRecord{
		Report:      report,
		Assignments: make(map[string]string, len(res.Assignments)),
		Counts:      make(map[string]int, len(res.Resources)),
	}
	for id, p := range res.Assignments {
		if p.Retained {
			continue
		}
		rec.Assignments[id] = p.ResourceID
	}
	for _, r := range res.Resources {
		rec.Counts[r.ID] = r.AllocatedCount
	}
	return rec
}

func (s *Service) passLock(category model.Category) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.passLocks[category]
	if !ok {
		l = &sync.Mutex{}
		s.passLocks[category] = l
	}
	return l
}

// trackPass records a queued pass, forgetting the oldest finished ones once
// maxTrackedPasses is exceeded.
func (s *Service) trackPass(st model.PassState) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	s.passes[st.ID] = &st
	s.passOrder = append(s.passOrder, st.ID)

	for len(s.passOrder) > maxTrackedPasses {
		oldest := s.passOrder[0]
		if p, ok := s.passes[oldest]; ok && (p.Status == model.PassQueued || p.Status == model.PassRunning) {
			break
		}
		delete(s.passes, oldest)
		s.passOrder = s.passOrder[1:]
	}
}

func (s *Service) forgetPass(id string) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	delete(s.passes, id)
	for i, v := range s.passOrder {
		if v == id {
			s.passOrder = append(s.passOrder[:i], s.passOrder[i+1:]...)
			break
		}
	}
}

func (s *Service) updatePass(id string, fn func(*model.PassState)) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	if st, ok := s.passes[id]; ok {
		fn(st)
	}
}

func invalidCategory(c model.Category) error {
	return model.NewValidationError(model.Issue{Field: "category", Reason: "unknown category \"" + string(c) + "\""})
}

// errorKind names an error for the per-component error metric.
func errorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrStaleSnapshot):
		return "stale_snapshot"
	case errors.Is(err, model.ErrPersistence):
		return "persistence"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

func (s *Service) elapsedMs(t time.Time) float64 {
	return float64(s.now().Sub(t).Microseconds()) / 1000
}
