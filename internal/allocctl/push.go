package allocctl

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/seatalloc/internal/adapters/snapshot"
	"github.com/okian/seatalloc/internal/domain/model"
	"github.com/okian/seatalloc/pkg/logger"
)

// Push loads a snapshot into a running server and triggers a pass on it.
func Push(ctx context.Context, cfg *Config) (model.AllocationReport, error) {
	stats := &Stats{StartTime: time.Now()}

	f, err := snapshot.Load(cfg.Input)
	if err != nil {
		return model.AllocationReport{}, fmt.Errorf("load snapshot: %w", err)
	}
	snap, err := Select(f, cfg.Category)
	if err != nil {
		return model.AllocationReport{}, err
	}

	client := NewClient(cfg.BaseURL, cfg.Timeout)

	logger.Get().Info(ctx, "checking service health", logger.String("baseURL", cfg.BaseURL))
	if err := client.Health(ctx); err != nil {
		return model.AllocationReport{}, fmt.Errorf("service health check failed: %w", err)
	}

	if err := client.ImportSnapshot(ctx, snap.Category, snap.Resources, snap.Applicants); err != nil {
		return model.AllocationReport{}, fmt.Errorf("import snapshot: %w", err)
	}
	logger.Get().Info(ctx, "snapshot imported",
		logger.String("category", string(snap.Category)),
		logger.Int("applicants", len(snap.Applicants)),
		logger.Int("resources", len(snap.Resources)))

	var report model.AllocationReport
	if cfg.Async {
		st, err := client.EnqueuePass(ctx, snap.Category)
		if err != nil {
			return model.AllocationReport{}, fmt.Errorf("enqueue pass: %w", err)
		}
		logger.Get().Info(ctx, "pass queued", logger.String("pass_id", st.ID))
		report, err = client.WaitPass(ctx, snap.Category, st.ID)
		if err != nil {
			return model.AllocationReport{}, err
		}
	} else {
		report, err = client.RunAllocation(ctx, snap.Category)
		if err != nil {
			return model.AllocationReport{}, fmt.Errorf("run allocation: %w", err)
		}
	}

	if cfg.Verbose {
		allotments, err := client.Allotments(ctx, snap.Category)
		if err != nil {
			logger.Get().Warn(ctx, "failed to list allotments", logger.Error(err))
		}
		for _, st := range allotments {
			logger.Get().Debug(ctx, "allotment",
				logger.String("applicant_id", st.ApplicantID),
				logger.String("resource_id", st.ResourceID),
				logger.String("state", string(st.State)))
		}
	}

	stats.Applicants = len(snap.Applicants)
	stats.Resources = len(snap.Resources)
	stats.Allocated = report.AllocatedCount
	stats.Unassigned = report.UnassignedCount
	stats.Fallback = report.FallbackCount
	stats.Retained = report.RetainedCount
	stats.OverCapacity = report.OverCapacity
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, snap.Category, stats)

	return report, nil
}
