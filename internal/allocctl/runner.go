package allocctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/seatalloc/internal/adapters/snapshot"
	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/internal/domain/model"
	"github.com/okian/seatalloc/pkg/logger"
)

// Run executes an offline pass over cfg.Input and writes the result to cfg.Output.
// The roster is processed in file order, which is the tie-break between equal
// merit scores.
func Run(ctx context.Context, cfg *Config) (snapshot.Result, error) {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting offline allocation",
		logger.String("input", cfg.Input),
		logger.String("output", cfg.Output),
		logger.String("category", string(cfg.Category)))

	f, err := snapshot.Load(cfg.Input)
	if err != nil {
		return snapshot.Result{}, fmt.Errorf("load snapshot: %w", err)
	}
	snap, err := Select(f, cfg.Category)
	if err != nil {
		return snapshot.Result{}, err
	}
	snap, err = Prepare(snap, cfg.MeritMetric)
	if err != nil {
		return snapshot.Result{}, err
	}

	res, err := allocation.AllocateValidated(snap.Applicants, snap.Resources)
	if err != nil {
		logIssues(ctx, snap.Category, err)
		return snapshot.Result{}, err
	}
	result := snapshot.NewResult(snap.Category, res)

	violations := Verify(snap, result)
	stats.Violations = len(violations)
	if len(violations) > 0 {
		logViolations(ctx, violations)
		return snapshot.Result{}, fmt.Errorf("%w: %d violations", ErrVerifyFailed, len(violations))
	}

	if cfg.Verbose {
		for _, id := range result.Order {
			p := result.Assignments[id]
			logger.Get().Debug(ctx, "placement",
				logger.String("applicant_id", id),
				logger.String("resource_id", p.ResourceID),
				logger.Int("rank", p.Rank),
				logger.Bool("fallback", p.Fallback),
				logger.Bool("retained", p.Retained))
		}
	}

	if err := snapshot.Save(cfg.Output, result); err != nil {
		return snapshot.Result{}, fmt.Errorf("write result: %w", err)
	}

	stats.Applicants = len(snap.Applicants)
	stats.Resources = len(snap.Resources)
	stats.Allocated = res.Report.Allocated
	stats.Unassigned = res.Report.Unassigned
	stats.Fallback = res.Report.Fallback
	stats.Retained = res.Report.Retained
	stats.OverCapacity = res.Report.OverCapacity
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, snap.Category, stats)

	return result, nil
}

// Validate checks every snapshot in cfg.Input, or only cfg.Category when set.
func Validate(ctx context.Context, cfg *Config) error {
	f, err := snapshot.Load(cfg.Input)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	snaps := f.Categories
	if cfg.Category != "" {
		snap, err := Select(f, cfg.Category)
		if err != nil {
			return err
		}
		snaps = []snapshot.Snapshot{snap}
	}

	var errs []error
	for _, snap := range snaps {
		if _, err := allocation.ParseMeritMetric(snap.MeritMetric); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", snap.Category, err))
			continue
		}
		if err := allocation.Validate(snap.Applicants, snap.Resources); err != nil {
			logIssues(ctx, snap.Category, err)
			errs = append(errs, fmt.Errorf("%s: %w", snap.Category, err))
			continue
		}
		logger.Get().Info(ctx, "snapshot is valid",
			logger.String("category", string(snap.Category)),
			logger.Int("applicants", len(snap.Applicants)),
			logger.Int("resources", len(snap.Resources)))
	}
	return errors.Join(errs...)
}

// VerifyFile checks a result file against the snapshot it was computed from.
func VerifyFile(ctx context.Context, cfg *Config, resultPath string) ([]Violation, error) {
	result, err := snapshot.LoadResult(resultPath)
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	f, err := snapshot.Load(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	category := cfg.Category
	if category == "" {
		category = result.Category
	}
	snap, err := Select(f, category)
	if err != nil {
		return nil, err
	}
	snap, err = Prepare(snap, cfg.MeritMetric)
	if err != nil {
		return nil, err
	}

	violations := Verify(snap, result)
	if len(violations) > 0 {
		logViolations(ctx, violations)
		return violations, fmt.Errorf("%w: %d violations", ErrVerifyFailed, len(violations))
	}
	logger.Get().Info(ctx, "result verified",
		logger.String("category", string(snap.Category)),
		logger.Int("applicants", len(result.Order)))
	return nil, nil
}

// Select returns the snapshot for category, or the only snapshot in f when
// category is empty.
func Select(f snapshot.File, category model.Category) (snapshot.Snapshot, error) {
	if category == "" {
		if len(f.Categories) != 1 {
			return snapshot.Snapshot{}, ErrNoCategory
		}
		return f.Categories[0], nil
	}
	c, err := model.ParseCategory(string(category))
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	for _, snap := range f.Categories {
		if snap.Category == c {
			return snap, nil
		}
	}
	return snapshot.Snapshot{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, c)
}

// Prepare returns a copy of snap ready for a pass: merit scores are derived with
// metric (or the snapshot's own) and allocated counts start from zero.
func Prepare(snap snapshot.Snapshot, metric string) (snapshot.Snapshot, error) {
	if metric == "" {
		metric = snap.MeritMetric
	}
	m, err := allocation.ParseMeritMetric(metric)
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	out := snap
	out.MeritMetric = string(m)
	out.Applicants = make([]model.Applicant, len(snap.Applicants))
	for i := range snap.Applicants {
		out.Applicants[i] = snap.Applicants[i].Clone()
	}
	out.Resources = append([]model.Resource(nil), snap.Resources...)
	for i := range out.Resources {
		out.Resources[i].AllocatedCount = 0
	}
	m.ScoreAll(out.Applicants)
	return out, nil
}

func logIssues(ctx context.Context, category model.Category, err error) {
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		return
	}
	for _, is := range verr.Issues {
		logger.Get().Warn(ctx, "validation issue",
			logger.String("category", string(category)),
			logger.String("issue", is.String()))
	}
}

func logViolations(ctx context.Context, violations []Violation) {
	for _, v := range violations {
		logger.Get().Error(ctx, "invariant violated",
			logger.String("rule", v.Rule),
			logger.String("applicant_id", v.ApplicantID),
			logger.String("resource_id", v.ResourceID),
			logger.String("detail", v.Detail))
	}
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, category model.Category, stats *Stats) {
	logger.Get().Info(ctx, "final statistics",
		logger.String("category", string(category)),
		logger.Int("applicants", stats.Applicants),
		logger.Int("resources", stats.Resources),
		logger.Int("allocated", stats.Allocated),
		logger.Int("unassigned", stats.Unassigned),
		logger.Int("fallback", stats.Fallback),
		logger.Int("retained", stats.Retained),
		logger.Int("overCapacity", stats.OverCapacity),
		logger.String("duration", stats.Duration.String()))
}
