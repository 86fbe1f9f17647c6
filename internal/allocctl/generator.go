package allocctl

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/seatalloc/internal/adapters/snapshot"
	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/internal/domain/model"
	"github.com/okian/seatalloc/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	performerBands     = 8
	cgpaPerPercent     = 9.5
	maxCGPA            = 10.0
)

// Percentage bands applicants are drawn from, most common first.
var performerRanges = [performerBands][2]float64{
	{55, 20}, // average
	{75, 15}, // high
	{30, 25}, // low
	{90, 10}, // elite
	{10, 20}, // very low
	{65, 15}, // mid-high
	{45, 15}, // mid-low
	{10, 90}, // anywhere
}

// Eligibility thresholds a generated resource may carry.
var thresholds = []float64{0, 0, 40, 50, 60, 75}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// getRandomInt returns a random int in [0, n).
func getRandomInt(n int) int {
	if n <= 1 {
		return 0
	}
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// Generate builds a synthetic snapshot. Total capacity roughly matches the
// roster so that both contested and fallback placements occur.
func Generate(ctx context.Context, cfg *GenerateConfig) (snapshot.File, error) {
	category := cfg.Category
	if category == "" {
		category = model.CategoryElective
	}
	if cfg.Resources < 1 || cfg.Applicants < 0 {
		return snapshot.File{}, fmt.Errorf("need at least one resource and a non-negative roster, got %d resources and %d applicants", cfg.Resources, cfg.Applicants)
	}
	prefs := minInt(maxInt(cfg.Preferences, 1), cfg.Resources)

	logger.Get().Info(ctx, "generating snapshot",
		logger.String("category", string(category)),
		logger.Int("applicants", cfg.Applicants),
		logger.Int("resources", cfg.Resources),
		logger.Int("preferences", prefs))

	resources := generateResources(cfg.Resources, cfg.Applicants)
	base := time.Now().UTC().Truncate(time.Second)
	applicants := make([]model.Applicant, cfg.Applicants)
	for i := range applicants {
		if err := ctx.Err(); err != nil {
			return snapshot.File{}, fmt.Errorf("context cancelled during generation: %w", err)
		}
		applicants[i] = generateApplicant(i, resources, prefs, base)
	}

	// Confirmed applicants keep their first choice.
	for i := 0; i < minInt(cfg.Confirmed, len(applicants)); i++ {
		applicants[i].AssignedResourceID = applicants[i].Preferences[0].ResourceID
		applicants[i].Confirmed = true
	}

	f := snapshot.File{Categories: []snapshot.Snapshot{{
		Category:    category,
		MeritMetric: string(allocation.MeritPercentage),
		Resources:   resources,
		Applicants:  applicants,
	}}}

	if cfg.Output != "" {
		if err := snapshot.Save(cfg.Output, f); err != nil {
			return snapshot.File{}, fmt.Errorf("write snapshot: %w", err)
		}
	}
	logger.Get().Info(ctx, "generated snapshot successfully", logger.Int("applicants", len(applicants)))
	return f, nil
}

func generateResources(count, applicants int) []model.Resource {
	perResource := maxInt(int(math.Ceil(float64(applicants)/float64(count))), 1)
	out := make([]model.Resource, count)
	for i := range out {
		id := "R" + leftPad(strconv.Itoa(i+1), 3)
		out[i] = model.Resource{
			ID:   id,
			Name: "Course " + id,
			// Between half and one and a half of an even share.
			Capacity:             maxInt(perResource/2+getRandomInt(perResource+1), 1),
			EligibilityThreshold: thresholds[getRandomInt(len(thresholds))],
		}
	}
	return out
}

func generateApplicant(index int, resources []model.Resource, prefs int, base time.Time) model.Applicant {
	band := performerRanges[getRandomInt(performerBands)]
	pct := math.Round((band[0]+getRandomFloat()*band[1])*100) / 100
	cgpa := math.Min(math.Round(pct/cgpaPerPercent*100)/100, maxCGPA)

	// Partial Fisher-Yates over the catalog for distinct choices.
	order := make([]int, len(resources))
	for i := range order {
		order[i] = i
	}
	list := make([]model.Preference, prefs)
	for i := 0; i < prefs; i++ {
		j := i + getRandomInt(len(order)-i)
		order[i], order[j] = order[j], order[i]
		list[i] = model.Preference{Rank: i + 1, ResourceID: resources[order[i]].ID}
	}

	return model.Applicant{
		ID:          uuid.New().String(),
		Name:        "Applicant " + strconv.Itoa(index+1),
		Academic:    model.AcademicRecord{Percentage: pct, CGPA: cgpa},
		Preferences: list,
		SubmittedAt: base.Add(time.Duration(index) * time.Second),
	}
}

func leftPad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
