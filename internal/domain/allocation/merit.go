package allocation

import (
	"strings"

	"github.com/okian/seatalloc/internal/domain/model"
)

// MeritMetric selects which academic metric becomes an applicant's merit score.
type MeritMetric string

// Supported merit metrics.
const (
	MeritPercentage MeritMetric = "percentage"
	MeritCGPA       MeritMetric = "cgpa"
)

// ParseMeritMetric accepts the config spelling of a metric.
func ParseMeritMetric(s string) (MeritMetric, error) {
	switch MeritMetric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MeritPercentage:
		return MeritPercentage, nil
	case MeritCGPA:
		return MeritCGPA, nil
	}
	return "", model.NewValidationError(model.Issue{Field: "merit_metric", Reason: "unsupported metric \"" + s + "\""})
}

// Reduce turns an academic record into the single comparable scalar the engine
// orders by. Eligibility thresholds are expressed in the same unit.
func (m MeritMetric) Reduce(rec model.AcademicRecord) float64 {
	if m == MeritCGPA {
		return rec.CGPA
	}
	return rec.Percentage
}

// TieBreak is the secondary key for equal merit: CGPA when ordering by
// percentage and percentage when ordering by CGPA.
func (m MeritMetric) TieBreak(rec model.AcademicRecord) float64 {
	if m == MeritCGPA {
		return rec.Percentage
	}
	return rec.CGPA
}

// ScoreAll fills MeritScore and TieBreakScore on every applicant from its
// academic record. Applicants without an academic record keep the score they
// carry.
func (m MeritMetric) ScoreAll(applicants []model.Applicant) {
	for i := range applicants {
		if applicants[i].Academic == (model.AcademicRecord{}) {
			continue
		}
		applicants[i].MeritScore = m.Reduce(applicants[i].Academic)
		applicants[i].TieBreakScore = m.TieBreak(applicants[i].Academic)
	}
}
