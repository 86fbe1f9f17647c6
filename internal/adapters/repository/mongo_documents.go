package repository

import (
	"time"

	"github.com/okian/seatalloc/internal/domain/model"
)

// Collection names.
const (
	collApplicants = "applicants"
	collResources  = "resources"
	collPasses     = "passes"
	collGates      = "gates"
)

// docKey builds the _id of a per-category record.
func docKey(category model.Category, id string) string {
	return string(category) + ":" + id
}

type preferenceDoc struct {
	Rank       int    `bson:"rank"`
	ResourceID string `bson:"resource_id"`
}

type applicantDoc struct {
	Key                string          `bson:"_id"`
	Category           string          `bson:"category"`
	ApplicantID        string          `bson:"applicant_id"`
	Name               string          `bson:"name,omitempty"`
	MeritScore         float64         `bson:"merit_score"`
	Percentage         float64         `bson:"percentage"`
	CGPA               float64         `bson:"cgpa"`
	Preferences        []preferenceDoc `bson:"preferences"`
	Completed          []string        `bson:"completed_resource_ids"`
	Submitted          bool            `bson:"preferences_submitted"`
	SubmittedAt        time.Time       `bson:"submitted_at,omitempty"`
	AssignedResourceID string          `bson:"assigned_resource_id"`
	Confirmed          bool            `bson:"confirmed"`
	ConfirmedAt        *time.Time      `bson:"confirmed_at,omitempty"`
}

func newApplicantDoc(category model.Category, a model.Applicant) applicantDoc {
	d := applicantDoc{
		Key:                docKey(category, a.ID),
		Category:           string(category),
		ApplicantID:        a.ID,
		Name:               a.Name,
		MeritScore:         a.MeritScore,
		Percentage:         a.Academic.Percentage,
		CGPA:               a.Academic.CGPA,
		Preferences:        make([]preferenceDoc, len(a.Preferences)),
		Completed:          append([]string{}, a.CompletedResourceIDs...),
		Submitted:          len(a.Preferences) > 0,
		SubmittedAt:        a.SubmittedAt,
		AssignedResourceID: a.AssignedResourceID,
		Confirmed:          a.Confirmed,
	}
	for i, p := range a.Preferences {
		d.Preferences[i] = preferenceDoc{Rank: p.Rank, ResourceID: p.ResourceID}
	}
	return d
}

func (d applicantDoc) model() model.Applicant {
	a := model.Applicant{
		ID:                 d.ApplicantID,
		Name:               d.Name,
		MeritScore:         d.MeritScore,
		Academic:           model.AcademicRecord{Percentage: d.Percentage, CGPA: d.CGPA},
		SubmittedAt:        d.SubmittedAt,
		AssignedResourceID: d.AssignedResourceID,
		Confirmed:          d.Confirmed,
	}
	if len(d.Preferences) > 0 {
		a.Preferences = make([]model.Preference, len(d.Preferences))
		for i, p := range d.Preferences {
			a.Preferences[i] = model.Preference{Rank: p.Rank, ResourceID: p.ResourceID}
		}
	}
	if len(d.Completed) > 0 {
		a.CompletedResourceIDs = append([]string(nil), d.Completed...)
	}
	return a
}

type resourceDoc struct {
	Key                  string  `bson:"_id"`
	Category             string  `bson:"category"`
	ResourceID           string  `bson:"resource_id"`
	Name                 string  `bson:"name,omitempty"`
	Capacity             int     `bson:"capacity"`
	EligibilityThreshold float64 `bson:"eligibility_threshold"`
	AllocatedCount       int     `bson:"allocated_count"`
}

func newResourceDoc(category model.Category, r model.Resource) resourceDoc {
	return resourceDoc{
		Key:                  docKey(category, r.ID),
		Category:             string(category),
		ResourceID:           r.ID,
		Name:                 r.Name,
		Capacity:             r.Capacity,
		EligibilityThreshold: r.EligibilityThreshold,
		AllocatedCount:       r.AllocatedCount,
	}
}

func (d resourceDoc) model() model.Resource {
	return model.Resource{
		ID:                   d.ResourceID,
		Name:                 d.Name,
		Capacity:             d.Capacity,
		EligibilityThreshold: d.EligibilityThreshold,
		AllocatedCount:       d.AllocatedCount,
	}
}

type passDoc struct {
	PassID          string    `bson:"_id"`
	Category        string    `bson:"category"`
	AllocatedCount  int       `bson:"allocated_count"`
	UnassignedCount int       `bson:"unassigned_count"`
	FallbackCount   int       `bson:"fallback_count"`
	RetainedCount   int       `bson:"retained_count"`
	OverCapacity    int       `bson:"over_capacity"`
	Attempts        int       `bson:"attempts"`
	StartedAt       time.Time `bson:"started_at"`
	FinishedAt      time.Time `bson:"finished_at"`
}

func newPassDoc(r model.AllocationReport) passDoc {
	return passDoc{
		PassID:          r.PassID,
		Category:        string(r.Category),
		AllocatedCount:  r.AllocatedCount,
		UnassignedCount: r.UnassignedCount,
		FallbackCount:   r.FallbackCount,
		RetainedCount:   r.RetainedCount,
		OverCapacity:    r.OverCapacity,
		Attempts:        r.Attempts,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
	}
}

func (d passDoc) model() model.AllocationReport {
	return model.AllocationReport{
		PassID:          d.PassID,
		Category:        model.Category(d.Category),
		AllocatedCount:  d.AllocatedCount,
		UnassignedCount: d.UnassignedCount,
		FallbackCount:   d.FallbackCount,
		RetainedCount:   d.RetainedCount,
		OverCapacity:    d.OverCapacity,
		Attempts:        d.Attempts,
		StartedAt:       d.StartedAt,
		FinishedAt:      d.FinishedAt,
	}
}

type gateDoc struct {
	Category string    `bson:"_id"`
	Closed   bool      `bson:"closed"`
	Updated  time.Time `bson:"updated_at"`
}
