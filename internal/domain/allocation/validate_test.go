package allocation_test

import (
	"errors"
	"testing"

	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func issuesOf(err error) []model.Issue {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return verr.Issues
	}
	return nil
}

func TestValidate(t *testing.T) {
	catalog := []model.Resource{resource("X", 1, 0), resource("Y", 1, 0), resource("Z", 1, 0)}

	Convey("Given a well formed snapshot", t, func() {
		err := allocation.Validate([]model.Applicant{applicant("A", 10, "X", "Y")}, catalog)

		Convey("Then it passes", func() {
			So(err, ShouldBeNil)
		})
	})

	Convey("Given malformed preference lists", t, func() {
		cases := []struct {
			name  string
			prefs []model.Preference
			done  []string
		}{
			{"duplicate rank", []model.Preference{{Rank: 1, ResourceID: "X"}, {Rank: 1, ResourceID: "Y"}}, nil},
			{"non-contiguous rank", []model.Preference{{Rank: 1, ResourceID: "X"}, {Rank: 3, ResourceID: "Y"}}, nil},
			{"rank not starting at one", []model.Preference{{Rank: 2, ResourceID: "X"}}, nil},
			{"non-positive rank", []model.Preference{{Rank: 0, ResourceID: "X"}}, nil},
			{"duplicate resource", []model.Preference{{Rank: 1, ResourceID: "X"}, {Rank: 2, ResourceID: "X"}}, nil},
			{"dangling resource", []model.Preference{{Rank: 1, ResourceID: "Q"}}, nil},
			{"completed resource", []model.Preference{{Rank: 1, ResourceID: "X"}}, []string{"X"}},
			{"empty resource", []model.Preference{{Rank: 1, ResourceID: ""}}, nil},
		}

		for _, tc := range cases {
			a := model.Applicant{ID: "A", Preferences: tc.prefs, CompletedResourceIDs: tc.done}
			err := allocation.Validate([]model.Applicant{a}, catalog)

			Convey("Then "+tc.name+" is reported as a validation error", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				So(len(issuesOf(err)), ShouldBeGreaterThan, 0)
				So(issuesOf(err)[0].ApplicantID, ShouldEqual, "A")
			})
		}
	})

	Convey("Given structural problems in roster and catalog", t, func() {
		confirmedNoSeat := model.Applicant{ID: "C", Confirmed: true}
		confirmedGone := model.Applicant{ID: "D", Confirmed: true, AssignedResourceID: "gone"}
		err := allocation.Validate(
			[]model.Applicant{applicant("A", 1, "X"), applicant("A", 1, "Y"), confirmedNoSeat, confirmedGone},
			[]model.Resource{resource("X", -1, 0), resource("X", 1, 0), {ID: "Y", AllocatedCount: -2}},
		)

		Convey("Then every issue is collected in one error", func() {
			issues := issuesOf(err)
			fields := map[string]int{}
			for _, is := range issues {
				fields[is.Field]++
			}
			So(fields["id"], ShouldEqual, 2)
			So(fields["capacity"], ShouldEqual, 1)
			So(fields["allocated_count"], ShouldEqual, 1)
			So(fields["confirmed"], ShouldEqual, 1)
			So(fields["assigned_resource_id"], ShouldEqual, 1)
			So(err.Error(), ShouldContainSubstring, "issues")
		})
	})
}

func TestValidatePreferences_WithoutCatalog(t *testing.T) {
	Convey("Given no catalog to check against", t, func() {
		issues := allocation.ValidatePreferences("A", prefs("anything", "else"), nil, nil)

		Convey("Then unknown resources are not flagged", func() {
			So(issues, ShouldBeEmpty)
		})
	})
}

func TestMeritMetric(t *testing.T) {
	Convey("Given an academic record", t, func() {
		rec := model.AcademicRecord{Percentage: 82.5, CGPA: 8.1}

		Convey("When reducing by percentage", func() {
			m, err := allocation.ParseMeritMetric("Percentage")
			So(err, ShouldBeNil)
			So(m.Reduce(rec), ShouldEqual, 82.5)
		})

		Convey("When reducing by cgpa", func() {
			m, err := allocation.ParseMeritMetric("cgpa")
			So(err, ShouldBeNil)
			So(m.Reduce(rec), ShouldEqual, 8.1)
		})

		Convey("When the metric is empty it defaults to percentage", func() {
			m, err := allocation.ParseMeritMetric("")
			So(err, ShouldBeNil)
			So(m, ShouldEqual, allocation.MeritPercentage)
		})

		Convey("When the metric is unknown", func() {
			_, err := allocation.ParseMeritMetric("height")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When scoring a roster", func() {
			roster := []model.Applicant{{ID: "a", Academic: rec}, {ID: "b", Academic: model.AcademicRecord{Percentage: 40}}}
			allocation.MeritPercentage.ScoreAll(roster)
			So(roster[0].MeritScore, ShouldEqual, 82.5)
			So(roster[1].MeritScore, ShouldEqual, 40)
			So(roster[0].TieBreakScore, ShouldEqual, 8.1)
		})

		Convey("When scoring a roster by cgpa", func() {
			roster := []model.Applicant{{ID: "a", Academic: rec}}
			allocation.MeritCGPA.ScoreAll(roster)
			So(roster[0].MeritScore, ShouldEqual, 8.1)
			So(roster[0].TieBreakScore, ShouldEqual, 82.5)
		})

		Convey("When an applicant has no academic record", func() {
			roster := []model.Applicant{{ID: "c", MeritScore: 71}}
			allocation.MeritCGPA.ScoreAll(roster)
			So(roster[0].MeritScore, ShouldEqual, 71)
		})
	})
}
