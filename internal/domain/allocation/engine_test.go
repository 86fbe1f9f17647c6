package allocation_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func prefs(ids ...string) []model.Preference {
	out := make([]model.Preference, len(ids))
	for i, id := range ids {
		out[i] = model.Preference{Rank: i + 1, ResourceID: id}
	}
	return out
}

func applicant(id string, merit float64, ids ...string) model.Applicant {
	return model.Applicant{ID: id, MeritScore: merit, Preferences: prefs(ids...)}
}

func resource(id string, capacity int, threshold float64) model.Resource {
	return model.Resource{ID: id, Capacity: capacity, EligibilityThreshold: threshold}
}

func countOf(res allocation.Result, id string) int {
	for _, r := range res.Resources {
		if r.ID == id {
			return r.AllocatedCount
		}
	}
	return -1
}

func TestAllocate_EndToEndScenario(t *testing.T) {
	Convey("Given X{cap 1, threshold 50}, Y{cap 1, threshold 0} and applicants A, B, C", t, func() {
		resources := []model.Resource{resource("X", 1, 50), resource("Y", 1, 0)}
		applicants := []model.Applicant{
			applicant("C", 40, "X"),
			applicant("B", 80, "X", "Y"),
			applicant("A", 90, "X", "Y"),
		}

		Convey("When a single pass runs", func() {
			res := allocation.Allocate(applicants, resources)

			Convey("Then A gets X on merit", func() {
				So(res.Assignments["A"].ResourceID, ShouldEqual, "X")
				So(res.Assignments["A"].Fallback, ShouldBeFalse)
			})

			Convey("And B falls through to Y because X is full", func() {
				So(res.Assignments["B"].ResourceID, ShouldEqual, "Y")
				So(res.Assignments["B"].Rank, ShouldEqual, 2)
			})

			Convey("And C is granted X through the fallback rule, overfilling it", func() {
				So(res.Assignments["C"].ResourceID, ShouldEqual, "X")
				So(res.Assignments["C"].Fallback, ShouldBeTrue)
				So(countOf(res, "X"), ShouldEqual, 2)
				So(countOf(res, "Y"), ShouldEqual, 1)
				So(res.Report.OverCapacity, ShouldEqual, 1)
			})

			Convey("And the report counts every outcome", func() {
				So(res.Report.Allocated, ShouldEqual, 3)
				So(res.Report.Unassigned, ShouldEqual, 0)
				So(res.Report.Fallback, ShouldEqual, 1)
				So(res.Order, ShouldResemble, []string{"A", "B", "C"})
			})

			Convey("And the inputs are left untouched", func() {
				So(resources[0].AllocatedCount, ShouldEqual, 0)
				So(resources[1].AllocatedCount, ShouldEqual, 0)
				So(applicants[0].AssignedResourceID, ShouldBeEmpty)
			})
		})
	})
}

func TestAllocate_MeritPriority(t *testing.T) {
	Convey("Given two applicants competing for a single seat", t, func() {
		resources := []model.Resource{resource("X", 1, 0), resource("Z", 5, 0)}
		applicants := []model.Applicant{
			applicant("B", 80, "X", "Z"),
			applicant("A", 90, "X", "Z"),
		}

		res := allocation.Allocate(applicants, resources)

		Convey("Then the higher merit applicant wins it regardless of roster order", func() {
			So(res.Assignments["A"].ResourceID, ShouldEqual, "X")
			So(res.Assignments["B"].ResourceID, ShouldEqual, "Z")
		})
	})

	Convey("Given equal merit", t, func() {
		resources := []model.Resource{resource("X", 1, 0), resource("Z", 5, 0)}
		applicants := []model.Applicant{
			applicant("late", 75, "X", "Z"),
			applicant("early", 75, "X", "Z"),
		}

		res := allocation.Allocate(applicants, resources)

		Convey("Then roster order breaks the tie", func() {
			So(res.Assignments["late"].ResourceID, ShouldEqual, "X")
			So(res.Assignments["early"].ResourceID, ShouldEqual, "Z")
			So(res.Order, ShouldResemble, []string{"late", "early"})
		})
	})

	Convey("Given equal percentage and different CGPA", t, func() {
		resources := []model.Resource{resource("X", 1, 0), resource("Z", 5, 0)}
		applicants := []model.Applicant{
			{ID: "p", Academic: model.AcademicRecord{Percentage: 75, CGPA: 7.2}, Preferences: prefs("X", "Z")},
			{ID: "q", Academic: model.AcademicRecord{Percentage: 75, CGPA: 8.4}, Preferences: prefs("X", "Z")},
		}
		allocation.MeritPercentage.ScoreAll(applicants)

		res := allocation.Allocate(applicants, resources)

		Convey("Then the higher CGPA goes first", func() {
			So(res.Order, ShouldResemble, []string{"q", "p"})
			So(res.Assignments["q"].ResourceID, ShouldEqual, "X")
			So(res.Assignments["p"].ResourceID, ShouldEqual, "Z")
		})
	})
}

func TestAllocate_CapacityBound(t *testing.T) {
	Convey("Given many applicants and small resources", t, func() {
		resources := []model.Resource{resource("X", 2, 0), resource("Y", 3, 0), resource("Z", 100, 0)}
		var applicants []model.Applicant
		for i := 0; i < 40; i++ {
			applicants = append(applicants, applicant(string(rune('a'+i%26))+string(rune('0'+i/26)), float64(100-i), "X", "Y", "Z"))
		}

		res := allocation.Allocate(applicants, resources)

		Convey("Then no resource is overfilled by non-final acceptances", func() {
			nonFinal := map[string]int{}
			for _, p := range res.Assignments {
				if p.Assigned() && !p.Fallback {
					nonFinal[p.ResourceID]++
				}
			}
			So(nonFinal["X"], ShouldEqual, 2)
			So(nonFinal["Y"], ShouldEqual, 3)
			for _, r := range res.Resources {
				So(r.AllocatedCount, ShouldBeLessThanOrEqualTo, r.Capacity)
			}
		})
	})
}

func TestAllocate_FallbackIgnoresCapacity(t *testing.T) {
	Convey("Given a resource with zero capacity that is an applicant's only preference", t, func() {
		resources := []model.Resource{resource("X", 0, 99)}
		applicants := []model.Applicant{applicant("A", 10, "X")}

		res := allocation.Allocate(applicants, resources)

		Convey("Then the applicant is assigned anyway and the count exceeds capacity", func() {
			So(res.Assignments["A"].ResourceID, ShouldEqual, "X")
			So(res.Assignments["A"].Fallback, ShouldBeTrue)
			So(countOf(res, "X"), ShouldEqual, 1)
			So(res.Report.OverCapacity, ShouldEqual, 1)
		})
	})
}

func TestAllocate_EligibilityGate(t *testing.T) {
	Convey("Given an applicant below the threshold of their first choice", t, func() {
		resources := []model.Resource{resource("X", 10, 70), resource("Y", 10, 60), resource("Z", 10, 0)}
		applicants := []model.Applicant{applicant("A", 65, "X", "Y", "Z")}

		res := allocation.Allocate(applicants, resources)

		Convey("Then the first choice is skipped and the next eligible one granted", func() {
			So(res.Assignments["A"].ResourceID, ShouldEqual, "Y")
			So(res.Assignments["A"].Rank, ShouldEqual, 2)
			So(res.Assignments["A"].Fallback, ShouldBeFalse)
			So(countOf(res, "X"), ShouldEqual, 0)
		})
	})

	Convey("Given merit exactly equal to the threshold", t, func() {
		resources := []model.Resource{resource("X", 1, 70), resource("Z", 1, 0)}
		res := allocation.Allocate([]model.Applicant{applicant("A", 70, "X", "Z")}, resources)

		Convey("Then the applicant qualifies", func() {
			So(res.Assignments["A"].ResourceID, ShouldEqual, "X")
		})
	})

	Convey("Given an applicant below the threshold of their final preference", t, func() {
		resources := []model.Resource{resource("X", 1, 90), resource("Y", 1, 90)}
		res := allocation.Allocate([]model.Applicant{applicant("A", 10, "X", "Y")}, resources)

		Convey("Then the final preference is still granted", func() {
			So(res.Assignments["A"].ResourceID, ShouldEqual, "Y")
			So(res.Assignments["A"].Fallback, ShouldBeTrue)
		})
	})
}

func TestAllocate_EmptyPreferences(t *testing.T) {
	Convey("Given an applicant without preferences", t, func() {
		res := allocation.Allocate(
			[]model.Applicant{{ID: "A", MeritScore: 99}},
			[]model.Resource{resource("X", 1, 0)},
		)

		Convey("Then they stay unassigned and no seat is used", func() {
			So(res.Assignments["A"].Assigned(), ShouldBeFalse)
			So(res.Report.Unassigned, ShouldEqual, 1)
			So(countOf(res, "X"), ShouldEqual, 0)
		})
	})
}

func TestAllocate_UnorderedRanks(t *testing.T) {
	Convey("Given preferences listed out of rank order", t, func() {
		a := model.Applicant{ID: "A", MeritScore: 50, Preferences: []model.Preference{
			{Rank: 3, ResourceID: "Z"},
			{Rank: 1, ResourceID: "X"},
			{Rank: 2, ResourceID: "Y"},
		}}
		resources := []model.Resource{resource("X", 0, 0), resource("Y", 0, 0), resource("Z", 0, 0)}

		res := allocation.Allocate([]model.Applicant{a}, resources)

		Convey("Then the highest rank number is treated as the final preference", func() {
			So(res.Assignments["A"].ResourceID, ShouldEqual, "Z")
			So(res.Assignments["A"].Rank, ShouldEqual, 3)
			So(res.Assignments["A"].Fallback, ShouldBeTrue)
		})
	})
}

func TestAllocate_ConfirmedApplicantsAreRetained(t *testing.T) {
	Convey("Given an applicant who confirmed X in an earlier pass", t, func() {
		resources := []model.Resource{resource("X", 1, 0), resource("Y", 5, 0)}
		confirmed := applicant("low", 10, "X", "Y")
		confirmed.AssignedResourceID = "X"
		confirmed.Confirmed = true
		applicants := []model.Applicant{applicant("high", 95, "X", "Y"), confirmed}

		res := allocation.Allocate(applicants, resources)

		Convey("Then the confirmed assignment is kept and its seat is reserved", func() {
			So(res.Assignments["low"].ResourceID, ShouldEqual, "X")
			So(res.Assignments["low"].Retained, ShouldBeTrue)
			So(res.Assignments["high"].ResourceID, ShouldEqual, "Y")
			So(countOf(res, "X"), ShouldEqual, 1)
			So(res.Report.Retained, ShouldEqual, 1)
			So(res.Report.Allocated, ShouldEqual, 2)
		})

		Convey("And Apply does not rewrite the confirmed record", func() {
			out := allocation.Apply(applicants, res)
			So(out[1].AssignedResourceID, ShouldEqual, "X")
			So(out[1].Confirmed, ShouldBeTrue)
			So(out[0].AssignedResourceID, ShouldEqual, "Y")
			So(applicants[0].AssignedResourceID, ShouldBeEmpty)
		})
	})
}

func TestAllocate_Deterministic(t *testing.T) {
	resources := []model.Resource{resource("X", 2, 60), resource("Y", 1, 0), resource("Z", 3, 30)}
	applicants := []model.Applicant{
		applicant("a", 70, "X", "Y", "Z"),
		applicant("b", 70, "Y", "X"),
		applicant("c", 55, "X", "Z"),
		applicant("d", 90, "Z", "X", "Y"),
		applicant("e", 20, "X"),
		applicant("f", 70, "X", "Z", "Y"),
	}

	first := allocation.Allocate(applicants, resources)
	second := allocation.Allocate(applicants, resources)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ:\n%+v\n%+v", first, second)
	}
	b1, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b2, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("encoded results differ:\n%s\n%s", b1, b2)
	}
}

func TestAllocateValidated(t *testing.T) {
	Convey("Given a roster naming an unknown resource", t, func() {
		_, err := allocation.AllocateValidated(
			[]model.Applicant{applicant("A", 10, "nope")},
			[]model.Resource{resource("X", 1, 0)},
		)

		Convey("Then the pass is refused with a validation error", func() {
			So(err, ShouldNotBeNil)
			var verr *model.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
			So(len(verr.Issues), ShouldEqual, 1)
		})
	})
}
