package model_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/seatalloc/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseCategory(t *testing.T) {
	Convey("Given category spellings used by clients", t, func() {
		for in, want := range map[string]model.Category{
			"elective":    model.CategoryElective,
			"Electives":   model.CategoryElective,
			"life-skills": model.CategoryLifeSkill,
			"life_skill":  model.CategoryLifeSkill,
			" lifeskill ": model.CategoryLifeSkill,
		} {
			got, err := model.ParseCategory(in)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
			So(got.Valid(), ShouldBeTrue)
		}
	})

	Convey("Given an unknown category", t, func() {
		_, err := model.ParseCategory("sports")

		Convey("Then a validation error is returned", func() {
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "sports")
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given typed domain errors", t, func() {
		Convey("Then each matches its sentinel through wrapping", func() {
			nf := fmt.Errorf("lookup: %w", &model.NotFoundError{Kind: "applicant", ID: "s9"})
			So(errors.Is(nf, model.ErrNotFound), ShouldBeTrue)
			So(nf.Error(), ShouldContainSubstring, "s9")

			se := &model.StateError{ApplicantID: "s1", State: model.StateConfirmed, Err: model.ErrAlreadyConfirmed}
			So(errors.Is(se, model.ErrAlreadyConfirmed), ShouldBeTrue)
			So(model.IsStateError(se), ShouldBeTrue)
			So(model.IsStateError(nf), ShouldBeFalse)

			pe := &model.PersistenceError{Op: "persist pass", Err: errors.New("disk full")}
			So(errors.Is(pe, model.ErrPersistence), ShouldBeTrue)
			So(pe.Error(), ShouldContainSubstring, "disk full")
		})
	})
}

func TestApplicantClone(t *testing.T) {
	Convey("Given an applicant with preference and completion lists", t, func() {
		a := model.Applicant{
			ID:                   "s1",
			Preferences:          []model.Preference{{Rank: 1, ResourceID: "X"}},
			CompletedResourceIDs: []string{"Q"},
		}

		Convey("When cloning and mutating the clone", func() {
			c := a.Clone()
			c.Preferences[0].ResourceID = "Y"
			c.CompletedResourceIDs[0] = "R"

			Convey("Then the original is unaffected", func() {
				So(a.Preferences[0].ResourceID, ShouldEqual, "X")
				So(a.CompletedResourceIDs[0], ShouldEqual, "Q")
			})
		})
	})
}
