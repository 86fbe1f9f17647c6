package confirmation_test

import (
	"errors"
	"testing"

	"github.com/okian/seatalloc/internal/domain/confirmation"
	"github.com/okian/seatalloc/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStateOf(t *testing.T) {
	Convey("Given applicants in each lifecycle position", t, func() {
		So(confirmation.StateOf(&model.Applicant{ID: "a"}), ShouldEqual, model.StateUnallocated)
		So(confirmation.StateOf(&model.Applicant{ID: "a", AssignedResourceID: "X"}), ShouldEqual, model.StateAllocated)
		So(confirmation.StateOf(&model.Applicant{ID: "a", AssignedResourceID: "X", Confirmed: true}), ShouldEqual, model.StateConfirmed)
	})
}

func TestNext(t *testing.T) {
	Convey("Given the transition table", t, func() {
		Convey("Then allocation moves an unallocated applicant forward", func() {
			s, err := confirmation.Next(model.StateUnallocated, confirmation.EventAllocate)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, model.StateAllocated)
		})

		Convey("And reallocation of an allocated applicant stays allocated", func() {
			s, err := confirmation.Next(model.StateAllocated, confirmation.EventAllocate)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, model.StateAllocated)
		})

		Convey("And a confirmed applicant cannot be reallocated", func() {
			s, err := confirmation.Next(model.StateConfirmed, confirmation.EventAllocate)
			So(errors.Is(err, model.ErrAlreadyConfirmed), ShouldBeTrue)
			So(s, ShouldEqual, model.StateConfirmed)
		})

		Convey("And confirm requires an allocation", func() {
			_, err := confirmation.Next(model.StateUnallocated, confirmation.EventConfirm)
			So(errors.Is(err, model.ErrNotAllocated), ShouldBeTrue)
		})

		Convey("And confirm is terminal", func() {
			s, err := confirmation.Next(model.StateAllocated, confirmation.EventConfirm)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, model.StateConfirmed)

			_, err = confirmation.Next(s, confirmation.EventConfirm)
			So(errors.Is(err, model.ErrAlreadyConfirmed), ShouldBeTrue)
		})

		Convey("And unknown events are rejected", func() {
			_, err := confirmation.Next(model.StateAllocated, confirmation.Event("unconfirm"))
			So(errors.Is(err, confirmation.ErrUnknownTransition), ShouldBeTrue)
		})
	})
}

func TestConfirm(t *testing.T) {
	Convey("Given an applicant without an assignment", t, func() {
		a := &model.Applicant{ID: "s1"}

		Convey("When confirming", func() {
			err := confirmation.Confirm(a)

			Convey("Then NotAllocated is returned and nothing changes", func() {
				So(errors.Is(err, model.ErrNotAllocated), ShouldBeTrue)
				var se *model.StateError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.ApplicantID, ShouldEqual, "s1")
				So(a.Confirmed, ShouldBeFalse)
			})
		})
	})

	Convey("Given an allocated applicant", t, func() {
		a := &model.Applicant{ID: "s1", AssignedResourceID: "X"}

		Convey("When confirming twice", func() {
			first := confirmation.Confirm(a)
			second := confirmation.Confirm(a)

			Convey("Then the first succeeds and the second reports AlreadyConfirmed", func() {
				So(first, ShouldBeNil)
				So(a.Confirmed, ShouldBeTrue)
				So(errors.Is(second, model.ErrAlreadyConfirmed), ShouldBeTrue)
				So(confirmation.Status(a), ShouldResemble, model.AssignmentStatus{
					ApplicantID: "s1", ResourceID: "X", Confirmed: true, State: model.StateConfirmed,
				})
			})
		})
	})
}
