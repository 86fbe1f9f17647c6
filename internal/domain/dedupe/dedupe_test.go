package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/seatalloc/internal/domain/dedupe"
	"github.com/okian/seatalloc/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithSizeHint(16))

		Convey("Then it starts empty", func() {
			So(d.Size(), ShouldEqual, 0)
		})

		Convey("When a submission key is recorded", func() {
			key := dedupe.Key(model.CategoryElective, "s1")
			first := d.SeenAndRecord(ctx, key)
			second := d.SeenAndRecord(ctx, key)

			Convey("Then only the first call reports it as new", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And the same applicant in another category is independent", func() {
				So(d.SeenAndRecord(ctx, dedupe.Key(model.CategoryLifeSkill, "s1")), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 2)
			})
		})

		Convey("When a key is unrecorded after a failed write", func() {
			d.SeenAndRecord(ctx, "elective/s1")
			d.Unrecord(ctx, "elective/s1")
			d.Unrecord(ctx, "elective/missing")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "elective/s1"), ShouldBeFalse)
			})
		})

		Convey("When many keys are recorded", func() {
			for i := 0; i < 1000; i++ {
				So(d.SeenAndRecord(ctx, fmt.Sprintf("elective/s%d", i)), ShouldBeFalse)
			}

			Convey("Then none are evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.SeenAndRecord(ctx, "elective/s0"), ShouldBeTrue)
			})
		})
	})

	Convey("Given a deduper restored with known submissions", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithSeen("elective/a", "elective/b", "elective/a"))

		Convey("Then the restored keys count as seen", func() {
			So(d.Size(), ShouldEqual, 2)
			So(d.SeenAndRecord(ctx, "elective/a"), ShouldBeTrue)
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given many goroutines submitting for the same applicant", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(context.Background(), "elective/s1") {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one of them wins", func() {
			So(wins.Load(), ShouldEqual, 1)
			So(d.Size(), ShouldEqual, 1)
		})
	})
}
