package journal_test

import (
	"context"
	"testing"

	"github.com/okian/blindfold/internal/adapters/mq/journal"
	"github.com/okian/blindfold/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func heights(events []model.Event) []uint64 {
	out := make([]uint64, 0, len(events))
	for _, e := range events {
		out = append(out, e.Height)
	}
	return out
}

func TestJournal(t *testing.T) {
	Convey("Given a journal of capacity 3", t, func() {
		ctx := context.Background()
		j := journal.New(3)

		Convey("When fewer events than capacity arrive out of order", func() {
			So(j.Handle(ctx, model.Event{Kind: model.EventRequestCreated, Height: 2}), ShouldBeNil)
			So(j.Handle(ctx, model.Event{Kind: model.EventInitialized, Height: 1}), ShouldBeNil)

			Convey("Then Recent sorts them by height", func() {
				So(j.Len(), ShouldEqual, 2)
				So(heights(j.Recent(0)), ShouldResemble, []uint64{1, 2})
			})
		})

		Convey("When more events than capacity arrive", func() {
			for h := uint64(1); h <= 5; h++ {
				So(j.Handle(ctx, model.Event{Height: h}), ShouldBeNil)
			}

			Convey("Then only the newest are kept", func() {
				So(j.Len(), ShouldEqual, 3)
				So(heights(j.Recent(0)), ShouldResemble, []uint64{3, 4, 5})
				So(heights(j.Recent(2)), ShouldResemble, []uint64{4, 5})
			})
		})

		Convey("When it is empty", func() {
			Convey("Then Recent is empty", func() {
				So(j.Recent(10), ShouldBeEmpty)
			})
		})
	})

	Convey("Given a journal with a non-positive capacity", t, func() {
		j := journal.New(0)
		So(j.Handle(context.Background(), model.Event{Height: 1}), ShouldBeNil)
		So(j.Len(), ShouldEqual, 1)
	})
}
