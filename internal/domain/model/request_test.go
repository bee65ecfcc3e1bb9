package model_test

import (
	"testing"

	model "github.com/okian/blindfold/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestRequestStatus(t *testing.T) {
	convey.Convey("Given the request statuses", t, func() {
		convey.Convey("Then only Completed and Failed are terminal", func() {
			convey.So(model.StatusPending.Terminal(), convey.ShouldBeFalse)
			convey.So(model.StatusProcessing.Terminal(), convey.ShouldBeFalse)
			convey.So(model.StatusCompleted.Terminal(), convey.ShouldBeTrue)
			convey.So(model.StatusFailed.Terminal(), convey.ShouldBeTrue)
		})

		convey.Convey("Then unknown values are invalid", func() {
			convey.So(model.StatusPending.Valid(), convey.ShouldBeTrue)
			convey.So(model.RequestStatus("Done").Valid(), convey.ShouldBeFalse)
			convey.So(model.RequestStatus("").Valid(), convey.ShouldBeFalse)
		})
	})
}
