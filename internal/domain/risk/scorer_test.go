package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/blindfold/internal/domain/risk"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCachedScorer(t *testing.T) {
	Convey("Given a cached scorer over a counting engine", t, func() {
		ctx := context.Background()
		calls := 0
		next := risk.ScorerFunc(func(ctx context.Context, payload string) risk.Score {
			calls++
			return risk.Evaluate(payload)
		})
		scorer := risk.NewCachedScorer(
			risk.WithNext(next),
			risk.WithTTL(time.Minute),
			risk.WithCleanupInterval(time.Minute),
		)

		Convey("When the same payload is scored twice", func() {
			payload := `{"holdings":[{"balance":"50"},{"balance":"50"}]}`
			first := scorer.Score(ctx, payload)
			second := scorer.Score(ctx, payload)

			Convey("Then the engine runs once and both results match", func() {
				So(calls, ShouldEqual, 1)
				So(second, ShouldResemble, first)
				So(first.Score, ShouldEqual, 82)
			})
		})

		Convey("When different payloads are scored", func() {
			scorer.Score(ctx, "{}")
			scorer.Score(ctx, `{"holdings":[]}`)

			Convey("Then each one misses", func() {
				So(calls, ShouldEqual, 2)
			})
		})
	})

	Convey("Given the default cached scorer", t, func() {
		s := risk.NewCachedScorer().Score(context.Background(), "{}")

		Convey("Then it falls through to the engine", func() {
			So(s.Concentration, ShouldEqual, risk.MaxConcentration)
		})
	})
}
