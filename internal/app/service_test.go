package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"

	service "github.com/okian/blindfold/internal/app"
	"github.com/okian/blindfold/internal/domain/ledger"
	"github.com/okian/blindfold/internal/domain/types"
	"github.com/okian/blindfold/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var (
	owner = types.MustAccountID("owner.near")
	relay = types.MustAccountID("relay.near")
	alice = types.MustAccountID("alice.near")
)

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["relay"], ShouldEqual, ledger.DefaultRelay.String())
			So(stats["minDeposit"], ShouldEqual, ledger.DefaultMinDeposit.String())
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(50_000),
			service.WithDedupeSize(25_000),
			service.WithJournalSize(16),
			service.WithRelay(relay),
			service.WithMinDeposit(sdkmath.NewUint(5)),
			service.WithRiskCache(time.Minute, 2*time.Minute),
		)

		Convey("Then the options are reflected in stats", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50_000)
			So(stats["dedupeSize"], ShouldEqual, 25_000)
			So(stats["relay"], ShouldEqual, "relay.near")
			So(stats["minDeposit"], ShouldEqual, "5")
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()
		// Ensure service is stopped after test
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
			})

			Convey("And it should be marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["initialized"], ShouldEqual, false)
			})

			Convey("And starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := service.New()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := svc.Start(ctx)
		So(err, ShouldBeNil)

		Convey("When stopping the service", func() {
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, false)
			})

			Convey("And ledger operations fail", func() {
				_, err := svc.LedgerStats(ctx)
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})

			Convey("And stopping again is safe", func() {
				So(func() { svc.Stop() }, ShouldNotPanic)
			})
		})
	})
}

func TestService_NotStarted(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New()
		ctx := context.Background()

		Convey("Then every ledger operation reports ErrNotStarted", func() {
			So(errors.Is(svc.Initialize(ctx, owner), service.ErrNotStarted), ShouldBeTrue)
			_, _, err := svc.SubmitRequest(ctx, alice, ledger.RequestInput{Question: "q"}, "")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(errors.Is(svc.MarkProcessing(ctx, relay, 0), service.ErrNotStarted), ShouldBeTrue)
			So(errors.Is(svc.MarkFailed(ctx, relay, 0, "x"), service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.PendingRequests(ctx)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("Then scoring still works", func() {
			score := svc.ScorePortfolio(ctx, `{"holdings":[{"token":"NEAR","balance":"1"}]}`)
			So(score.Concentration, ShouldEqual, float64(10000))
		})

		Convey("Then the event journal is empty", func() {
			So(svc.RecentEvents(10), ShouldBeEmpty)
		})
	})
}

func TestService_Idempotency(t *testing.T) {
	Convey("Given a started and initialized service", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithRelay(relay),
			service.WithMinDeposit(sdkmath.NewUint(1)),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)
		So(svc.Initialize(ctx, owner), ShouldBeNil)

		in := ledger.RequestInput{Question: "rebalance?", PortfolioData: "{}", Deposit: "1"}

		Convey("When the same key is submitted twice", func() {
			first, replayed1, err1 := svc.SubmitRequest(ctx, alice, in, "k-1")
			second, replayed2, err2 := svc.SubmitRequest(ctx, alice, in, "k-1")

			Convey("Then the second call replays the first id", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(replayed1, ShouldBeFalse)
				So(replayed2, ShouldBeTrue)
				So(second, ShouldEqual, first)

				stats, err := svc.LedgerStats(ctx)
				So(err, ShouldBeNil)
				So(stats.TotalRequests, ShouldEqual, 1)
			})
		})

		Convey("When different callers reuse a key", func() {
			bob := types.MustAccountID("bob.near")
			a, _, errA := svc.SubmitRequest(ctx, alice, in, "shared")
			b, replayed, errB := svc.SubmitRequest(ctx, bob, in, "shared")

			Convey("Then both requests are recorded", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(replayed, ShouldBeFalse)
				So(b, ShouldNotEqual, a)
			})
		})

		Convey("When a keyed submission fails", func() {
			_, _, err := svc.SubmitRequest(ctx, alice, ledger.RequestInput{Question: "q", Deposit: "0"}, "k-2")
			id, replayed, retryErr := svc.SubmitRequest(ctx, alice, in, "k-2")

			Convey("Then the key is not consumed", func() {
				So(errors.Is(err, ledger.ErrInsufficientDeposit), ShouldBeTrue)
				So(retryErr, ShouldBeNil)
				So(replayed, ShouldBeFalse)
				So(id, ShouldEqual, 0)
			})
		})

		Convey("When submitting without a key", func() {
			a, _, _ := svc.SubmitRequest(ctx, alice, in, "")
			b, replayed, _ := svc.SubmitRequest(ctx, alice, in, "")

			Convey("Then each call creates a request", func() {
				So(replayed, ShouldBeFalse)
				So(b, ShouldEqual, a+1)
			})
		})
	})
}
