package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "blindfold")
				So(manager.subsystem, ShouldEqual, "ledger")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"instance": "a"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "unit")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.constLabels["instance"], ShouldEqual, "a")
			})
		})

		Convey("When creating with empty option values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithConstLabels(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "blindfold")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.constLabels, ShouldBeNil)
			})
		})
	})
}

func TestLedgerMetrics(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording ledger activity", func() {
			before := testutil.ToFloat64(globalManager().requestsCreated)
			RecordRequestCreated()
			RecordRequestCreated()

			Convey("Then the counter advances", func() {
				So(testutil.ToFloat64(globalManager().requestsCreated), ShouldEqual, before+2)
			})
		})

		Convey("When recording a transition", func() {
			before := testutil.ToFloat64(globalManager().statusTransitions.WithLabelValues("Pending", "Processing"))
			RecordTransition("Pending", "Processing")

			Convey("Then the labelled counter advances", func() {
				So(testutil.ToFloat64(globalManager().statusTransitions.WithLabelValues("Pending", "Processing")), ShouldEqual, before+1)
			})
		})

		Convey("When updating totals", func() {
			UpdateLedgerTotals(12, 5)

			Convey("Then the gauges hold the values", func() {
				So(testutil.ToFloat64(globalManager().totalRequests), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager().totalVerifications), ShouldEqual, 5)
			})
		})

		Convey("When recording everything else", func() {
			So(func() {
				RecordVerificationStored()
				RecordLedgerError("submit_request", "insufficient_deposit")
				UpdatePendingRequests(3)
				RecordIdempotentReplay()
				RecordStoreLatency("atomic", 1.5)
				RecordRiskScore("high")
				RecordRiskCacheHit()
				RecordRiskCacheMiss()
				RecordEventPublished("RequestCreated")
				RecordEventDropped("RequestCreated")
				RecordEventDispatched("RequestCreated")
				RecordEventDispatchError()
				RecordEventDispatchLatency(0.2)
				UpdateQueueSize(4)
				UpdateQueueCapacity(1024)
				UpdateWorkerCount(2)
				RecordHTTPRequest("/requests", "POST", "201")
				RecordHTTPRequestDuration("/requests", "POST", "201", 3)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.5)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordRequestCreated()
		families, err := GetRegistry().Gather()

		Convey("Then it exposes the ledger metrics", func() {
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(names, ShouldContain, "blindfold_ledger_requests_created_total")
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given a configured namespace and instance label", t, func() {
		Configure(WithNamespace("advisor"), WithConstLabels(map[string]string{"instance": "eu-1"}))
		Reset(func() { Configure() })
		RecordRequestCreated()

		Convey("Then the served registry uses them", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var found bool
			for _, f := range families {
				if f.GetName() != "advisor_ledger_requests_created_total" {
					continue
				}
				found = true
				labels := f.GetMetric()[0].GetLabel()
				So(labels, ShouldHaveLength, 1)
				So(labels[0].GetName(), ShouldEqual, "instance")
				So(labels[0].GetValue(), ShouldEqual, "eu-1")
			}
			So(found, ShouldBeTrue)
		})

		Convey("Then reconfiguring with defaults restores the prefix", func() {
			Configure()
			RecordRequestCreated()
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(names, ShouldContain, "blindfold_ledger_requests_created_total")
			So(names, ShouldNotContain, "advisor_ledger_requests_created_total")
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordEventPublished("RequestCreated")
					UpdateQueueSize(j)
					RecordHTTPRequest("/risk", "POST", "200")
				}
			}()
		}
		wg.Wait()

		Convey("Then no panic occurred", func() {
			So(true, ShouldBeTrue)
		})
	})
}
