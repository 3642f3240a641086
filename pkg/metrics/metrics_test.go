package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry and custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.workerCount.Set(3)

			Convey("Then metrics are registered under the custom names and labels", func() {
				expected := `
# HELP test_unit_worker_count Current number of action workers
# TYPE test_unit_worker_count gauge
test_unit_worker_count{env="test"} 3
`
				So(testutil.GatherAndCompare(registry, strings.NewReader(expected), "test_unit_worker_count"), ShouldBeNil)
			})
		})

		Convey("When two managers share one registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording action outcomes", func() {
			before := testutil.ToFloat64(globalManager.actionsExecuted.WithLabelValues("twitter", "like", ResultSucceeded))
			RecordActionEnqueued("twitter", "like")
			RecordActionExecuted("twitter", "like", ResultSucceeded)
			RecordActionExecuted("twitter", "like", ResultSucceeded)
			RecordActionLatency("twitter", 1200)

			Convey("Then the labelled counter moves", func() {
				after := testutil.ToFloat64(globalManager.actionsExecuted.WithLabelValues("twitter", "like", ResultSucceeded))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When toggling safety and schedule gauges", func() {
			UpdateSafetySuspended(true)
			UpdateScheduleActive(false)

			Convey("Then the gauges read 1 and 0", func() {
				So(testutil.ToFloat64(globalManager.safetySuspended), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.scheduleActive), ShouldEqual, 0)
			})
		})

		Convey("When recording task runs", func() {
			before := testutil.ToFloat64(globalManager.scheduleTaskRuns.WithLabelValues("backup", ResultFailed))
			RecordScheduleTaskRun("backup", false)

			Convey("Then failures are counted separately", func() {
				after := testutil.ToFloat64(globalManager.scheduleTaskRuns.WithLabelValues("backup", ResultFailed))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When updating queue and account gauges", func() {
			UpdateQueueSize(10)
			UpdateQueueCapacity(100)
			UpdateQueueUtilization(0.1)
			UpdateBotAccounts("facebook", "active", 4)
			UpdateMembers(2)

			Convey("Then they hold the latest values", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 10)
				So(testutil.ToFloat64(globalManager.botAccounts.WithLabelValues("facebook", "active")), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.members), ShouldEqual, 2)
			})
		})

		Convey("When sampling system figures", func() {
			So(func() { CollectSystem() }, ShouldNotPanic)

			Convey("Then the goroutine gauge is positive", func() {
				So(testutil.ToFloat64(globalManager.systemGoroutineCount), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When recording HTTP metrics", func() {
			So(func() {
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequestDuration("/healthz", "GET", "200", 5.0)
			}, ShouldNotPanic)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordActionDuplicate()
		families, err := GetRegistry().Gather()

		Convey("Then it exposes smmbot metrics", func() {
			So(err, ShouldBeNil)
			found := false
			for _, f := range families {
				if f.GetName() == "smmbot_daemon_actions_duplicate_total" {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		})
	})
}
