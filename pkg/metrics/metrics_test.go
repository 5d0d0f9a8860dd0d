package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			manager := NewManager()

			Convey("Then it should use the service namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "hanta")
				So(manager.subsystem, ShouldEqual, "scores")
			})
		})

		Convey("When creating with custom options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithPrometheusRegistry(registry),
			)
			manager.sessionsOpened.WithLabelValues("short").Inc()

			Convey("Then collectors should be registered on that registry", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_sessions_opened_total")
				So(manager.histogramBuckets, ShouldResemble, []float64{1, 5, 10})
			})
		})

		Convey("When empty options are supplied", func() {
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(nil))

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "hanta")
				So(manager.subsystem, ShouldEqual, "scores")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording rate limiter decisions", func() {
			c := globalManager.rateLimitDecisions.WithLabelValues("address", "denied")
			before := testutil.ToFloat64(c)
			RecordRateLimitDecision("address", false)

			Convey("Then the denied series should increase", func() {
				So(testutil.ToFloat64(c), ShouldEqual, before+1)
			})
		})

		Convey("When recording submissions and mismatches", func() {
			sub := globalManager.submissions.WithLabelValues("score_mismatch")
			mis := globalManager.scoreMismatches.WithLabelValues("accuracy")
			beforeSub, beforeMis := testutil.ToFloat64(sub), testutil.ToFloat64(mis)
			RecordSubmission("score_mismatch")
			RecordScoreMismatch("accuracy")

			Convey("Then both series should increase", func() {
				So(testutil.ToFloat64(sub), ShouldEqual, beforeSub+1)
				So(testutil.ToFloat64(mis), ShouldEqual, beforeMis+1)
			})
		})

		Convey("When setting gauges", func() {
			UpdateSessionsActive(7)
			UpdateQueueCapacity(128)
			UpdateRateLimitBuckets("name", 3)

			Convey("Then they should hold the last value", func() {
				So(testutil.ToFloat64(globalManager.sessionsActive), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 128)
				So(testutil.ToFloat64(globalManager.rateLimitBuckets.WithLabelValues("name")), ShouldEqual, 3)
			})
		})

		Convey("When calling every recorder", func() {
			So(func() {
				RecordSessionOpened("venice")
				RecordSessionsSwept(2)
				RecordPipelineLatency(1.5)
				RecordRankingUpdate("long")
				RecordRankingError()
				RecordRankingWriteLatency(1)
				RecordRankingQueryLatency(1)
				UpdateRankingRecords(10)
				UpdateQueueSize(1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError("full")
				UpdateWorkerCount(4)
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
				RecordHTTPRequest("scores", "POST", "200")
				RecordHTTPRequestDuration("scores", "POST", "200", 3)
				RecordErrorByComponent("pipeline", "score_mismatch")
				RecordErrorByEndpoint("scores", "POST", "client_error")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
