package qrecover

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetrics(t *testing.T) {
	Convey("Given fresh metrics", t, func() {
		metrics := NewMetrics()

		Convey("Attempts are counted by mode and result", func() {
			metrics.RecordAttempt(Static, nil)
			metrics.RecordAttempt(Static, errors.New("boom"))
			metrics.RecordAttempt(Dynamic, nil)

			So(testutil.ToFloat64(metrics.attempts.WithLabelValues("static", "success")), ShouldEqual, 1)
			So(testutil.ToFloat64(metrics.attempts.WithLabelValues("static", "failure")), ShouldEqual, 1)
			So(testutil.ToFloat64(metrics.attempts.WithLabelValues("dynamic", "success")), ShouldEqual, 1)
			So(metrics.AttemptCount, ShouldEqual, int64(3))
			So(metrics.FailedAttempts, ShouldEqual, int64(1))
			So(metrics.AttemptSuccessRate, ShouldAlmostEqual, 2.0/3)
		})

		Convey("Trials track counts and latency", func() {
			for i := 1; i <= 100; i++ {
				metrics.RecordTrial(Static, time.Duration(i)*time.Millisecond)
			}

			So(testutil.ToFloat64(metrics.trials.WithLabelValues("static")), ShouldEqual, 100)
			So(metrics.TrialCount, ShouldEqual, int64(100))
			So(metrics.P95TrialLatency, ShouldEqual, 96*time.Millisecond)
			So(metrics.P99TrialLatency, ShouldEqual, 100*time.Millisecond)
			So(metrics.AverageTrialTime, ShouldEqual, 50500*time.Microsecond)
		})

		Convey("The registry exposes every collector", func() {
			metrics.RecordAttempt(Baseline, nil)
			metrics.RecordTrial(Baseline, time.Millisecond)

			expected := `
# HELP qrecover_trials_total Trials completed, by experiment mode.
# TYPE qrecover_trials_total counter
qrecover_trials_total{mode="baseline"} 1
`
			err := testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "qrecover_trials_total")
			So(err, ShouldBeNil)

			count, err := testutil.GatherAndCount(metrics.Registry())
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 3)
		})

		Convey("The snapshot export carries the counts", func() {
			metrics.RecordAttempt(Static, nil)
			metrics.RecordTrial(Static, 2*time.Millisecond)

			snapshot := metrics.ExportMetrics()
			So(snapshot["trials"], ShouldEqual, int64(1))
			So(snapshot["attempts"], ShouldEqual, int64(1))
			So(snapshot["attempts_per_trial"], ShouldEqual, 1.0)
		})
	})
}
