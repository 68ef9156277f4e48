package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with defaults on a private registry", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it is enabled with the default refresh interval", func() {
				So(m, ShouldNotBeNil)
				So(m.Enabled(), ShouldBeTrue)
				So(m.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithMetricsEnabled(false),
				WithRefreshInterval(time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(m.Enabled(), ShouldBeFalse)
				So(m.RefreshInterval(), ShouldEqual, time.Second)
			})

			Convey("Then collectors are registered under the namespace", func() {
				m.listenersOpened.WithLabelValues("query").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_listeners_opened_total")
			})
		})
	})
}

func TestListenerGauge(t *testing.T) {
	Convey("Given the global manager", t, func() {
		before := testutil.ToFloat64(globalManager.listenersOpen.WithLabelValues("unit-test"))

		Convey("When a listener opens and closes", func() {
			RecordListenerOpened("unit-test")
			mid := testutil.ToFloat64(globalManager.listenersOpen.WithLabelValues("unit-test"))
			RecordListenerClosed("unit-test")
			after := testutil.ToFloat64(globalManager.listenersOpen.WithLabelValues("unit-test"))

			Convey("Then the open gauge returns to its previous value", func() {
				So(mid, ShouldEqual, before+1)
				So(after, ShouldEqual, before)
			})
		})
	})
}

func TestRecorders(t *testing.T) {
	Convey("Given every recorder", t, func() {
		Convey("Then none of them panic", func() {
			So(func() {
				RecordListenerError("query")
				RecordStreamOpened("ceremonies")
				RecordSnapshotEmitted("ceremonies")
				RecordStreamClosed("ceremonies")
				RecordDecodeDrop("votes")
				UpdateFanOutChildren("my-competitions", 2)
				UpdateFanOutChildren("my-competitions", -2)
				RecordFanOutChildError("my-competitions")
				UpdateMailboxDepth("fanout", 3)
				RecordMailboxRejected("outbox", "full")
				RecordRPC("castVote", "ok", 12)
				RecordVoteConfirmation("confirmed")
				RecordHTTPRequest("/stats", "GET", "200")
				RecordHTTPRequestDuration("/stats", "GET", "200", 1)
				UpdateWSSessions(1)
				UpdateWSSubscriptions(1)
				RecordWSSlowConsumer()
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(10)
			}, ShouldNotPanic)
		})

		Convey("Then the custom registry gathers", func() {
			_, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
		})
	})
}
