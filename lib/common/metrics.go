package common

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// Metrics is the set holding all counters of this module
var Metrics = metrics.NewSet()

// Timers holds the latency timers of this module
var Timers = gometrics.NewRegistry()

var (
	StoreReads         = Metrics.NewCounter("prefkv_store_reads_total")
	StoreWrites        = Metrics.NewCounter("prefkv_store_writes_total")
	StoreNotifications = Metrics.NewCounter("prefkv_store_notifications_total")
	CellsCreated       = Metrics.NewCounter("prefkv_cells_created_total")
	Publishes          = Metrics.NewCounter("prefkv_publish_total")

	// ReadyWait measures how long GetValue waited for a cell to become ready
	ReadyWait = gometrics.NewRegisteredTimer("pref.ready.wait", Timers)
)

// WriteMetrics writes the counters in prometheus text format followed by the
// timer snapshots.
func WriteMetrics(w io.Writer) {
	Metrics.WritePrometheus(w)
	gometrics.WriteOnce(Timers, w)
}
