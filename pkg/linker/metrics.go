package linker

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

var (
	framesSent         = metrics.NewCounter("unixlink_frames_sent_total")
	framesReceived     = metrics.NewCounter("unixlink_frames_received_total")
	dispatchErrors     = metrics.NewCounter("unixlink_dispatch_errors_total")
	connectionsDropped = metrics.NewCounter("unixlink_conns_dropped_total")
	activeConnections  = metrics.NewCounter("unixlink_active_connections")
)

// WriteMetrics dumps all linker metrics in Prometheus text format.
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
