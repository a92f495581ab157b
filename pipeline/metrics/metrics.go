// Package metrics exports prometheus counters and gauges for the pipeline,
// following the CounterVec pattern types/vrrpv2.go uses for its per-protocol
// packet counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// StageWords counts words processed per stage, labelled by stage name.
var StageWords = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rxtoe_stage_words_total",
		Help: "Words processed by each pipeline stage.",
	},
	[]string{"stage"},
)

// QueueDepth reports each inter-stage queue's current occupancy, sampled by
// whatever owns the Queue[T] (pipeline.Pipeline.SampleQueueDepths).
var QueueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "rxtoe_queue_depth",
		Help: "Current occupancy of an inter-stage queue.",
	},
	[]string{"queue"},
)

// SegmentsChecksumInvalid counts segments InvalidDropper discarded.
var SegmentsChecksumInvalid = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "rxtoe_segments_checksum_invalid_total",
	Help: "Segments whose TCP checksum failed verification.",
})

// SegmentsClosedPort counts segments MetadataHandler rejected with a
// closed-port RST.
var SegmentsClosedPort = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "rxtoe_segments_closed_port_total",
	Help: "Segments rejected because the destination port was closed.",
})

// SegmentsSessionMiss counts segments dropped for lack of a matching
// session.
var SegmentsSessionMiss = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "rxtoe_segments_session_miss_total",
	Help: "Segments with payload dropped on a session-lookup miss.",
})

// MemWriteFailures counts write-status replies that came back not okay.
var MemWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "rxtoe_mem_write_failures_total",
	Help: "Memory-write status replies reporting failure.",
})

// MustRegister registers every collector in this package against reg. Call
// once at process startup; tests that don't care about metrics can skip it
// since every collector above also works unregistered.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(StageWords, QueueDepth, SegmentsChecksumInvalid, SegmentsClosedPort, SegmentsSessionMiss, MemWriteFailures)
}
