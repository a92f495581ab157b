package tcpmodel

import "github.com/prometheus/client_golang/prometheus"

// SegmentRecord is a flattened, CSV-exportable view of a segment's metadata
// and tuple, used by pipeline/stats to replace the teacher's hand-rolled
// CSVHeader()/fieldsVRRPv2 pattern (types/vrrpv2.go) with gocsv struct tags.
type SegmentRecord struct {
	SessionID uint32 `csv:"session_id"`
	SrcIP     uint32 `csv:"src_ip"`
	DstIP     uint32 `csv:"dst_ip"`
	SrcPort   uint16 `csv:"src_port"`
	DstPort   uint16 `csv:"dst_port"`
	SeqNumb   uint32 `csv:"seq"`
	AckNumb   uint32 `csv:"ack"`
	Length    uint16 `csv:"length"`
	Ack       bool   `csv:"ack_flag"`
	Syn       bool   `csv:"syn_flag"`
	Fin       bool   `csv:"fin_flag"`
	Rst       bool   `csv:"rst_flag"`
	State     string `csv:"state"`
}

// NewSegmentRecord flattens a work item and the state it was evaluated
// against into a SegmentRecord.
func NewSegmentRecord(item FsmWorkItem, tuple FourTuple, state State) SegmentRecord {
	return SegmentRecord{
		SessionID: item.SessionID,
		SrcIP:     tuple.SrcIP,
		DstIP:     tuple.DstIP,
		SrcPort:   tuple.SrcPort,
		DstPort:   tuple.DstPort,
		SeqNumb:   item.Meta.SeqNumb,
		AckNumb:   item.Meta.AckNumb,
		Length:    item.Meta.Length,
		Ack:       item.Meta.Ack,
		Syn:       item.Meta.Syn,
		Fin:       item.Meta.Fin,
		Rst:       item.Meta.Rst,
		State:     state.String(),
	}
}

// segmentsTotal mirrors the per-audit-record prometheus.Counter the teacher
// embeds in every generated types.* struct (e.g. types/vrrpv2.go) and
// exposes via Inc(); here it is a single vector keyed by state since
// SegmentRecord is not itself a generated protobuf audit record.
var segmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "rxtoe_segments_total",
	Help: "Segments evaluated by the FSM, by resulting TCP state.",
}, []string{"state"})

// Inc records this record's resulting state in the segmentsTotal vector.
func (r SegmentRecord) Inc() {
	segmentsTotal.WithLabelValues(r.State).Inc()
}

// MustRegister registers the package's collectors with reg. Exposed so
// callers can opt in rather than relying on the default registry.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(segmentsTotal)
}
