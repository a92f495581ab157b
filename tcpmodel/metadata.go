package tcpmodel

// EngineMetaData is produced by ChecksumAndParse (spec.md §4.3) for every
// segment and carried to the FSM.
type EngineMetaData struct {
	SeqNumb uint32
	AckNumb uint32
	WinSize uint16
	Length  uint16 // payload bytes: IP total length - IP header - TCP header

	Ack bool
	Syn bool
	Fin bool
	Rst bool
}

// ControlBits packs the four control flags into the nibble the FSM's outer
// decision tree keys on (spec.md §4.6: control_bits = ack|syn<<1|fin<<2|rst<<3).
func (m EngineMetaData) ControlBits() uint8 {
	var b uint8
	if m.Ack {
		b |= 0x1
	}
	if m.Syn {
		b |= 0x2
	}
	if m.Fin {
		b |= 0x4
	}
	if m.Rst {
		b |= 0x8
	}
	return b
}

// Control-bit combinations named in spec.md §4.6's dispatch table.
const (
	BitsPureAck = 0b0001
	BitsPureSyn = 0b0010
	BitsSynAck  = 0b0011
	BitsFinAck  = 0b0101
)

// FourTuple identifies a connection: source/destination IP and port, stored
// in network byte order exactly as received on the wire (spec.md §3).
type FourTuple struct {
	SrcIP   uint32
	DstIP   uint32
	SrcPort uint16
	DstPort uint16
}

// Swapped returns the tuple with source and destination reversed — used when
// replying to a sender (spec.md §4.5 closed-port RST).
func (t FourTuple) Swapped() FourTuple {
	return FourTuple{SrcIP: t.DstIP, DstIP: t.SrcIP, SrcPort: t.DstPort, DstPort: t.SrcPort}
}

// FsmWorkItem is the per-session unit of work MetadataHandler hands to
// TcpFsm (spec.md §3).
type FsmWorkItem struct {
	SessionID   uint32
	SrcIPHost   uint32
	DstPortHost uint16
	Meta        EngineMetaData
}

// RxSarEntry mirrors the RX-SAR service's reply (spec.md §3).
type RxSarEntry struct {
	Recvd uint32 // next byte expected
	Appd  uint16 // application read pointer, low 16 bits
}

// FreeSpace returns the free buffer space per spec.md §4.6.a:
// appd - recvd[15:0] - 1.
func (e RxSarEntry) FreeSpace() uint16 {
	return e.Appd - uint16(e.Recvd) - 1
}

// RxTxSarReply mirrors the TX-SAR service's reply (spec.md §3).
type RxTxSarReply struct {
	PrevAck            uint32
	NextByte           uint32
	CongWindow         uint16
	SlowstartThreshold uint16
	Count              uint8 // duplicate-ACK count, 3 bits
	FastRetransmitted  bool
}
