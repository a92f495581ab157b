package tcpmodel

// EventKind tags the OutboundEvent union (spec.md §3, §9 "Polymorphic
// events").
type EventKind int

const (
	EventAck EventKind = iota
	EventAckNoDelay
	EventSynAck
	EventFin
	EventRT
	EventRst
)

func (k EventKind) String() string {
	switch k {
	case EventAck:
		return "ACK"
	case EventAckNoDelay:
		return "ACK_NODELAY"
	case EventSynAck:
		return "SYN_ACK"
	case EventFin:
		return "FIN"
	case EventRT:
		return "RT"
	case EventRst:
		return "RST"
	default:
		return "UNKNOWN"
	}
}

// OutboundEvent is the tagged union emitted towards the (out of scope) event
// engine. When Extended is true the event carries an explicit FourTuple
// instead of a session id — the pre-session reply case (spec.md §3, §4.5).
type OutboundEvent struct {
	Kind      EventKind
	SessionID uint32

	Extended bool
	Tuple    FourTuple

	// Retransmit marks a SYN_ACK retransmission (spec.md §4.6.b).
	Retransmit bool

	// Seq carries the sequence number for RST events.
	Seq uint32
}

// NewSessionEvent builds a non-extended event addressed by session id.
func NewSessionEvent(kind EventKind, sid uint32) OutboundEvent {
	return OutboundEvent{Kind: kind, SessionID: sid}
}

// NewRst builds a session-addressed RST event.
func NewRst(sid uint32, seq uint32) OutboundEvent {
	return OutboundEvent{Kind: EventRst, SessionID: sid, Seq: seq}
}

// NewExtendedRst builds a pre-session RST event replying to ft with seq.
func NewExtendedRst(ft FourTuple, seq uint32) OutboundEvent {
	return OutboundEvent{Kind: EventRst, Extended: true, Tuple: ft, Seq: seq}
}

// AppNotification is delivered towards the (out of scope) application I/O
// layer (spec.md §3).
type AppNotification struct {
	SessionID   uint32
	Length      uint16
	SrcIPHost   uint32
	DstPortHost uint16
	Closed      bool
}

// MemCommand addresses the per-session 64 KiB ring: bits 29..16 hold the
// session id (low 14 bits), bits 15..0 the sequence number low 16 bits
// (spec.md §3).
type MemCommand struct {
	Address uint32
	Bytes   uint16
}

// NewMemCommand builds the ring address for sid/seq per spec.md §3.
func NewMemCommand(sid uint32, seq uint32, bytes uint16) MemCommand {
	addr := (sid&0x3FFF)<<16 | (seq & 0xFFFF)
	return MemCommand{Address: addr, Bytes: bytes}
}

// SeqLow16 returns the low 16 bits of the command's address, i.e. the
// sequence-number component used by MemWriter for ring-wrap/split math.
func (c MemCommand) SeqLow16() uint16 { return uint16(c.Address) }

// MmStatus is the memory writer's reply to a write command (spec.md §6).
type MmStatus struct {
	Okay bool
}

// OpenStatus reports the outcome of an active open back to the (out of
// scope) application layer — the "open-status channel" of spec.md §4.6.c/e.
type OpenStatus struct {
	SessionID uint32
	Success   bool
}
