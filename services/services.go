// Package services declares the external collaborators spec.md §1 places out
// of scope: the port table, session lookup, state table, RX/TX-SAR tables,
// timers and the memory-write backend. The pipeline only ever depends on
// these interfaces; concrete (fake, in-memory) implementations live in
// services/fake for tests and local wiring.
package services

import (
	"context"

	"github.com/flowforge/rxtoe/tcpmodel"
)

// PortTable answers "is this port open?" (spec.md §6).
type PortTable interface {
	IsOpen(ctx context.Context, port uint16) (bool, error)
}

// SessionLookupReply is the session-lookup service's response (spec.md §6).
type SessionLookupReply struct {
	Hit       bool
	SessionID uint32
}

// SessionLookup maps a FourTuple to a session id, optionally creating a new
// entry (spec.md §6: allowCreate iff the segment is a pure SYN).
type SessionLookup interface {
	Lookup(ctx context.Context, tuple tcpmodel.FourTuple, allowCreate bool) (SessionLookupReply, error)
}

// StateTableRequest is a state-table query. When NewState is non-nil the
// call is a write-back that also releases the per-session lock (spec.md §5
// lock discipline); when nil it is the initial read that takes the lock.
type StateTableRequest struct {
	SessionID uint32
	NewState  *tcpmodel.State
}

// StateTable stores each session's TCP state behind a per-session lock that
// a read takes and a subsequent write of the same session id releases
// (spec.md §5, §8.5).
type StateTable interface {
	Read(ctx context.Context, sessionID uint32) (tcpmodel.State, error)
	Write(ctx context.Context, sessionID uint32, newState tcpmodel.State) error
}

// RxSarRequest mirrors a RX-SAR query (spec.md §6): Recvd is written on every
// write; InitAppd is only meaningful on an initializing write.
type RxSarRequest struct {
	SessionID uint32
	Recvd     uint32
	InitAppd  bool
}

// RxSar is the per-session receive sequence-and-acknowledgement table.
type RxSar interface {
	Read(ctx context.Context, sessionID uint32) (tcpmodel.RxSarEntry, error)
	Write(ctx context.Context, req RxSarRequest) error
}

// TxSarRequest mirrors a TX-SAR write (spec.md §6).
type TxSarRequest struct {
	SessionID         uint32
	AckNumb           uint32
	WinSize           uint16
	CongWindow        uint16
	Count             uint8
	FastRetransmitted bool
}

// TxSar is the per-session transmit sequence-and-acknowledgement table.
type TxSar interface {
	Read(ctx context.Context, sessionID uint32) (tcpmodel.RxTxSarReply, error)
	Write(ctx context.Context, req TxSarRequest) error
}

// TimerEvent is one of the clear/set commands the FSM issues towards the
// (out of scope) timer engine; it never waits for a reply (spec.md §5, §6).
type TimerEvent int

const (
	TimerClearRetransmit TimerEvent = iota
	TimerSetRetransmit
	TimerClearProbe
	TimerSetProbe
	TimerSetClose
)

// Timers accepts fire-and-forget clear/set commands.
type Timers interface {
	Notify(ctx context.Context, sessionID uint32, event TimerEvent, allAcked bool)
}

// MemWriter is the physical memory-write backend's command/status pair
// (spec.md §6).
type MemWriter interface {
	Write(ctx context.Context, cmd tcpmodel.MemCommand, payload []byte) (tcpmodel.MmStatus, error)
}
