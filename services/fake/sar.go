package fake

import (
	"context"
	"sync"

	"github.com/flowforge/rxtoe/services"
	"github.com/flowforge/rxtoe/tcpmodel"
)

// RxSarTable is an in-memory services.RxSar.
type RxSarTable struct {
	mu      sync.Mutex
	entries map[uint32]tcpmodel.RxSarEntry
}

// NewRxSarTable returns an empty RxSarTable.
func NewRxSarTable() *RxSarTable {
	return &RxSarTable{entries: make(map[uint32]tcpmodel.RxSarEntry)}
}

// Seed sets a session's initial entry for test setup.
func (t *RxSarTable) Seed(sid uint32, e tcpmodel.RxSarEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[sid] = e
}

// Read implements services.RxSar.
func (t *RxSarTable) Read(_ context.Context, sid uint32) (tcpmodel.RxSarEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.entries[sid], nil
}

// Write implements services.RxSar.
func (t *RxSarTable) Write(_ context.Context, req services.RxSarRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[req.SessionID]
	e.Recvd = req.Recvd
	if req.InitAppd {
		// appd starts one full ring behind recvd so FreeSpace() has room
		// to grow as the application drains data.
		e.Appd = uint16(req.Recvd)
	}
	t.entries[req.SessionID] = e

	return nil
}

// TxSarTable is an in-memory services.TxSar.
type TxSarTable struct {
	mu      sync.Mutex
	entries map[uint32]tcpmodel.RxTxSarReply
}

// NewTxSarTable returns an empty TxSarTable.
func NewTxSarTable() *TxSarTable {
	return &TxSarTable{entries: make(map[uint32]tcpmodel.RxTxSarReply)}
}

// Seed sets a session's initial entry for test setup.
func (t *TxSarTable) Seed(sid uint32, e tcpmodel.RxTxSarReply) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[sid] = e
}

// Read implements services.TxSar.
func (t *TxSarTable) Read(_ context.Context, sid uint32) (tcpmodel.RxTxSarReply, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.entries[sid], nil
}

// Write implements services.TxSar.
func (t *TxSarTable) Write(_ context.Context, req services.TxSarRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, exists := t.entries[req.SessionID]
	if !exists {
		// a brand-new entry (first write for this session, e.g. the
		// passive-open path in TcpFsm.handlePureSyn) starts with an
		// unbounded slow-start threshold, same as InitNextByte does for
		// the active-open path.
		e.SlowstartThreshold = 0xFFFF
	}

	e.PrevAck = req.AckNumb
	e.Count = req.Count
	e.FastRetransmitted = req.FastRetransmitted
	if req.CongWindow != 0 {
		e.CongWindow = req.CongWindow
	}
	t.entries[req.SessionID] = e

	return nil
}

// InitNextByte seeds the NextByte field directly — used when a test wants to
// establish TX-SAR state ahead of a SYN/ACK exchange, since NextByte is only
// advanced by the (out of scope) transmit engine in the real system.
func (t *TxSarTable) InitNextByte(sid uint32, nextByte uint32, winSize uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[sid]
	e.NextByte = nextByte
	e.PrevAck = nextByte
	e.SlowstartThreshold = 0xFFFF
	if winSize != 0 {
		e.CongWindow = winSize
	}
	t.entries[sid] = e
}
