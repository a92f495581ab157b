package fake

import (
	"context"
	"sync"

	"github.com/flowforge/rxtoe/tcpmodel"
)

// MemWriter is an in-memory services.MemWriter: it appends payload bytes to
// a per-session byte slice at the command's ring offset and always replies
// okay, unless FailNext has primed a failure — exercising the §7(5)
// documented-open-risk path where a write fails after the ACK was already
// sent.
type MemWriter struct {
	mu       sync.Mutex
	rings    map[uint32][]byte
	failNext map[uint32]int
}

// NewMemWriter returns an empty MemWriter.
func NewMemWriter() *MemWriter {
	return &MemWriter{
		rings:    make(map[uint32][]byte),
		failNext: make(map[uint32]int),
	}
}

// FailNext arranges for the next n writes targeting sid to report !Okay
// without recording any bytes.
func (w *MemWriter) FailNext(sid uint32, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.failNext[sid] = n
}

// Ring returns a copy of the bytes written so far for sid, ordered by ring
// offset (the session's 64 KiB ring, not unwrapped).
func (w *MemWriter) Ring(sid uint32) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]byte, len(w.rings[sid]))
	copy(out, w.rings[sid])

	return out
}

// Write implements services.MemWriter.
func (w *MemWriter) Write(_ context.Context, cmd tcpmodel.MemCommand, payload []byte) (tcpmodel.MmStatus, error) {
	sid := (cmd.Address >> 16) & 0x3FFF

	w.mu.Lock()
	defer w.mu.Unlock()

	if n := w.failNext[sid]; n > 0 {
		w.failNext[sid] = n - 1
		return tcpmodel.MmStatus{Okay: false}, nil
	}

	ring, ok := w.rings[sid]
	if !ok {
		ring = make([]byte, 1<<16)
		w.rings[sid] = ring
	}

	off := uint32(cmd.SeqLow16())
	for i, b := range payload {
		ring[(off+uint32(i))&0xFFFF] = b
	}

	return tcpmodel.MmStatus{Okay: true}, nil
}
