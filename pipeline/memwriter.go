package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/flowforge/rxtoe/dump"
	"github.com/flowforge/rxtoe/logging"
	"github.com/flowforge/rxtoe/pipeline/metrics"
	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/services"
	"github.com/flowforge/rxtoe/tcpmodel"
	"github.com/flowforge/rxtoe/word"
)

// ringSize is the per-session ring the low 16 bits of a MemCommand's address
// index into (spec.md §3 MemCommand addressing convention).
const ringSize = 1 << 16

// MemWriter is pipeline stage 8 (spec.md §4.8). It assembles a logical
// command's payload words into a contiguous buffer, splits the write on
// ring wrap, and calls the physical memory-write backend once per physical
// segment, forwarding the doubleAccess flag and both write statuses to
// NotificationDelayer.
//
// §4.8's "sub-word realignment" describes the byte-shift a streaming
// hardware pipeline needs when the second split segment doesn't start on a
// word boundary; assembling the whole logical segment into a []byte buffer
// first (the shape services.MemWriter.Write already takes) makes that
// realignment a plain slice operation instead of a shift register, the same
// simplification ChecksumAndParse makes for TCP header stripping.
type MemWriter struct {
	CmdIn  *queue.Queue[tcpmodel.MemCommand]
	DataIn *queue.Queue[word.Word]

	Backend services.MemWriter

	StatusOut       *queue.Queue[tcpmodel.MmStatus]
	DoubleAccessOut *queue.Queue[bool]

	// Dump is the optional debug-capture side channel of spec.md §11.3. A
	// nil Dump is a no-op (dump.Writer's zero-cost nil-receiver contract),
	// so it is safe to leave unset when cfg.DebugCaptureDir is empty.
	Dump *dump.Writer
}

// Run drives the stage until ctx is cancelled.
func (s *MemWriter) Run(ctx context.Context) error {
	for {
		if err := s.step(ctx); err != nil {
			return err
		}
	}
}

func (s *MemWriter) step(ctx context.Context) error {
	cmd, ok, err := s.CmdIn.Pop(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	payload, err := s.collect(ctx, cmd.Bytes)
	if err != nil {
		return err
	}

	sid := sessionFromAddress(cmd.Address)
	s.Dump.Capture(dumpTupleForSession(sid), sid, payload)

	low16 := cmd.SeqLow16()
	base := cmd.Address &^ 0xFFFF

	if uint32(low16)+uint32(cmd.Bytes) <= ringSize {
		if err := s.DoubleAccessOut.Push(ctx, false); err != nil {
			return err
		}

		return s.write(ctx, tcpmodel.MemCommand{Address: cmd.Address, Bytes: cmd.Bytes}, payload)
	}

	firstBytes := uint16(ringSize - uint32(low16))
	secondBytes := cmd.Bytes - firstBytes

	if err := s.DoubleAccessOut.Push(ctx, true); err != nil {
		return err
	}

	if err := s.write(ctx, tcpmodel.MemCommand{Address: cmd.Address, Bytes: firstBytes}, payload[:firstBytes]); err != nil {
		return err
	}

	return s.write(ctx, tcpmodel.MemCommand{Address: base, Bytes: secondBytes}, payload[firstBytes:])
}

func (s *MemWriter) write(ctx context.Context, cmd tcpmodel.MemCommand, payload []byte) error {
	status, err := s.Backend.Write(ctx, cmd, payload)
	if err != nil {
		return err
	}

	if !status.Okay {
		metrics.MemWriteFailures.Inc()
		logging.Pipeline.Error("memory write failed",
			zap.Uint32("address", cmd.Address), zap.Uint16("bytes", cmd.Bytes))
	}

	return s.StatusOut.Push(ctx, status)
}

// sessionFromAddress recovers the session id MemCommand.Address packs into
// bits 29..16 (spec.md §3, the inverse of NewMemCommand).
func sessionFromAddress(addr uint32) uint32 {
	return (addr >> 16) & 0x3FFF
}

// dumpTupleForSession synthesizes a placeholder FourTuple keyed on session
// id for dump.Writer's capture-directory naming. MemCommand addresses by
// session id and sequence number only (spec.md §3) and carries no
// FourTuple; dump capture is purely observational (dump.go) and only needs
// a stable per-session identity, not the real tuple.
func dumpTupleForSession(sid uint32) tcpmodel.FourTuple {
	return tcpmodel.FourTuple{SrcIP: sid}
}

// collect pulls words off DataIn until n bytes have been gathered, the
// segment's terminating Last word having exactly n%8 (or 8, if n is a
// multiple of 8) valid low bytes by construction (PayloadDropper forwards
// words unmodified from ChecksumAndParse's packer).
func (s *MemWriter) collect(ctx context.Context, n uint16) ([]byte, error) {
	buf := make([]byte, 0, n)

	for uint16(len(buf)) < n {
		w, ok, err := s.DataIn.Pop(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return buf, nil
		}

		metrics.StageWords.WithLabelValues("mem_writer").Inc()

		valid := w.NumValid()
		for i := 0; i < valid && uint16(len(buf)) < n; i++ {
			buf = append(buf, w.Byte(i))
		}

		if w.Last {
			break
		}
	}

	return buf, nil
}
