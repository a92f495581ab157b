package pipeline

import (
	"context"

	"github.com/flowforge/rxtoe/pipeline/metrics"
	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/word"
)

// tcpProtocolNumber is the IP protocol number for TCP (spec.md §4.2).
const tcpProtocolNumber = 0x06

// pseudoHeaderState is the explicit per-stage state PseudoHeaderInsert owns
// (spec.md DESIGN NOTES).
type pseudoHeaderState struct {
	wordCount uint8
	shift     word.ShiftRegister
}

// PseudoHeaderInsert is pipeline stage 2 (spec.md §4.2). LengthExtract's
// output already carries [srcIP|dstIP] as its first word and an all-zero
// spacer word as its second (inserted so the pseudo-header lands
// word-aligned); this stage passes the address word through unchanged,
// replaces the spacer word's low four bytes with
// [zero, protocol=6, tcpLen] and re-establishes the same 4-byte
// shift-register chain LengthExtract used, so the TCP segment that follows
// is byte-exact and word-aligned behind the 12-byte pseudo-header.
type PseudoHeaderInsert struct {
	In    *queue.Queue[word.Word]
	LenIn *queue.Queue[uint16]
	Out   *queue.Queue[word.Word]

	st pseudoHeaderState
}

// Run drives the stage until ctx is cancelled.
func (s *PseudoHeaderInsert) Run(ctx context.Context) error {
	for {
		if err := s.step(ctx); err != nil {
			return err
		}
	}
}

func (s *PseudoHeaderInsert) step(ctx context.Context) error {
	in, ok, err := s.In.Pop(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	metrics.StageWords.WithLabelValues("pseudo_header_insert").Inc()

	switch s.st.wordCount {
	case 0:
		// [srcIP|dstIP], already the first 8 bytes of the pseudo-header.
		if err := s.Out.Push(ctx, in); err != nil {
			return err
		}

		s.st.wordCount++

		return nil

	case 1:
		// the all-zero spacer word: replace its low 4 bytes with
		// [zero, protocol, tcpLen] and hold them in the shift register
		// until the next word supplies the high 4 bytes.
		tcpLen, ok2, err2 := s.LenIn.Pop(ctx)
		if err2 != nil {
			return err2
		}
		if !ok2 {
			return nil
		}

		tail := word.Word{
			Data: uint64(tcpProtocolNumber)<<8 | uint64(tcpLen>>8)<<16 | uint64(tcpLen&0xFF)<<24,
			Keep: 0x0F,
		}
		s.st.shift.Load(tail, 4)
		s.st.wordCount++

		return nil

	default:
		return s.consumeSegment(ctx, in)
	}
}

// consumeSegment re-aligns every TCP segment word through the shift register,
// mirroring LengthExtract's own combine/flush chain (spec.md §4.2 "Output is
// fed to the checksum stage").
func (s *PseudoHeaderInsert) consumeSegment(ctx context.Context, in word.Word) error {
	inValid := in.NumValid()

	out, consumed := s.st.shift.Combine(in, inValid)
	out.Last = in.Last && consumed >= inValid

	if err := s.Out.Push(ctx, out); err != nil {
		return err
	}

	remaining := inValid - consumed
	var tail word.Word
	tail.Data = in.Data >> uint(consumed*8)
	s.st.shift.Load(tail, remaining)

	if in.Last {
		if remaining > 0 {
			var final word.Word
			final.Data = tail.Data
			final.Keep = word.KeepForBytes(remaining)
			final.Last = true

			if err := s.Out.Push(ctx, final); err != nil {
				return err
			}
		}

		s.st = pseudoHeaderState{}
	}

	return nil
}
