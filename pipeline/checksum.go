package pipeline

import (
	"context"

	"github.com/flowforge/rxtoe/pipeline/metrics"
	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/tcpmodel"
	"github.com/flowforge/rxtoe/word"
)

// checksumState is the explicit per-stage state ChecksumAndParse owns: the
// byte cursor into the pseudo-headered stream, the in-progress metadata and
// tuple, the four lane accumulators, and the output word packer (spec.md
// DESIGN NOTES).
type checksumState struct {
	byteOffset int
	headerEnd  int // absolute byte offset where the TCP header ends (-1 until byte 24 seen)

	meta  tcpmodel.EngineMetaData
	tuple tcpmodel.FourTuple

	laneSums [4]uint32

	outWord  word.Word
	outValid int

	sawPayload bool
}

func newChecksumState() checksumState {
	return checksumState{headerEnd: -1}
}

// ChecksumAndParse is pipeline stage 3 (spec.md §4.3): it parses the TCP
// header fields, strips them from the outgoing payload stream, and verifies
// the 16-bit ones-complement checksum over the pseudo-headered stream.
type ChecksumAndParse struct {
	In *queue.Queue[word.Word]

	PayloadOut *queue.Queue[word.Word]
	ValidOut   *queue.Queue[bool]
	MetaOut    *queue.Queue[tcpmodel.EngineMetaData]
	TupleOut   *queue.Queue[tcpmodel.FourTuple]
	PortOut    *queue.Queue[uint16]

	st           checksumState
	pendingWords []word.Word
}

// Run drives the stage until ctx is cancelled.
func (s *ChecksumAndParse) Run(ctx context.Context) error {
	s.st = newChecksumState()

	for {
		if err := s.step(ctx); err != nil {
			return err
		}
	}
}

func (s *ChecksumAndParse) step(ctx context.Context) error {
	in, ok, err := s.In.Pop(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	metrics.StageWords.WithLabelValues("checksum_and_parse").Inc()

	accumulateChecksum(&s.st.laneSums, in)

	n := in.NumValid()
	for i := 0; i < n; i++ {
		s.consumeByte(in.Byte(i))
	}

	if in.Last {
		return s.finish(ctx)
	}

	return nil
}

// consumeByte classifies one byte of the pseudo-headered stream by its
// absolute offset: 0-11 pseudo-header (source and destination IP parsed,
// the rest consumed),
// 12-31 fixed TCP header fields, 32..headerEnd TCP options (discarded),
// headerEnd.. payload (packed and forwarded).
func (s *ChecksumAndParse) consumeByte(b byte) {
	off := s.st.byteOffset
	s.st.byteOffset++

	switch {
	case off < 12:
		s.consumePseudoHeaderByte(off, b)
	case off < 32:
		s.consumeTcpHeaderByte(off, b)
	case s.st.headerEnd >= 0 && off < s.st.headerEnd:
		// TCP options beyond the fixed 20 bytes: not modeled (spec.md §1
		// Non-goals), discarded.
	default:
		s.pushPayloadByte(b)
	}
}

func (s *ChecksumAndParse) consumePseudoHeaderByte(off int, b byte) {
	switch {
	case off < 4:
		s.st.tuple.SrcIP = s.st.tuple.SrcIP<<8 | uint32(b)
	case off < 8:
		s.st.tuple.DstIP = s.st.tuple.DstIP<<8 | uint32(b)
	default:
		// zero, protocol, tcpLen: not needed once the checksum has
		// folded them in.
	}
}

func (s *ChecksumAndParse) consumeTcpHeaderByte(off int, b byte) {
	switch off {
	case 12, 13:
		s.st.tuple.SrcPort = s.st.tuple.SrcPort<<8 | uint16(b)
	case 14, 15:
		s.st.tuple.DstPort = s.st.tuple.DstPort<<8 | uint16(b)
	case 16, 17, 18, 19:
		s.st.meta.SeqNumb = s.st.meta.SeqNumb<<8 | uint32(b)
	case 20, 21, 22, 23:
		s.st.meta.AckNumb = s.st.meta.AckNumb<<8 | uint32(b)
	case 24:
		dataOffset := int(b>>4) & 0xF
		if dataOffset < 5 {
			dataOffset = 5
		}
		s.st.headerEnd = 12 + dataOffset*4
	case 25:
		s.st.meta.Fin = b&0x01 != 0
		s.st.meta.Syn = b&0x02 != 0
		s.st.meta.Rst = b&0x04 != 0
		s.st.meta.Ack = b&0x10 != 0
	case 26, 27:
		s.st.meta.WinSize = s.st.meta.WinSize<<8 | uint16(b)
	default:
		// checksum (28-29) and urgent pointer (30-31) fields: the
		// checksum itself is verified by the lane accumulators, not
		// re-read here; urgent pointer is a Non-goal (spec.md §1).
	}
}

func (s *ChecksumAndParse) pushPayloadByte(b byte) {
	s.st.sawPayload = true
	s.st.meta.Length++

	s.st.outWord = s.st.outWord.SetByte(s.st.outValid, b)
	s.st.outValid++

	if s.st.outValid == word.Width {
		s.st.outWord.Keep = 0xFF
		s.flushQueuedWord(false)
	}
}

// flushQueuedWord appends the in-progress output word to pendingWords, which
// finish pushes with a blocking Push, and resets the packer.
func (s *ChecksumAndParse) flushQueuedWord(last bool) {
	s.st.outWord.Last = last
	s.pendingWords = append(s.pendingWords, s.st.outWord)
	s.st.outWord = word.Word{}
	s.st.outValid = 0
}

func (s *ChecksumAndParse) finish(ctx context.Context) error {
	if s.st.sawPayload && s.st.outValid > 0 {
		s.st.outWord.Keep = word.KeepForBytes(s.st.outValid)
		s.flushQueuedWord(true)
	} else if len(s.pendingWords) > 0 {
		s.pendingWords[len(s.pendingWords)-1].Last = true
	}

	for _, w := range s.pendingWords {
		if err := s.PayloadOut.Push(ctx, w); err != nil {
			return err
		}
	}
	s.pendingWords = s.pendingWords[:0]

	valid := foldLaneSums(s.st.laneSums) == 0xFFFF

	if s.st.meta.Length > 0 {
		if err := s.ValidOut.Push(ctx, valid); err != nil {
			return err
		}
	}

	if valid {
		if err := s.MetaOut.Push(ctx, s.st.meta); err != nil {
			return err
		}
		if err := s.TupleOut.Push(ctx, s.st.tuple); err != nil {
			return err
		}
		if err := s.PortOut.Push(ctx, s.st.tuple.DstPort); err != nil {
			return err
		}
	}

	s.st = newChecksumState()

	return nil
}

// accumulateChecksum folds w's four 16-bit lanes into sums, padding any lane
// whose high byte is invalid (end of segment, odd total length) with zero,
// per RFC 793's ones-complement checksum (spec.md §4.3, §9 "Checksum
// endianness": no byte-swapping on accumulation).
func accumulateChecksum(sums *[4]uint32, w word.Word) {
	for lane := 0; lane < 4; lane++ {
		loIdx, hiIdx := 2*lane, 2*lane+1
		loValid := w.Keep&(1<<uint(loIdx)) != 0
		hiValid := w.Keep&(1<<uint(hiIdx)) != 0

		if !loValid && !hiValid {
			continue
		}

		var lo, hi byte
		if loValid {
			lo = w.Byte(loIdx)
		}
		if hiValid {
			hi = w.Byte(hiIdx)
		}

		sums[lane] += uint32(hi)<<8 | uint32(lo)
	}
}

// foldLaneSums combines the four lane accumulators pairwise with
// end-around carry, exactly as the HLS source folds its four 17-bit running
// sums at end-of-packet (spec.md §4.3).
func foldLaneSums(sums [4]uint32) uint16 {
	s0, s1, s2, s3 := fold16(sums[0]), fold16(sums[1]), fold16(sums[2]), fold16(sums[3])
	left := fold16(uint32(s0) + uint32(s1))
	right := fold16(uint32(s2) + uint32(s3))

	return fold16(uint32(left) + uint32(right))
}

func fold16(v uint32) uint16 {
	for v>>16 != 0 {
		v = (v & 0xFFFF) + (v >> 16)
	}

	return uint16(v)
}
