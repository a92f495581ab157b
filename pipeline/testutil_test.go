package pipeline

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/word"
)

// checksum16 computes the standard big-endian ones'-complement Internet
// checksum over b (RFC 1071), used as an independent oracle to build test
// segments ChecksumAndParse should validate. Summing 16-bit words under the
// module's own "no byte-swapping" lane convention instead would be circular;
// the two conventions are known to agree on the all-ones fold-to-valid test
// (the same reason BSD kernels never byte-swap when summing on a
// little-endian host), so a standard-order oracle is a legitimate check.
func checksum16(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}

	return ^uint16(sum)
}

// buildIPv4TCPDatagram returns a complete IHL=5 IPv4 datagram carrying an
// options-free TCP segment with a correct TCP checksum, the wire format
// LengthExtract consumes.
func buildIPv4TCPDatagram(srcIP, dstIP uint32, srcPort, dstPort uint16, seq, ack uint32, flags byte, winSize uint16, payload []byte) []byte {
	tcp := make([]byte, 20+len(payload))
	binary.BigEndian.PutUint16(tcp[0:2], srcPort)
	binary.BigEndian.PutUint16(tcp[2:4], dstPort)
	binary.BigEndian.PutUint32(tcp[4:8], seq)
	binary.BigEndian.PutUint32(tcp[8:12], ack)
	tcp[12] = 5 << 4 // dataOffset=5 (no options), reserved bits zero
	tcp[13] = flags
	binary.BigEndian.PutUint16(tcp[14:16], winSize)
	copy(tcp[20:], payload)

	pseudo := make([]byte, 12)
	binary.BigEndian.PutUint32(pseudo[0:4], srcIP)
	binary.BigEndian.PutUint32(pseudo[4:8], dstIP)
	pseudo[9] = 6 // TCP protocol number
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(tcp)))

	sum := checksum16(append(append([]byte{}, pseudo...), tcp...))
	binary.BigEndian.PutUint16(tcp[16:18], sum)

	ip := make([]byte, 20)
	ip[0] = 0x45 // version 4, IHL 5
	totalLen := len(ip) + len(tcp)
	binary.BigEndian.PutUint16(ip[2:4], uint16(totalLen))
	ip[8] = 64 // TTL
	ip[9] = 6  // protocol TCP
	binary.BigEndian.PutUint32(ip[12:16], srcIP)
	binary.BigEndian.PutUint32(ip[16:20], dstIP)

	return append(ip, tcp...)
}

// pushBytesAsWords slices b into Width-byte beats and pushes them onto q,
// mirroring ingress.PushBytes without importing the ingress package (which
// would be a legitimate import here, but pipeline's own tests stay
// self-contained so they can run with only queue/word as neighbors).
func pushBytesAsWords(t *testing.T, ctx context.Context, q *queue.Queue[word.Word], b []byte) {
	t.Helper()

	for off := 0; off < len(b); off += word.Width {
		end := off + word.Width
		last := end >= len(b)
		if last {
			end = len(b)
		}

		var w word.Word
		for i := off; i < end; i++ {
			w = w.SetByte(i-off, b[i])
		}
		w.Keep = word.KeepForBytes(end - off)
		w.Last = last

		if err := q.Push(ctx, w); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
}

// drainWords pops words off q until one marked Last arrives, returning the
// reassembled byte stream.
func drainWords(t *testing.T, ctx context.Context, q *queue.Queue[word.Word]) []byte {
	t.Helper()

	var out []byte
	for {
		w, ok, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if !ok {
			t.Fatal("queue closed before a Last word arrived")
		}

		n := w.NumValid()
		for i := 0; i < n; i++ {
			out = append(out, w.Byte(i))
		}

		if w.Last {
			return out
		}
	}
}
