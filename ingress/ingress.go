// Package ingress supplies the "upstream filter assumed" half of spec.md §6:
// a real packet source, a BPF filter that admits only IPv4/proto=6 traffic,
// and the framing of each accepted packet's bytes into the 64-bit AXI-like
// word.Word stream pipeline.LengthExtract consumes. It wraps
// github.com/google/gopacket and github.com/google/gopacket/pcap — the
// upstream of the teacher's github.com/dreadl0ck/gopacket fork
// (decoder/gopacketDecoder.go, decoder/ipProfile.go) — so the pipeline can be
// driven end-to-end from a real .pcap file instead of hand-built word.Word
// slices.
package ingress

import (
	"context"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/word"
)

// BPFFilter restricts capture to exactly what spec.md §6 says the upstream
// filter already guarantees: IPv4 datagrams carrying TCP.
const BPFFilter = "ip proto \\tcp"

// ErrNoNetworkLayer and ErrNoTransportLayer are returned (wrapped) when a
// captured packet slips past the BPF filter without a usable IPv4 or TCP
// layer, mirroring gopacketDecoder.go's errors.Wrap(ErrInvalidDecoder, name)
// style of naming a sentinel per failure mode.
var (
	ErrNoNetworkLayer   = errors.New("ingress: packet has no IPv4 network layer")
	ErrNoTransportLayer = errors.New("ingress: packet has no TCP transport layer")
)

// Source is the minimal gopacket.PacketDataSource surface Reader needs,
// satisfied by both *pcap.Handle (live interface or offline file).
type Source interface {
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
	Close()
}

// OpenOffline opens a .pcap/.pcapng file and applies BPFFilter, the same
// "open, then set a BPF program" sequence a gopacket/pcap consumer always
// follows before handing packets to a decoder.
func OpenOffline(path string) (*pcap.Handle, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, errors.Wrap(err, "ingress: open offline capture")
	}

	if err := handle.SetBPFFilter(BPFFilter); err != nil {
		handle.Close()
		return nil, errors.Wrap(err, "ingress: set BPF filter")
	}

	return handle, nil
}

// OpenLive opens iface in promiscuous mode with the given per-packet
// snapshot length and applies BPFFilter.
func OpenLive(iface string, snaplen int32, promisc bool) (*pcap.Handle, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promisc, pcap.BlockForever)
	if err != nil {
		return nil, errors.Wrap(err, "ingress: open live capture")
	}

	if err := handle.SetBPFFilter(BPFFilter); err != nil {
		handle.Close()
		return nil, errors.Wrap(err, "ingress: set BPF filter")
	}

	return handle, nil
}

// Reader drains a Source, slices each accepted packet's IPv4 datagram into
// 8-byte word.Word beats, and pushes them onto Out — manufacturing the exact
// wire format spec.md §6 describes the upstream hardware as already
// producing.
type Reader struct {
	Src Source
	Out *queue.Queue[word.Word]
	Log *zap.Logger
}

// New returns a Reader pushing onto out, logging with log (which may be
// zap.NewNop() if the caller doesn't care).
func New(src Source, out *queue.Queue[word.Word], log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}

	return &Reader{Src: src, Out: out, Log: log}
}

// Run reads packets from Src until ctx is cancelled or the source is
// exhausted (ReadPacketData returning io.EOF, reported by pcap as a nil
// error with empty data on some platforms and as an error on others —
// callers reading from a live interface should cancel ctx rather than rely
// on EOF).
func (r *Reader) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		data, _, err := r.Src.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			if err == pcap.NextErrorNoMorePackets {
				return nil
			}
			return errors.Wrap(err, "ingress: read packet")
		}

		if len(data) == 0 {
			continue
		}

		if err := r.frame(ctx, data); err != nil {
			r.Log.Warn("dropping unparsable packet", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
	}
}

// frame decodes one captured frame down to its IPv4 datagram (skipping the
// link layer gopacket itself identified) and pushes it onto Out as a
// sequence of word.Word beats, the last carrying whatever partial-word tail
// remains.
func (r *Reader) frame(ctx context.Context, data []byte) error {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)

	netLayer := pkt.NetworkLayer()
	if netLayer == nil {
		return ErrNoNetworkLayer
	}

	if _, ok := netLayer.(*layers.IPv4); !ok {
		return ErrNoNetworkLayer
	}

	if pkt.TransportLayer() == nil {
		return ErrNoTransportLayer
	}
	if _, ok := pkt.TransportLayer().(*layers.TCP); !ok {
		return ErrNoTransportLayer
	}

	datagram := netLayer.LayerContents()
	datagram = append(datagram, netLayer.LayerPayload()...)

	return PushBytes(ctx, r.Out, datagram)
}

// PushBytes slices b into Width-byte word.Word beats and pushes them onto
// out, setting Last and a partial Keep mask on the final beat. Exported so
// tests (and any caller already holding raw datagram bytes rather than a
// live gopacket.Packet) can drive a pipeline without a capture source.
func PushBytes(ctx context.Context, out *queue.Queue[word.Word], b []byte) error {
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

		if err := out.Push(ctx, w); err != nil {
			return err
		}
	}

	if len(b) == 0 {
		return out.Push(ctx, word.Word{Last: true})
	}

	return nil
}
