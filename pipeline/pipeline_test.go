package pipeline

import (
	"context"
	"testing"

	"github.com/flowforge/rxtoe/config"
	"github.com/flowforge/rxtoe/services/fake"
	"github.com/flowforge/rxtoe/tcpmodel"
)

func newTestPipeline() (*Pipeline, *fake.PortTable, *fake.SessionTable) {
	ports := fake.NewPortTable()
	sessions := fake.NewSessionTable()

	p := New(config.Default(), Services{
		Ports:     ports,
		Sessions:  sessions,
		States:    fake.NewStateTable(),
		RxSars:    fake.NewRxSarTable(),
		TxSars:    fake.NewTxSarTable(),
		Timers:    fake.NewTimers(),
		MemWriter: fake.NewMemWriter(),
	})

	return p, ports, sessions
}

// TestPipelineClosedPortEmitsRst drives a full datagram to a closed port
// through every stage and checks the RST spec.md §4.5 describes comes out
// the other side, and that no session is created for it.
func TestPipelineClosedPortEmitsRst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, _, sessions := newTestPipeline()
	go p.Run(ctx)

	srcIP, dstIP := uint32(0x0A000001), uint32(0x0A000002)
	srcPort, dstPort := uint16(5000), uint16(81) // port 81 never opened
	datagram := buildIPv4TCPDatagram(srcIP, dstIP, srcPort, dstPort, 42, 0, 0x02 /* SYN */, 4096, nil)

	pushBytesAsWords(t, ctx, p.IngressIn, datagram)

	ev, ok, err := p.EventsOut.Pop(ctx)
	if err != nil || !ok {
		t.Fatalf("EventsOut.Pop: (%v, %v)", ok, err)
	}
	if ev.Kind != tcpmodel.EventRst || !ev.Extended {
		t.Fatalf("event = %+v, want an extended RST", ev)
	}
	want := tcpmodel.FourTuple{SrcIP: srcIP, DstIP: dstIP, SrcPort: srcPort, DstPort: dstPort}.Swapped()
	if ev.Tuple != want {
		t.Errorf("event.Tuple = %+v, want %+v", ev.Tuple, want)
	}

	if sessions.Size() != 0 {
		t.Errorf("sessions.Size() = %d, want 0 (a closed-port SYN must not create a session)", sessions.Size())
	}
}

// TestPipelinePassiveOpenHandshake drives a pure SYN at an open port through
// the full pipeline and checks a SYN/ACK event and a new session come out.
func TestPipelinePassiveOpenHandshake(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, ports, sessions := newTestPipeline()
	ports.Open(80)
	go p.Run(ctx)

	srcIP, dstIP := uint32(0x0A000003), uint32(0x0A000004)
	srcPort, dstPort := uint16(6000), uint16(80)
	datagram := buildIPv4TCPDatagram(srcIP, dstIP, srcPort, dstPort, 1000, 0, 0x02 /* SYN */, 65535, nil)

	pushBytesAsWords(t, ctx, p.IngressIn, datagram)

	ev, ok, err := p.EventsOut.Pop(ctx)
	if err != nil || !ok {
		t.Fatalf("EventsOut.Pop: (%v, %v)", ok, err)
	}
	if ev.Kind != tcpmodel.EventSynAck {
		t.Fatalf("event = %+v, want SYN_ACK", ev)
	}

	if sessions.Size() != 1 {
		t.Fatalf("sessions.Size() = %d, want 1", sessions.Size())
	}
	tuple := tcpmodel.FourTuple{SrcIP: srcIP, DstIP: dstIP, SrcPort: srcPort, DstPort: dstPort}
	if _, ok := sessions.Tuple(ev.SessionID); !ok {
		t.Fatalf("no session recorded for id %d", ev.SessionID)
	} else if got, _ := sessions.Tuple(ev.SessionID); got != tuple {
		t.Errorf("session tuple = %+v, want %+v", got, tuple)
	}
}
