package pipeline

import (
	"context"
	"testing"

	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/services/fake"
	"github.com/flowforge/rxtoe/tcpmodel"
)

type fsmHarness struct {
	fsm    *TcpFsm
	states *fake.StateTable
	rxSars *fake.RxSarTable
	txSars *fake.TxSarTable
	timers *fake.Timers
}

func newFsmHarness() *fsmHarness {
	h := &fsmHarness{
		states: fake.NewStateTable(),
		rxSars: fake.NewRxSarTable(),
		txSars: fake.NewTxSarTable(),
		timers: fake.NewTimers(),
	}
	h.fsm = &TcpFsm{
		WorkIn: queue.New[tcpmodel.FsmWorkItem](4),

		States: h.states,
		RxSars: h.rxSars,
		TxSars: h.txSars,
		Timers: h.timers,

		EventsOut:     queue.New[tcpmodel.OutboundEvent](8),
		DropOut:       queue.New[bool](8),
		NotifyOut:     queue.New[tcpmodel.AppNotification](8),
		MemCmdOut:     queue.New[tcpmodel.MemCommand](8),
		OpenStatusOut: queue.New[tcpmodel.OpenStatus](4),

		MSS: 1460,
	}
	return h
}

func TestFsmPassiveOpenPureSynOnClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newFsmHarness()
	h.states.Seed(1, tcpmodel.StateClosed)
	go h.fsm.Run(ctx)

	item := tcpmodel.FsmWorkItem{
		SessionID: 1,
		Meta:      tcpmodel.EngineMetaData{Syn: true, SeqNumb: 5000, WinSize: 4096},
	}
	if err := h.fsm.WorkIn.Push(ctx, item); err != nil {
		t.Fatal(err)
	}

	ev, ok, err := h.fsm.EventsOut.Pop(ctx)
	if err != nil || !ok {
		t.Fatalf("EventsOut.Pop: (%v, %v)", ok, err)
	}
	if ev.Kind != tcpmodel.EventSynAck || ev.SessionID != 1 {
		t.Errorf("event = %+v, want a SYN/ACK for session 1", ev)
	}

	// RxSars.Write happens before EventsOut.Push in handlePureSyn, so by
	// the time the event above is observed the RX-SAR write has landed.
	rx, err := h.rxSars.Read(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rx.Recvd != item.Meta.SeqNumb+1 {
		t.Errorf("rxSar.Recvd = %d, want %d (ISN+1)", rx.Recvd, item.Meta.SeqNumb+1)
	}
}

// TestFsmThirdHandshakeAckEstablishesConnection drives SYN-RECEIVED through
// the third-handshake ACK and then a subsequent in-order data segment; the
// DropOut produced for the second segment can only happen after the first
// segment's full handling (including its state write-back) completed, since
// TcpFsm processes work items strictly one at a time.
func TestFsmThirdHandshakeAckEstablishesConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newFsmHarness()
	const sid = uint32(7)
	h.states.Seed(sid, tcpmodel.StateSynReceived)
	h.rxSars.Seed(sid, tcpmodel.RxSarEntry{Recvd: 5001, Appd: 5001})
	h.txSars.Seed(sid, tcpmodel.RxTxSarReply{
		NextByte:           9001,
		PrevAck:            9000,
		CongWindow:         1460,
		SlowstartThreshold: 0xFFFF,
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.fsm.Run(ctx)
	}()

	ack := tcpmodel.FsmWorkItem{
		SessionID: sid,
		Meta:      tcpmodel.EngineMetaData{Ack: true, SeqNumb: 5001, AckNumb: 9001, WinSize: 8192},
	}
	if err := h.fsm.WorkIn.Push(ctx, ack); err != nil {
		t.Fatal(err)
	}

	data := tcpmodel.FsmWorkItem{
		SessionID: sid,
		Meta:      tcpmodel.EngineMetaData{Ack: true, SeqNumb: 5001, AckNumb: 9001, WinSize: 8192, Length: 10},
	}
	if err := h.fsm.WorkIn.Push(ctx, data); err != nil {
		t.Fatal(err)
	}

	// A third, unrelated probe segment: TcpFsm processes WorkIn strictly
	// one item at a time, so observing this segment's DropOut proves the
	// data segment above (including its state write-back) already
	// finished. The probe's own write-back is waited for further down.
	probe := tcpmodel.FsmWorkItem{
		SessionID: sid,
		Meta:      tcpmodel.EngineMetaData{Ack: true, SeqNumb: 5011, AckNumb: 9001, WinSize: 8192, Length: 5},
	}
	if err := h.fsm.WorkIn.Push(ctx, probe); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		drop, ok, err := h.fsm.DropOut.Pop(ctx)
		if err != nil || !ok || drop {
			t.Fatalf("DropOut[%d] = (%v, %v, %v), want (false, true, nil) for in-order data", i, drop, ok, err)
		}
	}

	// Each data segment's ACK event is pushed just before its state
	// write-back; after both are seen, stop TcpFsm and wait for Run to
	// return, so the probe's write-back has released the session's lock
	// before the Read below takes it.
	for i := 0; i < 2; i++ {
		if _, ok, err := h.fsm.EventsOut.Pop(ctx); err != nil || !ok {
			t.Fatalf("EventsOut[%d].Pop: (%v, %v)", i, ok, err)
		}
	}
	cancel()
	<-done

	st, err := h.states.Read(ctx, sid)
	if err != nil {
		t.Fatal(err)
	}
	h.states.Write(ctx, sid, st) // release the lock this Read took

	if st != tcpmodel.StateEstablished {
		t.Errorf("state = %v, want ESTABLISHED after the third-handshake ACK", st)
	}
}

// TestFsmPureAckOnUnsynchronizedSessionOnlyDropsPayload exercises
// handlePureAck's unsynchronized-state branch: a zero-length ACK must not
// push a stray drop decision onto DropOut, since PayloadDropper only reads
// that queue once per packet that actually carries payload words and a
// stray push would desync it against the next payload-carrying segment.
func TestFsmPureAckOnUnsynchronizedSessionOnlyDropsPayload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newFsmHarness()
	const sid = uint32(9)
	h.states.Seed(sid, tcpmodel.StateTimeWait)
	h.txSars.Seed(sid, tcpmodel.RxTxSarReply{NextByte: 100, PrevAck: 100})
	go h.fsm.Run(ctx)

	zeroLength := tcpmodel.FsmWorkItem{
		SessionID: sid,
		Meta:      tcpmodel.EngineMetaData{Ack: true, SeqNumb: 200, AckNumb: 100, WinSize: 4096},
	}
	if err := h.fsm.WorkIn.Push(ctx, zeroLength); err != nil {
		t.Fatal(err)
	}

	withPayload := tcpmodel.FsmWorkItem{
		SessionID: sid,
		Meta:      tcpmodel.EngineMetaData{Ack: true, SeqNumb: 200, AckNumb: 100, WinSize: 4096, Length: 10},
	}
	if err := h.fsm.WorkIn.Push(ctx, withPayload); err != nil {
		t.Fatal(err)
	}

	// DropOut.Push (if any) happens strictly before EventsOut.Push within
	// handlePureAck's unsynchronized branch, and TcpFsm handles WorkIn one
	// item at a time, so observing both RST events proves both items'
	// DropOut decisions (if any) have already landed.
	for i := 0; i < 2; i++ {
		ev, ok, err := h.fsm.EventsOut.Pop(ctx)
		if err != nil || !ok || ev.Kind != tcpmodel.EventRst {
			t.Fatalf("EventsOut.Pop[%d] = (%+v, %v, %v), want an RST", i, ev, ok, err)
		}
	}

	drop, ok := h.fsm.DropOut.TryPop()
	if !ok || !drop {
		t.Fatalf("DropOut = (%v, %v), want (true, true) from the payload-carrying segment", drop, ok)
	}

	if _, ok := h.fsm.DropOut.TryPop(); ok {
		t.Error("DropOut had a second entry, want none — the zero-length segment must not have pushed one")
	}
}
