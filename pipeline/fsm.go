package pipeline

import (
	"context"

	"github.com/flowforge/rxtoe/config"
	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/services"
	"github.com/flowforge/rxtoe/tcpmodel"
)

type fsmPhase int

const (
	phaseFsmLoad fsmPhase = iota
	phaseFsmTransition
)

// fsmPending carries one work item's LOAD-phase reads across to TRANSITION
// (spec.md §4.6 LOAD/TRANSITION split).
type fsmPending struct {
	item    tcpmodel.FsmWorkItem
	state   tcpmodel.State
	rxSar   tcpmodel.RxSarEntry
	txSar   tcpmodel.RxTxSarReply
	haveTx  bool
}

// TcpFsm is pipeline stage 6 (spec.md §4.6), the connection state machine.
// State/RX-SAR/TX-SAR are synchronous services.* calls rather than queues —
// the LOAD/TRANSITION split is kept anyway so the stage's shape matches the
// other queue-driven stages and so a future async service swap doesn't
// change the control flow.
type TcpFsm struct {
	WorkIn *queue.Queue[tcpmodel.FsmWorkItem]

	States services.StateTable
	RxSars services.RxSar
	TxSars services.TxSar
	Timers services.Timers

	EventsOut      *queue.Queue[tcpmodel.OutboundEvent]
	DropOut        *queue.Queue[bool]
	NotifyOut      *queue.Queue[tcpmodel.AppNotification]
	MemCmdOut      *queue.Queue[tcpmodel.MemCommand]
	OpenStatusOut  *queue.Queue[tcpmodel.OpenStatus]

	MSS int

	phase   fsmPhase
	pending fsmPending
}

// Run drives the stage until ctx is cancelled.
func (s *TcpFsm) Run(ctx context.Context) error {
	if s.MSS == 0 {
		s.MSS = config.MSS
	}

	for {
		if err := s.step(ctx); err != nil {
			return err
		}
	}
}

func (s *TcpFsm) step(ctx context.Context) error {
	switch s.phase {
	case phaseFsmLoad:
		return s.stepLoad(ctx)
	default:
		return s.stepTransition(ctx)
	}
}

func (s *TcpFsm) stepLoad(ctx context.Context) error {
	item, ok, err := s.WorkIn.Pop(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	state, err := s.States.Read(ctx, item.SessionID)
	if err != nil {
		return err
	}

	rxSar, err := s.RxSars.Read(ctx, item.SessionID)
	if err != nil {
		return err
	}

	p := fsmPending{item: item, state: state, rxSar: rxSar}

	if item.Meta.Ack {
		txSar, err := s.TxSars.Read(ctx, item.SessionID)
		if err != nil {
			return err
		}

		p.txSar = txSar
		p.haveTx = true
	}

	s.pending = p
	s.phase = phaseFsmTransition

	return nil
}

func (s *TcpFsm) stepTransition(ctx context.Context) error {
	p := s.pending
	bits := p.item.Meta.ControlBits()

	var err error
	switch bits {
	case tcpmodel.BitsPureAck:
		err = s.handlePureAck(ctx, p)
	case tcpmodel.BitsPureSyn:
		err = s.handlePureSyn(ctx, p)
	case tcpmodel.BitsSynAck:
		err = s.handleSynAck(ctx, p)
	case tcpmodel.BitsFinAck:
		err = s.handleFinAck(ctx, p)
	default:
		err = s.handleOther(ctx, p)
	}

	if err != nil {
		return err
	}

	s.phase = phaseFsmLoad

	return nil
}

// writeBackUnchanged releases the state-table lock without changing state —
// the defensive write-back spec.md §4.6.e and §9 call for on every branch
// that doesn't otherwise transition.
func (s *TcpFsm) writeBackUnchanged(ctx context.Context, p fsmPending) error {
	return s.States.Write(ctx, p.item.SessionID, p.state)
}

// acceptData applies the shared data-delivery test of §4.6.a/d: in-order,
// enough free space. On acceptance it advances RX-SAR, emits the mem-write
// command and the data notification, and tells PayloadDropper to keep the
// segment; otherwise it tells PayloadDropper to drop it.
func (s *TcpFsm) acceptData(ctx context.Context, p fsmPending, extraAdvance uint32) error {
	meta := p.item.Meta
	if meta.Length == 0 {
		return nil
	}

	inOrder := meta.SeqNumb == p.rxSar.Recvd
	freeSpace := p.rxSar.FreeSpace()

	if inOrder && freeSpace > meta.Length {
		newRecvd := p.rxSar.Recvd + uint32(meta.Length) + extraAdvance

		if err := s.RxSars.Write(ctx, services.RxSarRequest{SessionID: p.item.SessionID, Recvd: newRecvd}); err != nil {
			return err
		}

		cmd := tcpmodel.NewMemCommand(p.item.SessionID, meta.SeqNumb, meta.Length)
		if err := s.MemCmdOut.Push(ctx, cmd); err != nil {
			return err
		}

		notif := tcpmodel.AppNotification{
			SessionID:   p.item.SessionID,
			Length:      meta.Length,
			SrcIPHost:   p.item.SrcIPHost,
			DstPortHost: p.item.DstPortHost,
		}
		if err := s.NotifyOut.Push(ctx, notif); err != nil {
			return err
		}

		return s.DropOut.Push(ctx, false)
	}

	return s.DropOut.Push(ctx, true)
}

// closeSession notifies the application that the session ended (FIN or
// RST-abort) and writes newState back to the state table.
func (s *TcpFsm) closeSession(ctx context.Context, p fsmPending, newState tcpmodel.State) error {
	if err := s.NotifyOut.Push(ctx, tcpmodel.AppNotification{SessionID: p.item.SessionID, Closed: true}); err != nil {
		return err
	}

	return s.States.Write(ctx, p.item.SessionID, newState)
}
