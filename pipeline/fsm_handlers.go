package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/flowforge/rxtoe/logging"
	"github.com/flowforge/rxtoe/services"
	"github.com/flowforge/rxtoe/tcpmodel"
)

// handlePureAck implements spec.md §4.6.a.
func (s *TcpFsm) handlePureAck(ctx context.Context, p fsmPending) error {
	meta := p.item.Meta
	sid := p.item.SessionID

	allAcked := meta.AckNumb == p.txSar.NextByte
	s.Timers.Notify(ctx, sid, services.TimerClearRetransmit, allAcked)

	if !p.state.IsSynchronized() {
		if meta.Length > 0 {
			if err := s.DropOut.Push(ctx, true); err != nil {
				return err
			}
		}

		logging.Fsm.Warn("emitting RST for segment on unsynchronized session", zap.Uint32("session", sid))

		if err := s.EventsOut.Push(ctx, tcpmodel.NewRst(sid, meta.SeqNumb+uint32(meta.Length))); err != nil {
			return err
		}

		return s.writeBackUnchanged(ctx, p)
	}

	count := p.txSar.Count
	fastRetransmitted := p.txSar.FastRetransmitted
	congWindow := p.txSar.CongWindow

	duplicate := meta.AckNumb == p.txSar.PrevAck && p.txSar.PrevAck != p.txSar.NextByte && meta.Length == 0
	if duplicate {
		count++
	} else {
		s.Timers.Notify(ctx, sid, services.TimerClearProbe, false)

		if congWindow <= p.txSar.SlowstartThreshold-uint16(s.MSS) {
			congWindow += uint16(s.MSS)
		} else {
			congWindow += 365
		}
		if congWindow > 0xF7FF {
			congWindow = 0xF7FF
		}

		count = 0
		fastRetransmitted = false
	}

	if count == 3 {
		fastRetransmitted = true
	}

	if isAcceptableAck(p.txSar.PrevAck, meta.AckNumb, p.txSar.NextByte) {
		if err := s.TxSars.Write(ctx, services.TxSarRequest{
			SessionID:         sid,
			AckNumb:           meta.AckNumb,
			WinSize:           meta.WinSize,
			CongWindow:        congWindow,
			Count:             count,
			FastRetransmitted: fastRetransmitted,
		}); err != nil {
			return err
		}
	}

	if err := s.acceptData(ctx, p, 0); err != nil {
		return err
	}

	switch {
	case count == 3 && !p.txSar.FastRetransmitted:
		if err := s.EventsOut.Push(ctx, tcpmodel.NewSessionEvent(tcpmodel.EventRT, sid)); err != nil {
			return err
		}
	case meta.Length > 0:
		if err := s.EventsOut.Push(ctx, tcpmodel.NewSessionEvent(tcpmodel.EventAck, sid)); err != nil {
			return err
		}
	}

	newState := p.state
	if meta.AckNumb == p.txSar.NextByte {
		switch p.state {
		case tcpmodel.StateSynReceived:
			newState = tcpmodel.StateEstablished
		case tcpmodel.StateClosing:
			newState = tcpmodel.StateTimeWait
			s.Timers.Notify(ctx, sid, services.TimerSetClose, false)
		case tcpmodel.StateLastAck:
			newState = tcpmodel.StateClosed
		}
	}

	return s.States.Write(ctx, sid, newState)
}

// isAcceptableAck implements the modular-wraparound acceptable-ACK test of
// spec.md §4.6.a.
func isAcceptableAck(prevAck, ackNumb, nextByte uint32) bool {
	if nextByte >= prevAck {
		return ackNumb >= prevAck && ackNumb <= nextByte
	}

	return ackNumb >= prevAck || ackNumb <= nextByte
}

// handlePureSyn implements spec.md §4.6.b.
func (s *TcpFsm) handlePureSyn(ctx context.Context, p fsmPending) error {
	meta := p.item.Meta
	sid := p.item.SessionID

	switch {
	case p.state == tcpmodel.StateClosed || p.state == tcpmodel.StateListen || p.state == tcpmodel.StateSynSent:
		if err := s.RxSars.Write(ctx, services.RxSarRequest{SessionID: sid, Recvd: meta.SeqNumb + 1, InitAppd: true}); err != nil {
			return err
		}

		if err := s.TxSars.Write(ctx, services.TxSarRequest{SessionID: sid, WinSize: meta.WinSize, CongWindow: uint16(s.MSS)}); err != nil {
			return err
		}

		if err := s.EventsOut.Push(ctx, tcpmodel.NewSessionEvent(tcpmodel.EventSynAck, sid)); err != nil {
			return err
		}

		return s.States.Write(ctx, sid, tcpmodel.StateSynReceived)

	case p.state == tcpmodel.StateSynReceived:
		if meta.SeqNumb+1 == p.rxSar.Recvd {
			ev := tcpmodel.NewSessionEvent(tcpmodel.EventSynAck, sid)
			ev.Retransmit = true

			if err := s.EventsOut.Push(ctx, ev); err != nil {
				return err
			}

			return s.writeBackUnchanged(ctx, p)
		}

		logging.Fsm.Warn("emitting RST for unexpected retransmitted SYN", zap.Uint32("session", sid))

		if err := s.EventsOut.Push(ctx, tcpmodel.NewRst(sid, meta.SeqNumb+1)); err != nil {
			return err
		}

		return s.States.Write(ctx, sid, tcpmodel.StateClosed)

	case p.state.IsSynchronized():
		if err := s.EventsOut.Push(ctx, tcpmodel.NewSessionEvent(tcpmodel.EventAckNoDelay, sid)); err != nil {
			return err
		}

		return s.writeBackUnchanged(ctx, p)

	default:
		return s.writeBackUnchanged(ctx, p)
	}
}

// handleSynAck implements spec.md §4.6.c.
func (s *TcpFsm) handleSynAck(ctx context.Context, p fsmPending) error {
	meta := p.item.Meta
	sid := p.item.SessionID

	allAcked := meta.AckNumb == p.txSar.NextByte
	s.Timers.Notify(ctx, sid, services.TimerClearRetransmit, allAcked)

	if p.state == tcpmodel.StateSynSent && allAcked {
		if err := s.RxSars.Write(ctx, services.RxSarRequest{SessionID: sid, Recvd: meta.SeqNumb + 1, InitAppd: true}); err != nil {
			return err
		}

		if err := s.TxSars.Write(ctx, services.TxSarRequest{
			SessionID:  sid,
			AckNumb:    meta.AckNumb,
			WinSize:    meta.WinSize,
			CongWindow: uint16(s.MSS),
		}); err != nil {
			return err
		}

		if err := s.EventsOut.Push(ctx, tcpmodel.NewSessionEvent(tcpmodel.EventAckNoDelay, sid)); err != nil {
			return err
		}

		if err := s.OpenStatusOut.Push(ctx, tcpmodel.OpenStatus{SessionID: sid, Success: true}); err != nil {
			return err
		}

		return s.States.Write(ctx, sid, tcpmodel.StateEstablished)
	}

	if p.state == tcpmodel.StateSynSent {
		logging.Fsm.Warn("emitting RST for unacceptable SYN/ACK", zap.Uint32("session", sid))

		if err := s.EventsOut.Push(ctx, tcpmodel.NewRst(sid, meta.SeqNumb+uint32(meta.Length)+1)); err != nil {
			return err
		}

		return s.States.Write(ctx, sid, tcpmodel.StateClosed)
	}

	if err := s.EventsOut.Push(ctx, tcpmodel.NewSessionEvent(tcpmodel.EventAckNoDelay, sid)); err != nil {
		return err
	}

	return s.writeBackUnchanged(ctx, p)
}

// handleFinAck implements spec.md §4.6.d.
func (s *TcpFsm) handleFinAck(ctx context.Context, p fsmPending) error {
	meta := p.item.Meta
	sid := p.item.SessionID

	allAcked := meta.AckNumb == p.txSar.NextByte
	s.Timers.Notify(ctx, sid, services.TimerClearRetransmit, allAcked)

	inWindowFin := (p.state == tcpmodel.StateEstablished || p.state == tcpmodel.StateFinWait1 || p.state == tcpmodel.StateFinWait2) &&
		p.rxSar.Recvd == meta.SeqNumb

	if !inWindowFin {
		if err := s.EventsOut.Push(ctx, tcpmodel.NewSessionEvent(tcpmodel.EventAck, sid)); err != nil {
			return err
		}

		if meta.Length > 0 {
			if err := s.DropOut.Push(ctx, true); err != nil {
				return err
			}
		}

		return s.writeBackUnchanged(ctx, p)
	}

	if err := s.acceptData(ctx, p, 1); err != nil {
		return err
	}

	// acceptData skips zero-length segments, so a bare FIN's phantom byte
	// is applied here.
	if meta.Length == 0 {
		if err := s.RxSars.Write(ctx, services.RxSarRequest{SessionID: sid, Recvd: p.rxSar.Recvd + 1}); err != nil {
			return err
		}
	}

	s.Timers.Notify(ctx, sid, services.TimerClearProbe, false)

	if p.state == tcpmodel.StateEstablished {
		if err := s.EventsOut.Push(ctx, tcpmodel.NewSessionEvent(tcpmodel.EventFin, sid)); err != nil {
			return err
		}

		return s.closeSession(ctx, p, tcpmodel.StateLastAck)
	}

	newState := tcpmodel.StateClosing
	if allAcked {
		newState = tcpmodel.StateTimeWait
		s.Timers.Notify(ctx, sid, services.TimerSetClose, false)
	}

	if err := s.EventsOut.Push(ctx, tcpmodel.NewSessionEvent(tcpmodel.EventAck, sid)); err != nil {
		return err
	}

	return s.States.Write(ctx, sid, newState)
}

// handleOther implements spec.md §4.6.e.
func (s *TcpFsm) handleOther(ctx context.Context, p fsmPending) error {
	meta := p.item.Meta
	sid := p.item.SessionID

	if !meta.Rst {
		return s.writeBackUnchanged(ctx, p)
	}

	if p.state == tcpmodel.StateSynSent {
		if p.haveTx && meta.AckNumb == p.txSar.NextByte {
			if err := s.OpenStatusOut.Push(ctx, tcpmodel.OpenStatus{SessionID: sid, Success: false}); err != nil {
				return err
			}

			return s.closeSession(ctx, p, tcpmodel.StateClosed)
		}

		return s.writeBackUnchanged(ctx, p)
	}

	if meta.SeqNumb == p.rxSar.Recvd {
		return s.closeSession(ctx, p, tcpmodel.StateClosed)
	}

	return s.writeBackUnchanged(ctx, p)
}
