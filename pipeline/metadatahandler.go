package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/flowforge/rxtoe/identity"
	"github.com/flowforge/rxtoe/logging"
	"github.com/flowforge/rxtoe/pipeline/metrics"
	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/services"
	"github.com/flowforge/rxtoe/tcpmodel"
)

type metadataPhase int

const (
	phaseMetaRead metadataPhase = iota
	phaseMetaLookup
)

// metadataPending carries a segment's parsed fields across the META/LOOKUP
// split (spec.md §4.5).
type metadataPending struct {
	meta       tcpmodel.EngineMetaData
	tuple      tcpmodel.FourTuple
	closedPort bool
	allowCreate bool
}

// MetadataHandler is pipeline stage 5 (spec.md §4.5): it queries the port
// table and the session-lookup service, emits a closed-port RST, and forwards
// per-session work items to the FSM.
//
// Both side services are modeled as synchronous calls (services.PortTable,
// services.SessionLookup) rather than request/response queues, but the
// stage still walks the spec's two-phase META/LOOKUP loop one step at a
// time: the port-table decision and any closed-port RST happen in META, the
// session-lookup call and its consequences happen in LOOKUP. The spec
// describes "transition to LOOKUP" for both the closed- and open-port
// branches of META; this implementation issues the lookup call in both
// cases (allowCreate forced false on a closed port) so the state machine
// stays uniform; a closed port never creates a session, and a hit on a
// closed port is not forwarded to TcpFsm, since META has already answered
// that segment with a RST and settled both of its drop flags.
type MetadataHandler struct {
	MetaIn      *queue.Queue[tcpmodel.EngineMetaData]
	TupleIn     *queue.Queue[tcpmodel.FourTuple]
	PortQueryIn *queue.Queue[uint16]

	Ports    services.PortTable
	Sessions services.SessionLookup

	EventsOut *queue.Queue[tcpmodel.OutboundEvent]
	DropOut   *queue.Queue[bool]
	WorkOut   *queue.Queue[tcpmodel.FsmWorkItem]

	// FsmDropOut is the same queue TcpFsm.DropOut feeds into PayloadDropper's
	// second drop-decision read. TcpFsm only ever sees a segment when the
	// session lookup hits (spec.md §4.5 "On hit, emit FsmWorkItem"); on a
	// miss, or a closed port, no FsmWorkItem is ever produced and TcpFsm
	// would never supply PayloadDropper's second flag. MetadataHandler
	// supplies it directly in that case so PayloadDropper's two-flag read
	// always completes.
	FsmDropOut *queue.Queue[bool]

	phase   metadataPhase
	pending metadataPending
}

// Run drives the stage until ctx is cancelled.
func (s *MetadataHandler) Run(ctx context.Context) error {
	for {
		if err := s.step(ctx); err != nil {
			return err
		}
	}
}

func (s *MetadataHandler) step(ctx context.Context) error {
	switch s.phase {
	case phaseMetaRead:
		return s.stepMeta(ctx)
	default:
		return s.stepLookup(ctx)
	}
}

func (s *MetadataHandler) stepMeta(ctx context.Context) error {
	meta, ok, err := s.MetaIn.Pop(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	tuple, ok, err := s.TupleIn.Pop(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	port, ok, err := s.PortQueryIn.Pop(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	open, err := s.Ports.IsOpen(ctx, port)
	if err != nil {
		return err
	}

	closedPort := !open && !meta.Rst
	if closedPort {
		metrics.SegmentsClosedPort.Inc()
		logging.Pipeline.Info("rejecting segment to closed port",
			zap.Uint16("dst_port", port), zap.String("tuple", identity.Ident(tuple)))

		seq := meta.SeqNumb + uint32(meta.Length)
		if meta.Syn || meta.Fin {
			seq++
		}

		if err := s.EventsOut.Push(ctx, tcpmodel.NewExtendedRst(tuple.Swapped(), seq)); err != nil {
			return err
		}

		if meta.Length > 0 {
			if err := s.DropOut.Push(ctx, true); err != nil {
				return err
			}
			if err := s.FsmDropOut.Push(ctx, true); err != nil {
				return err
			}
		}
	}

	pureSyn := meta.Syn && !meta.Rst && !meta.Fin

	s.pending = metadataPending{
		meta:        meta,
		tuple:       tuple,
		closedPort:  closedPort,
		allowCreate: open && pureSyn,
	}
	s.phase = phaseMetaLookup

	return nil
}

func (s *MetadataHandler) stepLookup(ctx context.Context) error {
	reply, err := s.Sessions.Lookup(ctx, s.pending.tuple, s.pending.allowCreate)
	if err != nil {
		return err
	}

	if reply.Hit && !s.pending.closedPort {
		item := tcpmodel.FsmWorkItem{
			SessionID:   reply.SessionID,
			SrcIPHost:   s.pending.tuple.SrcIP,
			DstPortHost: s.pending.tuple.DstPort,
			Meta:        s.pending.meta,
		}

		if err := s.WorkOut.Push(ctx, item); err != nil {
			return err
		}
	}

	if s.pending.meta.Length > 0 && !s.pending.closedPort {
		if err := s.DropOut.Push(ctx, !reply.Hit); err != nil {
			return err
		}

		if !reply.Hit {
			metrics.SegmentsSessionMiss.Inc()
			logging.Pipeline.Warn("dropping payload on session-lookup miss",
				zap.String("tuple", identity.Ident(s.pending.tuple)))

			if err := s.FsmDropOut.Push(ctx, true); err != nil {
				return err
			}
		}
	}

	s.phase = phaseMetaRead

	return nil
}
