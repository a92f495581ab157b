// Package pipeline wires the nine concurrent stages of spec.md §2 together
// with the bounded queues of §5 and the EventMerger of §2, and drives their
// lifecycle.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/rxtoe/config"
	"github.com/flowforge/rxtoe/dump"
	"github.com/flowforge/rxtoe/logging"
	"github.com/flowforge/rxtoe/pipeline/metrics"
	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/services"
	"github.com/flowforge/rxtoe/tcpmodel"
	"github.com/flowforge/rxtoe/word"
)

// queueDepthSamplePeriod is how often Run samples metrics.QueueDepth when
// cfg.MetricsEnabled, matching a typical prometheus scrape interval.
const queueDepthSamplePeriod = time.Second

// Pipeline owns every stage, every inter-stage queue, and the externally
// exposed ingress/egress queues.
type Pipeline struct {
	cfg config.Config

	lengthExtract       *LengthExtract
	pseudoHeaderInsert  *PseudoHeaderInsert
	checksumAndParse    *ChecksumAndParse
	invalidDropper      *InvalidDropper
	metadataHandler     *MetadataHandler
	tcpFsm              *TcpFsm
	payloadDropper      *PayloadDropper
	memWriter           *MemWriter
	notificationDelayer *NotificationDelayer
	eventMerger         *EventMerger

	// IngressIn is the pipeline's entry point: a stream of 64-bit AXI-like
	// words carrying back-to-back IPv4/TCP datagrams (spec.md §6 Ingress).
	IngressIn *queue.Queue[word.Word]

	// EventsOut, NotificationsOut and OpenStatusOut are the pipeline's three
	// egress streams (spec.md §6 Egress events/app notifications, §4.6.c/e
	// open-status channel).
	EventsOut       *queue.Queue[tcpmodel.OutboundEvent]
	NotificationsOut *queue.Queue[tcpmodel.AppNotification]
	OpenStatusOut   *queue.Queue[tcpmodel.OpenStatus]
}

// Services bundles the external collaborators spec.md §1 places out of
// scope (the port table, session lookup, state/RX-SAR/TX-SAR tables,
// timers, and the memory-write backend).
type Services struct {
	Ports    services.PortTable
	Sessions services.SessionLookup
	States   services.StateTable
	RxSars   services.RxSar
	TxSars   services.TxSar
	Timers   services.Timers
	MemWriter services.MemWriter
}

// New wires all nine stages and the EventMerger using cfg's queue depths
// (spec.md §5 minima) and the given external collaborators.
func New(cfg config.Config, svc Services) *Pipeline {
	data := cfg.DataQueueDepth
	meta := cfg.MetaQueueDepth
	checksumBuf := cfg.ChecksumBufferDepth
	notif := cfg.NotificationQueueDepth

	p := &Pipeline{cfg: cfg}

	p.IngressIn = queue.New[word.Word](data)

	stage1Out := queue.New[word.Word](data)
	stage1LenOut := queue.New[uint16](meta)

	p.lengthExtract = &LengthExtract{In: p.IngressIn, Out: stage1Out, LenOut: stage1LenOut}

	stage2Out := queue.New[word.Word](data)

	p.pseudoHeaderInsert = &PseudoHeaderInsert{In: stage1Out, LenIn: stage1LenOut, Out: stage2Out}

	payloadOut := queue.New[word.Word](checksumBuf)
	validOut := queue.New[bool](meta)
	metaOut := queue.New[tcpmodel.EngineMetaData](meta)
	tupleOut := queue.New[tcpmodel.FourTuple](meta)
	portOut := queue.New[uint16](meta)

	p.checksumAndParse = &ChecksumAndParse{
		In:         stage2Out,
		PayloadOut: payloadOut,
		ValidOut:   validOut,
		MetaOut:    metaOut,
		TupleOut:   tupleOut,
		PortOut:    portOut,
	}

	stage4Out := queue.New[word.Word](checksumBuf)

	p.invalidDropper = &InvalidDropper{ValidIn: validOut, DataIn: payloadOut, Out: stage4Out}

	metaEventsOut := queue.New[tcpmodel.OutboundEvent](data)
	drop1Out := queue.New[bool](meta)
	workOut := queue.New[tcpmodel.FsmWorkItem](data)

	fsmDropOut := queue.New[bool](meta)

	p.metadataHandler = &MetadataHandler{
		MetaIn:      metaOut,
		TupleIn:     tupleOut,
		PortQueryIn: portOut,
		Ports:       svc.Ports,
		Sessions:    svc.Sessions,
		EventsOut:   metaEventsOut,
		DropOut:     drop1Out,
		WorkOut:     workOut,
		FsmDropOut:  fsmDropOut,
	}

	fsmEventsOut := queue.New[tcpmodel.OutboundEvent](data)
	notifyOut := queue.New[tcpmodel.AppNotification](notif)
	memCmdOut := queue.New[tcpmodel.MemCommand](data)
	openStatusOut := queue.New[tcpmodel.OpenStatus](meta)

	p.tcpFsm = &TcpFsm{
		WorkIn:        workOut,
		States:        svc.States,
		RxSars:        svc.RxSars,
		TxSars:        svc.TxSars,
		Timers:        svc.Timers,
		EventsOut:     fsmEventsOut,
		DropOut:       fsmDropOut,
		NotifyOut:     notifyOut,
		MemCmdOut:     memCmdOut,
		OpenStatusOut: openStatusOut,
		MSS:           cfg.MSS,
	}

	stage7Out := queue.New[word.Word](checksumBuf)

	p.payloadDropper = &PayloadDropper{
		DataIn:  stage4Out,
		Drop1In: drop1Out,
		Drop2In: fsmDropOut,
		Out:     stage7Out,
	}

	statusOut := queue.New[tcpmodel.MmStatus](notif)
	doubleAccessOut := queue.New[bool](notif)

	p.memWriter = &MemWriter{
		CmdIn:           memCmdOut,
		DataIn:          stage7Out,
		Backend:         svc.MemWriter,
		StatusOut:       statusOut,
		DoubleAccessOut: doubleAccessOut,
		Dump:            dump.New(cfg.DebugCaptureDir, logging.Pipeline),
	}

	notificationsOut := queue.New[tcpmodel.AppNotification](notif)

	p.notificationDelayer = &NotificationDelayer{
		NotifyIn:       notifyOut,
		DoubleAccessIn: doubleAccessOut,
		StatusIn:       statusOut,
		Out:            notificationsOut,
	}

	eventsOut := queue.New[tcpmodel.OutboundEvent](data)

	p.eventMerger = &EventMerger{MetadataIn: metaEventsOut, FsmIn: fsmEventsOut, Out: eventsOut}

	p.EventsOut = eventsOut
	p.NotificationsOut = notificationsOut
	p.OpenStatusOut = openStatusOut

	return p
}

// depthReporter is satisfied by every *queue.Queue[T] regardless of T, so
// namedQueues can hold queues of different element types in one map.
type depthReporter interface{ Len() int }

// namedQueues lists the inter-stage queues worth sampling for
// metrics.QueueDepth: the ones spanning a producer/consumer pair that can
// run at different rates, i.e. every suspension point spec.md §5 names.
func (p *Pipeline) namedQueues() map[string]depthReporter {
	return map[string]depthReporter{
		"ingress":             p.IngressIn,
		"length_extract_out":  p.lengthExtract.Out,
		"pseudo_header_out":   p.pseudoHeaderInsert.Out,
		"checksum_payload":    p.checksumAndParse.PayloadOut,
		"invalid_dropper_out": p.invalidDropper.Out,
		"fsm_work":            p.tcpFsm.WorkIn,
		"payload_dropper_out": p.payloadDropper.Out,
		"mem_writer_cmd":      p.memWriter.CmdIn,
		"notification_out":    p.notificationDelayer.Out,
		"events_out":          p.EventsOut,
	}
}

// SampleQueueDepths sets metrics.QueueDepth for every queue namedQueues
// reports. Run calls this every queueDepthSamplePeriod when
// cfg.MetricsEnabled; it is also safe to call directly from tests.
func (p *Pipeline) SampleQueueDepths() {
	for name, q := range p.namedQueues() {
		metrics.QueueDepth.WithLabelValues(name).Set(float64(q.Len()))
	}
}

// sampleQueueDepthsLoop samples on queueDepthSamplePeriod until ctx is
// cancelled.
func (p *Pipeline) sampleQueueDepthsLoop(ctx context.Context) {
	ticker := time.NewTicker(queueDepthSamplePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.SampleQueueDepths()
		case <-ctx.Done():
			return
		}
	}
}

// stageRunners returns every stage's Run method so Run can launch them
// uniformly.
func (p *Pipeline) stageRunners() []func(context.Context) error {
	return []func(context.Context) error{
		p.lengthExtract.Run,
		p.pseudoHeaderInsert.Run,
		p.checksumAndParse.Run,
		p.invalidDropper.Run,
		p.metadataHandler.Run,
		p.tcpFsm.Run,
		p.payloadDropper.Run,
		p.memWriter.Run,
		p.notificationDelayer.Run,
		p.eventMerger.Run,
	}
}

// Run launches every stage on its own goroutine and blocks until ctx is
// cancelled or a stage returns a non-context error, in which case the first
// such error is returned after all stages have exited.
func (p *Pipeline) Run(ctx context.Context) error {
	runners := p.stageRunners()

	if p.cfg.MetricsEnabled {
		go p.sampleQueueDepthsLoop(ctx)
	}

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, len(runners))

	for _, run := range runners {
		run := run

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(stageCtx); err != nil && stageCtx.Err() == nil {
				errs <- err
				cancel()
			}
		}()
	}

	wg.Wait()
	close(errs)

	if err, ok := <-errs; ok {
		return err
	}

	return ctx.Err()
}
