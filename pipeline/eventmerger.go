package pipeline

import (
	"context"
	"sync"

	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/tcpmodel"
)

// EventMerger multiplexes the outbound events MetadataHandler and TcpFsm
// each produce into the single outbound event stream (spec.md §2 "A small
// EventMerger multiplexes events from stages 5 and 6").
//
// The two sources are independent producers with no relative ordering
// requirement between them (spec.md §5 only promises per-session ordering
// within the FSM's own output), so each is drained on its own goroutine into
// a shared Out queue rather than through a single select loop that would
// arbitrarily starve one source.
type EventMerger struct {
	MetadataIn *queue.Queue[tcpmodel.OutboundEvent]
	FsmIn      *queue.Queue[tcpmodel.OutboundEvent]
	Out        *queue.Queue[tcpmodel.OutboundEvent]
}

// Run drains both inputs until ctx is cancelled or either input errors.
func (m *EventMerger) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- m.drain(ctx, m.MetadataIn)
	}()
	go func() {
		defer wg.Done()
		errs <- m.drain(ctx, m.FsmIn)
	}()

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *EventMerger) drain(ctx context.Context, in *queue.Queue[tcpmodel.OutboundEvent]) error {
	for {
		ev, ok, err := in.Pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if err := m.Out.Push(ctx, ev); err != nil {
			return err
		}
	}
}
