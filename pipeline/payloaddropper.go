package pipeline

import (
	"context"

	"github.com/flowforge/rxtoe/pipeline/metrics"
	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/word"
)

type payloadDropperPhase int

const (
	phaseReadDrop1 payloadDropperPhase = iota
	phaseReadDrop2
	phasePayloadForward
	phasePayloadDrop
)

// PayloadDropper is pipeline stage 7 (spec.md §4.7): a four-state machine
// that, for each segment with payload, reads one drop decision from
// MetadataHandler and one from TcpFsm. Either true drops the segment; both
// false forwards it.
type PayloadDropper struct {
	DataIn  *queue.Queue[word.Word]
	Drop1In *queue.Queue[bool] // from MetadataHandler
	Drop2In *queue.Queue[bool] // from TcpFsm

	Out *queue.Queue[word.Word]

	phase     payloadDropperPhase
	dropFirst bool
}

// Run drives the stage until ctx is cancelled.
func (s *PayloadDropper) Run(ctx context.Context) error {
	for {
		if err := s.step(ctx); err != nil {
			return err
		}
	}
}

func (s *PayloadDropper) step(ctx context.Context) error {
	switch s.phase {
	case phaseReadDrop1:
		drop, ok, err := s.Drop1In.Pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		s.dropFirst = drop
		s.phase = phaseReadDrop2

		return nil

	case phaseReadDrop2:
		drop, ok, err := s.Drop2In.Pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if s.dropFirst || drop {
			s.phase = phasePayloadDrop
		} else {
			s.phase = phasePayloadForward
		}

		return nil

	case phasePayloadForward:
		w, ok, err := s.DataIn.Pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		metrics.StageWords.WithLabelValues("payload_dropper").Inc()

		if err := s.Out.Push(ctx, w); err != nil {
			return err
		}

		if w.Last {
			s.phase = phaseReadDrop1
		}

		return nil

	default: // phasePayloadDrop
		w, ok, err := s.DataIn.Pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		metrics.StageWords.WithLabelValues("payload_dropper").Inc()

		if w.Last {
			s.phase = phaseReadDrop1
		}

		return nil
	}
}
