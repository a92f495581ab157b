package pipeline

import (
	"context"

	"github.com/flowforge/rxtoe/logging"
	"github.com/flowforge/rxtoe/pipeline/metrics"
	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/word"
)

type invalidDropperPhase int

const (
	phaseReadValid invalidDropperPhase = iota
	phaseForward
	phaseDrop
)

// InvalidDropper is pipeline stage 4 (spec.md §4.4): a three-state machine
// that reads one valid flag per payload-carrying segment and either forwards
// or discards that segment's data words. Control segments never produce a
// valid flag or data words, so the stage never blocks on them.
type InvalidDropper struct {
	ValidIn *queue.Queue[bool]
	DataIn  *queue.Queue[word.Word]
	Out     *queue.Queue[word.Word]

	phase invalidDropperPhase
}

// Run drives the stage until ctx is cancelled.
func (s *InvalidDropper) Run(ctx context.Context) error {
	for {
		if err := s.step(ctx); err != nil {
			return err
		}
	}
}

func (s *InvalidDropper) step(ctx context.Context) error {
	switch s.phase {
	case phaseReadValid:
		valid, ok, err := s.ValidIn.Pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if valid {
			s.phase = phaseForward
		} else {
			metrics.SegmentsChecksumInvalid.Inc()
			logging.Pipeline.Debug("dropping segment with invalid checksum")

			s.phase = phaseDrop
		}

		return nil

	case phaseForward:
		w, ok, err := s.DataIn.Pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		metrics.StageWords.WithLabelValues("invalid_dropper").Inc()

		if err := s.Out.Push(ctx, w); err != nil {
			return err
		}

		if w.Last {
			s.phase = phaseReadValid
		}

		return nil

	default: // phaseDrop
		w, ok, err := s.DataIn.Pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		metrics.StageWords.WithLabelValues("invalid_dropper").Inc()

		if w.Last {
			s.phase = phaseReadValid
		}

		return nil
	}
}
