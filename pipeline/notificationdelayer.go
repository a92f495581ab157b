package pipeline

import (
	"context"

	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/tcpmodel"
)

// NotificationDelayer is pipeline stage 9 (spec.md §4.9). It withholds each
// data notification until the memory writer confirms every physical write
// it produced (one status if single access, two if doubleAccess) came back
// okay; zero-length (close/reset) notifications bypass the write-status
// wait entirely. The bounded wait itself is the NotifyIn queue's configured
// depth (>= 32, spec.md §5) rather than a second internal buffer.
type NotificationDelayer struct {
	NotifyIn        *queue.Queue[tcpmodel.AppNotification]
	DoubleAccessIn  *queue.Queue[bool]
	StatusIn        *queue.Queue[tcpmodel.MmStatus]

	Out *queue.Queue[tcpmodel.AppNotification]
}

// Run drives the stage until ctx is cancelled.
func (s *NotificationDelayer) Run(ctx context.Context) error {
	for {
		if err := s.step(ctx); err != nil {
			return err
		}
	}
}

func (s *NotificationDelayer) step(ctx context.Context) error {
	notif, ok, err := s.NotifyIn.Pop(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if notif.Length == 0 {
		return s.Out.Push(ctx, notif)
	}

	doubleAccess, ok, err := s.DoubleAccessIn.Pop(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	status, ok, err := s.StatusIn.Pop(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	okay := status.Okay

	if doubleAccess {
		status2, ok, err := s.StatusIn.Pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		okay = okay && status2.Okay
	}

	if !okay {
		// spec.md §7 "memory write failed": notification suppressed, loss
		// observed only through a later receive gap.
		return nil
	}

	return s.Out.Push(ctx, notif)
}
