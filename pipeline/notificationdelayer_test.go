package pipeline

import (
	"context"
	"testing"

	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/tcpmodel"
)

func newNotificationDelayer() *NotificationDelayer {
	return &NotificationDelayer{
		NotifyIn:       queue.New[tcpmodel.AppNotification](4),
		DoubleAccessIn: queue.New[bool](4),
		StatusIn:       queue.New[tcpmodel.MmStatus](4),
		Out:            queue.New[tcpmodel.AppNotification](4),
	}
}

func TestNotificationDelayerPassesZeroLengthWithoutWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newNotificationDelayer()
	go s.Run(ctx)

	notif := tcpmodel.AppNotification{SessionID: 1, Closed: true}
	if err := s.NotifyIn.Push(ctx, notif); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Out.Pop(ctx)
	if err != nil || !ok || got != notif {
		t.Fatalf("Out.Pop = (%+v, %v, %v), want (%+v, true, nil)", got, ok, err, notif)
	}
}

func TestNotificationDelayerWaitsForBothStatusesOnDoubleAccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newNotificationDelayer()
	go s.Run(ctx)

	notif := tcpmodel.AppNotification{SessionID: 1, Length: 10}
	if err := s.NotifyIn.Push(ctx, notif); err != nil {
		t.Fatal(err)
	}
	if err := s.DoubleAccessIn.Push(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := s.StatusIn.Push(ctx, tcpmodel.MmStatus{Okay: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.StatusIn.Push(ctx, tcpmodel.MmStatus{Okay: true}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Out.Pop(ctx)
	if err != nil || !ok || got != notif {
		t.Fatalf("Out.Pop = (%+v, %v, %v), want (%+v, true, nil)", got, ok, err, notif)
	}
}

func TestNotificationDelayerSuppressesOnFailedWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newNotificationDelayer()
	go s.Run(ctx)

	if err := s.NotifyIn.Push(ctx, tcpmodel.AppNotification{SessionID: 1, Length: 10}); err != nil {
		t.Fatal(err)
	}
	if err := s.DoubleAccessIn.Push(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := s.StatusIn.Push(ctx, tcpmodel.MmStatus{Okay: false}); err != nil {
		t.Fatal(err)
	}

	// Follow with a notification that must succeed, proving the failed one
	// above produced nothing on Out.
	ok2 := tcpmodel.AppNotification{SessionID: 1, Closed: true}
	if err := s.NotifyIn.Push(ctx, ok2); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Out.Pop(ctx)
	if err != nil || !ok || got != ok2 {
		t.Fatalf("Out.Pop = (%+v, %v, %v), want (%+v, true, nil) — the failed write's notification must be suppressed", got, ok, err, ok2)
	}
}
