package ingress

import (
	"context"
	"testing"

	"github.com/flowforge/rxtoe/queue"
	"github.com/flowforge/rxtoe/word"
)

func TestPushBytesChunksAndMarksLast(t *testing.T) {
	ctx := context.Background()
	out := queue.New[word.Word](8)

	b := make([]byte, word.Width+3)
	for i := range b {
		b[i] = byte(i)
	}

	if err := PushBytes(ctx, out, b); err != nil {
		t.Fatalf("PushBytes: %v", err)
	}

	w1, ok, err := out.Pop(ctx)
	if err != nil || !ok {
		t.Fatalf("Pop w1: (%v, %v)", ok, err)
	}
	if w1.Last || w1.Keep != 0xFF {
		t.Errorf("w1 = %+v, want a full non-last word", w1)
	}

	w2, ok, err := out.Pop(ctx)
	if err != nil || !ok {
		t.Fatalf("Pop w2: (%v, %v)", ok, err)
	}
	if !w2.Last || w2.NumValid() != 3 {
		t.Errorf("w2 = %+v, want a 3-byte last word", w2)
	}
}

func TestPushBytesEmptyPayloadStillEmitsLast(t *testing.T) {
	ctx := context.Background()
	out := queue.New[word.Word](2)

	if err := PushBytes(ctx, out, nil); err != nil {
		t.Fatalf("PushBytes: %v", err)
	}

	w, ok, err := out.Pop(ctx)
	if err != nil || !ok {
		t.Fatalf("Pop: (%v, %v)", ok, err)
	}
	if !w.Last || w.NumValid() != 0 {
		t.Errorf("w = %+v, want an empty Last word", w)
	}
}
