package fake

import (
	"context"
	"testing"
)

func TestPortTableOpenClose(t *testing.T) {
	ctx := context.Background()
	pt := NewPortTable(80)

	open, err := pt.IsOpen(ctx, 80)
	if err != nil || !open {
		t.Fatalf("IsOpen(80) = (%v, %v), want (true, nil)", open, err)
	}

	open, _ = pt.IsOpen(ctx, 443)
	if open {
		t.Fatal("port 443 should start closed")
	}

	pt.Open(443)
	open, _ = pt.IsOpen(ctx, 443)
	if !open {
		t.Fatal("IsOpen(443) should be true after Open")
	}

	pt.Close(80)
	open, _ = pt.IsOpen(ctx, 80)
	if open {
		t.Fatal("IsOpen(80) should be false after Close")
	}
}
