package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/flowforge/rxtoe/tcpmodel"
)

func TestCollectorWriteCSV(t *testing.T) {
	var c Collector
	c.Record(tcpmodel.SegmentRecord{SessionID: 1, SrcPort: 111, DstPort: 80, State: "ESTABLISHED"})
	c.Record(tcpmodel.SegmentRecord{SessionID: 1, SrcPort: 111, DstPort: 80, State: "ESTABLISHED"})
	c.Record(tcpmodel.SegmentRecord{SessionID: 2, SrcPort: 222, DstPort: 443, State: "CLOSED"})

	var buf bytes.Buffer
	if err := c.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "session_id") {
		t.Errorf("CSV missing header, got %q", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 { // header + 3 records
		t.Errorf("got %d lines, want 4 (1 header + 3 records)", len(lines))
	}
}

func TestCollectorShutdownSummary(t *testing.T) {
	var c Collector
	c.Record(tcpmodel.SegmentRecord{SessionID: 1, State: "ESTABLISHED"})
	c.Record(tcpmodel.SegmentRecord{SessionID: 2, State: "CLOSED"})

	var buf bytes.Buffer
	c.Shutdown(&buf)

	out := buf.String()
	if !strings.Contains(out, "total segments") || !strings.Contains(out, "2") {
		t.Errorf("summary missing expected rows, got %q", out)
	}
}
