// Package stats accumulates per-segment records for CSV export and a
// shutdown summary table, the same two jobs decoder/stream/tcpConnection.go's
// CleanupReassembly does for netcap's reassembly stats: both are called once
// at shutdown by whatever owns the pipeline's lifecycle, not on the
// per-packet hot path.
package stats

import (
	"io"
	"strconv"
	"sync"

	"github.com/evilsocket/islazy/tui"
	"github.com/gocarina/gocsv"

	"github.com/flowforge/rxtoe/tcpmodel"
)

// Collector accumulates SegmentRecords. The zero value is ready to use.
type Collector struct {
	mu      sync.Mutex
	records []tcpmodel.SegmentRecord
	byState map[string]int64
}

// Record appends rec and tallies it by resulting state, mirroring
// types.VRRPv2.Inc()'s per-record counter bump.
func (c *Collector) Record(rec tcpmodel.SegmentRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.byState == nil {
		c.byState = make(map[string]int64)
	}

	c.records = append(c.records, rec)
	c.byState[rec.State]++

	rec.Inc()
}

// WriteCSV marshals every accumulated record to w via gocsv, replacing the
// teacher's hand-written CSVHeader()/csv-tag-free struct approach
// (types/vrrpv2.go) with gocarina/gocsv struct-tag marshaling.
func (c *Collector) WriteCSV(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return gocsv.Marshal(c.records, w)
}

// Shutdown prints a summary table of segments by resulting state, the same
// "TCP Stat / Value" table CleanupReassembly renders with islazy/tui.Table.
func (c *Collector) Shutdown(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows := make([][]string, 0, len(c.byState)+1)
	rows = append(rows, []string{"total segments", strconv.Itoa(len(c.records))})

	for state, n := range c.byState {
		rows = append(rows, []string{state, strconv.FormatInt(n, 10)})
	}

	tui.Table(w, []string{"TCP Stat", "Value"}, rows)
}
