package fake

import (
	"context"
	"sync"
)

// PortTable is an in-memory services.PortTable, guarded the same way
// connection.go's atomicConnMap guards its map.
type PortTable struct {
	mu    sync.Mutex
	ports map[uint16]bool
}

// NewPortTable returns a PortTable with the given ports marked open.
func NewPortTable(openPorts ...uint16) *PortTable {
	pt := &PortTable{ports: make(map[uint16]bool)}
	for _, p := range openPorts {
		pt.ports[p] = true
	}

	return pt
}

// Open marks port as open.
func (pt *PortTable) Open(port uint16) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.ports[port] = true
}

// Close marks port as closed.
func (pt *PortTable) Close(port uint16) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	delete(pt.ports, port)
}

// IsOpen implements services.PortTable.
func (pt *PortTable) IsOpen(_ context.Context, port uint16) (bool, error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	return pt.ports[port], nil
}
