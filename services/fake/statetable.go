package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowforge/rxtoe/tcpmodel"
)

// StateTable is an in-memory services.StateTable that enforces the §5 lock
// discipline (spec.md: "each FSM query takes a lock that is released by a
// subsequent write-back to the same session id") by panicking in tests if a
// session is read again before being written back — the fake's equivalent of
// connection.go's per-entry sync.Mutex, applied at the session-id grain
// instead of the whole map.
type StateTable struct {
	mu     sync.Mutex
	states map[uint32]tcpmodel.State
	locked map[uint32]bool
}

// NewStateTable returns a StateTable where every session starts CLOSED.
func NewStateTable() *StateTable {
	return &StateTable{
		states: make(map[uint32]tcpmodel.State),
		locked: make(map[uint32]bool),
	}
}

// Seed sets a session's initial state without going through the lock
// discipline, for test setup.
func (t *StateTable) Seed(sid uint32, state tcpmodel.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.states[sid] = state
}

// Read implements services.StateTable, taking the per-session lock.
func (t *StateTable) Read(_ context.Context, sid uint32) (tcpmodel.State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.locked[sid] {
		panic(fmt.Sprintf("fake.StateTable: session %d read while still locked (lock leak)", sid))
	}

	t.locked[sid] = true

	return t.states[sid], nil
}

// Write implements services.StateTable, releasing the per-session lock.
func (t *StateTable) Write(_ context.Context, sid uint32, newState tcpmodel.State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.states[sid] = newState
	t.locked[sid] = false

	return nil
}
