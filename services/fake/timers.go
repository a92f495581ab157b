package fake

import (
	"context"
	"sync"

	"github.com/flowforge/rxtoe/services"
)

// Timers is an in-memory services.Timers that simply records the last event
// seen per session, for assertions in tests.
type Timers struct {
	mu    sync.Mutex
	last  map[uint32]services.TimerEvent
	calls int
}

// NewTimers returns an empty Timers.
func NewTimers() *Timers {
	return &Timers{last: make(map[uint32]services.TimerEvent)}
}

// Notify implements services.Timers.
func (t *Timers) Notify(_ context.Context, sid uint32, event services.TimerEvent, _ bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last[sid] = event
	t.calls++
}

// Last returns the most recent event recorded for sid.
func (t *Timers) Last(sid uint32) (services.TimerEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.last[sid]
	return e, ok
}

// Calls returns the total number of Notify calls observed.
func (t *Timers) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.calls
}
