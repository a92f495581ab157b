// Package fake provides in-memory stand-ins for the external collaborators
// declared in package services, adapted from the locking-map pattern used
// throughout the teacher for per-flow bookkeeping (decoder/packet/
// connection.go's atomicConnMap, decoder/ipProfile.go's atomicIPProfileMap).
package fake

import (
	"context"
	"sync"

	"github.com/rs/xid"

	"github.com/flowforge/rxtoe/services"
	"github.com/flowforge/rxtoe/tcpmodel"
)

// SessionTable is an in-memory SessionLookup. Keys on the FourTuple the way
// connection.go keys atomicConnMap on connectionID.String(); session ids are
// minted with rs/xid rather than an incrementing counter, following
// runZeroInc-conniver/runZeroInc-sockstats's use of xid for short stable ids.
type SessionTable struct {
	mu    sync.Mutex
	byKey map[tcpmodel.FourTuple]uint32
	next  map[uint32]tcpmodel.FourTuple
}

// NewSessionTable returns an empty SessionTable.
func NewSessionTable() *SessionTable {
	return &SessionTable{
		byKey: make(map[tcpmodel.FourTuple]uint32),
		next:  make(map[uint32]tcpmodel.FourTuple),
	}
}

// Size returns the number of sessions currently tracked.
func (s *SessionTable) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.byKey)
}

// Lookup implements services.SessionLookup.
func (s *SessionTable) Lookup(_ context.Context, tuple tcpmodel.FourTuple, allowCreate bool) (services.SessionLookupReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sid, ok := s.byKey[tuple]; ok {
		return services.SessionLookupReply{Hit: true, SessionID: sid}, nil
	}

	if !allowCreate {
		return services.SessionLookupReply{Hit: false}, nil
	}

	sid := sessionIDFromGUID(xid.New())
	s.byKey[tuple] = sid
	s.next[sid] = tuple

	return services.SessionLookupReply{Hit: true, SessionID: sid}, nil
}

// Tuple returns the four-tuple a session id was created for, used by tests
// to cross-reference a session.
func (s *SessionTable) Tuple(sid uint32) (tcpmodel.FourTuple, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ft, ok := s.next[sid]
	return ft, ok
}

// Remove drops a session, mirroring connection.go's DeInit/flush-on-timeout
// cleanup pass.
func (s *SessionTable) Remove(sid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ft, ok := s.next[sid]; ok {
		delete(s.byKey, ft)
		delete(s.next, sid)
	}
}

// sessionIDFromGUID folds an xid.ID down to the 14-bit session id space the
// ring-addressing convention in tcpmodel.MemCommand requires.
func sessionIDFromGUID(id xid.ID) uint32 {
	b := id.Bytes()
	v := uint32(b[10])<<8 | uint32(b[11])
	return v & 0x3FFF
}
