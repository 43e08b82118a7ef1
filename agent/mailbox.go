package agent

import (
	"sync"
	"time"

	"sync-relay/game"
)

// OutboundState is the local player state requested for propagation.
type OutboundState struct {
	ID    int
	State game.PlayerState
}

// mailbox is a single-slot latest-wins handoff. Put overwrites any value the
// sender has not taken yet. The last taken value and its time are tracked in
// the same critical section so Put can skip redundant writes.
type mailbox struct {
	mu        sync.Mutex
	pending   *OutboundState
	lastSent  *OutboundState
	lastTaken time.Time
	keepalive time.Duration

	ready chan struct{}
	now   func() time.Time
}

func newMailbox(keepalive time.Duration) *mailbox {
	return &mailbox{
		keepalive: keepalive,
		ready:     make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Put stores s unless it equals the last transmitted state and the keepalive
// interval has not elapsed. In that case any older pending value is dropped,
// since the relay already holds s. It reports whether a send was scheduled.
func (m *mailbox) Put(s OutboundState) bool {
	m.mu.Lock()
	if m.lastSent != nil && *m.lastSent == s && m.now().Sub(m.lastTaken) < m.keepalive {
		m.pending = nil
		m.mu.Unlock()
		return false
	}
	m.pending = &s
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// Take removes the pending value and records it as transmitted.
func (m *mailbox) Take() (OutboundState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return OutboundState{}, false
	}
	s := *m.pending
	m.pending = nil
	m.lastSent = &s
	m.lastTaken = m.now()

	return s, true
}

// Ready is signalled at least once after every successful Put.
func (m *mailbox) Ready() <-chan struct{} {
	return m.ready
}
