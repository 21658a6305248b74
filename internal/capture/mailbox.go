package capture

import (
	"sync"
	"sync/atomic"
)

// Mailbox keeps the most recent layer offered by the UI-capture side.
// A newer offer replaces an older one that was never taken.
type Mailbox struct {
	mu    sync.Mutex
	layer *Layer

	replaced atomic.Uint64
}

// Offer stores l for the next frame. Invalid layers are rejected.
func (m *Mailbox) Offer(l *Layer) error {
	if err := l.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.layer != nil {
		m.replaced.Add(1)
	}
	m.layer = l
	m.mu.Unlock()
	return nil
}

// Take returns the pending layer and clears the mailbox. It returns nil when
// nothing was offered since the last Take.
func (m *Mailbox) Take() *Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.layer
	m.layer = nil
	return l
}

// Replaced returns how many offered layers were overwritten before any
// frame took them.
func (m *Mailbox) Replaced() uint64 { return m.replaced.Load() }
