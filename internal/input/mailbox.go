// Package input provides command sources for the control loop. Sources that
// read on a background goroutine hand commands over through a Mailbox.
package input

import (
	"sync"

	"pwm-actuator/internal/types"
)

// Mailbox holds at most one pending command. A newer command replaces an
// unread older one: after a stall the loop acts on the latest input only and
// never replays a backlog of motion commands.
type Mailbox struct {
	mu      sync.Mutex
	pending types.Command
	full    bool
	dropped int
}

func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Put stores cmd and reports whether an unread command was overwritten.
func (m *Mailbox) Put(cmd types.Command) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	replaced := m.full
	if replaced {
		m.dropped++
	}
	m.pending = cmd
	m.full = true
	return replaced
}

// Poll takes the pending command without blocking.
func (m *Mailbox) Poll() (types.Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		return types.Command{}, false
	}
	cmd := m.pending
	m.full = false
	return cmd, true
}

// Dropped counts commands overwritten before they were read.
func (m *Mailbox) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
