package session

import "sync"

// Manager hands out one Controller per clinician identity, creating them
// lazily. The empty identity gets its own controller for unauthenticated
// local use. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	factory  func(owner string) *Controller
	sessions map[string]*Controller
}

// NewManager creates a Manager. factory builds a Controller bound to the
// given owner identity and must not be nil.
func NewManager(factory func(owner string) *Controller) *Manager {
	return &Manager{
		factory:  factory,
		sessions: make(map[string]*Controller),
	}
}

// Get returns owner's controller, creating it on first use.
func (m *Manager) Get(owner string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.sessions[owner]; ok {
		return c
	}
	c := m.factory(owner)
	m.sessions[owner] = c
	return c
}

// Len returns the number of live controllers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown abandons every live session, discarding open capture sessions and
// invalidating in-flight gateway calls.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		sessions = append(sessions, c)
	}
	m.mu.Unlock()

	for _, c := range sessions {
		c.Abandon()
	}
}
