package realtime

import "sync"

// Manager owns the single live client of a process. Watching a different
// project disposes the current client before the next one is created, so two
// clients never overlap.
type Manager struct {
	base     Options
	handlers func(projectID int64) Handlers

	mu     sync.Mutex
	client *Client
}

// NewManager creates a Manager. handlers, when non-nil, builds the handler
// set for each watched project; otherwise base.Handlers is used.
func NewManager(base Options, handlers func(projectID int64) Handlers) *Manager {
	return &Manager{base: base, handlers: handlers}
}

// Watch binds the live client to projectID and connects it. Watching the
// current project again returns the existing client untouched. A zero
// projectID tears the current client down and returns nil.
func (m *Manager) Watch(projectID int64) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil && m.client.ProjectID() == projectID {
		return m.client
	}

	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	if projectID == 0 {
		return nil
	}

	opts := m.base
	opts.ProjectID = projectID
	if m.handlers != nil {
		opts.Handlers = m.handlers(projectID)
	}

	m.client = New(opts)
	m.client.Connect()

	return m.client
}

// Current returns the active client, or nil when nothing is watched.
func (m *Manager) Current() *Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.client
}

// Status reports the active client's status. ok is false when nothing is watched.
func (m *Manager) Status() (Status, bool) {
	c := m.Current()
	if c == nil {
		return Status{}, false
	}
	return c.Status(), true
}

// Close disposes the active client.
func (m *Manager) Close() {
	m.Watch(0)
}
