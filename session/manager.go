package session

import (
	"context"
	"sync"
)

// Factory builds a session for an owner. The manager calls it once per owner
// and keeps the result until sign-out.
type Factory func(ownerID string) (*Session, error)

// managed defers session construction to the first Get so the manager lock
// never covers storage I/O.
type managed struct {
	once sync.Once
	s    *Session
	err  error
}

// Manager keeps one live session per owner. A slow first load only blocks
// requests for that owner.
type Manager struct {
	factory Factory

	mu       sync.Mutex
	sessions map[string]*managed
}

func NewManager(factory Factory) *Manager {
	return &Manager{factory: factory, sessions: make(map[string]*managed)}
}

// Get returns the owner's session, creating and loading it on first use.
func (m *Manager) Get(ctx context.Context, ownerID string) (*Session, error) {
	m.mu.Lock()
	entry, ok := m.sessions[ownerID]
	if !ok {
		entry = &managed{}
		m.sessions[ownerID] = entry
	}
	m.mu.Unlock()

	entry.once.Do(func() {
		s, err := m.factory(ownerID)
		if err != nil {
			entry.err = err
			return
		}
		s.Load(ctx)
		entry.s = s
	})
	if entry.err != nil {
		// Forget failed entries so a later request can retry.
		m.mu.Lock()
		if m.sessions[ownerID] == entry {
			delete(m.sessions, ownerID)
		}
		m.mu.Unlock()
		return nil, entry.err
	}
	return entry.s, nil
}

// SignOut closes and forgets the owner's session, flushing pending writes.
// Waits for an in-flight first load before closing.
func (m *Manager) SignOut(ownerID string) {
	m.mu.Lock()
	entry := m.sessions[ownerID]
	delete(m.sessions, ownerID)
	m.mu.Unlock()
	if entry == nil {
		return
	}
	entry.once.Do(func() {})
	if entry.s != nil {
		entry.s.Close()
	}
}

// Shutdown closes every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*managed, 0, len(m.sessions))
	for _, entry := range m.sessions {
		all = append(all, entry)
	}
	m.sessions = make(map[string]*managed)
	m.mu.Unlock()
	for _, entry := range all {
		entry.once.Do(func() {})
		if entry.s != nil {
			entry.s.Close()
		}
	}
}
