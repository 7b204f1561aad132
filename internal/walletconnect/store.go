package walletconnect

import (
	"context"
	"sort"
	"sync"
)

// StoredSession is a session plus the symmetric key needed to resume it.
type StoredSession struct {
	Session *Session `json:"session"`
	SymKey  string   `json:"symKey"`
}

// Store persists sessions across restarts.
type Store interface {
	SaveSession(ctx context.Context, s *StoredSession) error
	DeleteSession(ctx context.Context, topic string) error
	LoadSessions(ctx context.Context) ([]*StoredSession, error)
}

type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*StoredSession
}

// NewMemoryStore returns a Store that lives as long as the process.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string]*StoredSession)}
}

func (m *memoryStore) SaveSession(_ context.Context, s *StoredSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Session = s.Session.clone()
	m.sessions[s.Session.Topic] = &cp
	return nil
}

func (m *memoryStore) DeleteSession(_ context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, topic)
	return nil
}

func (m *memoryStore) LoadSessions(_ context.Context) ([]*StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*StoredSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		cp.Session = s.Session.clone()
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session.Topic < out[j].Session.Topic })
	return out, nil
}
