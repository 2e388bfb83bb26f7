package walletconnect

import (
	"context"
	"sync"
)

// SessionStore persists the single remote session between process runs.
// Load returns nil, nil when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context) (*StoredSession, error)
	Save(ctx context.Context, s *StoredSession) error
	Delete(ctx context.Context) error
}

type memoryStore struct {
	mu      sync.Mutex
	session *StoredSession
}

// NewMemoryStore keeps the session in process memory only.
func NewMemoryStore() SessionStore {
	return &memoryStore{}
}

func (m *memoryStore) Load(context.Context) (*StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	cp := *m.session
	cp.Accounts = append([]string(nil), m.session.Accounts...)
	return &cp, nil
}

func (m *memoryStore) Save(_ context.Context, s *StoredSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Accounts = append([]string(nil), s.Accounts...)
	m.session = &cp
	return nil
}

func (m *memoryStore) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
