package session

import (
	"context"
	"sync"
	"time"

	"techsupport.dev/assistant/internal/core"
)

type identityEntry struct {
	identity  Identity
	expiresAt time.Time
}

// MemoryStore is a process-local Store. State is cloned on the way in and out
// so callers never share memory with the stored copy.
type MemoryStore struct {
	mu         sync.RWMutex
	states     map[string]*core.State
	identities map[string]identityEntry
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:     make(map[string]*core.State),
		identities: make(map[string]identityEntry),
		now:        time.Now,
	}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*core.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[sessionID]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, st *core.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.SessionID] = st.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
	return nil
}

func (m *MemoryStore) SetIdentity(_ context.Context, tokenID string, id Identity, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := identityEntry{identity: id}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.identities[tokenID] = entry
	return nil
}

func (m *MemoryStore) GetIdentity(_ context.Context, tokenID string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.identities[tokenID]
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.identities, tokenID)
		return nil, nil
	}
	id := entry.identity
	return &id, nil
}

func (m *MemoryStore) ClearIdentity(_ context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities, tokenID)
	return nil
}
