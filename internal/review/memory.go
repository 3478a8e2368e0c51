package review

import (
	"context"
	"sync"

	"driving-school-admin/internal/model"
	"driving-school-admin/pkg/errors"
)

// MemoryStore keeps open sessions in process, for a single API instance or
// the CLI. Sessions it does not hold, such as those imported by an earlier
// CLI call, are reviewed from the audit log instead.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*model.Session)}
}

func (m *MemoryStore) Create(ctx context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = cloneSession(session)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) Update(ctx context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[session.ID]
	if !ok {
		return errors.ErrSessionNotFound
	}
	updated := cloneSession(session)
	updated.Conflicts = s.Conflicts
	m.sessions[session.ID] = updated
	return nil
}

func (m *MemoryStore) ClaimConflict(ctx context.Context, sessionID, conflictID string) (model.ConflictItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return model.ConflictItem{}, errors.ErrSessionNotFound
	}
	item, ok := s.TakeConflict(conflictID)
	if !ok {
		return model.ConflictItem{}, errors.ErrConflictNotFound
	}
	return item, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

func cloneSession(s *model.Session) *model.Session {
	c := *s
	c.Created = append([]model.Outcome(nil), s.Created...)
	c.Updated = append([]model.Outcome(nil), s.Updated...)
	c.Skipped = append([]model.Outcome(nil), s.Skipped...)
	c.Errors = append([]model.Outcome(nil), s.Errors...)
	c.CaseFiled = append([]string(nil), s.CaseFiled...)
	c.Conflicts = append([]model.ConflictItem(nil), s.Conflicts...)
	return &c
}
