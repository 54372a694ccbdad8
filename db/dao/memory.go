package dao

import (
	"sync"
	"time"

	"github.com/vaultbox/vaultbox/db/model"
)

// MemoryUploadSessionDao keeps sessions in process memory. Used by the
// memory db type for local development and by tests.
type MemoryUploadSessionDao struct {
	mu       sync.RWMutex
	sessions map[string]*model.UploadSession
}

// NewMemoryUploadSessionDao new memory upload session dao
func NewMemoryUploadSessionDao() *MemoryUploadSessionDao {
	return &MemoryUploadSessionDao{sessions: make(map[string]*model.UploadSession)}
}

// AddModel add upload session
func (m *MemoryUploadSessionDao) AddModel(mo model.Interface) error {
	session := mo.(*model.UploadSession)
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

// UpdateModel update upload session
func (m *MemoryUploadSessionDao) UpdateModel(mo model.Interface) error {
	return m.AddModel(mo)
}

// GetByID get upload session by id
func (m *MemoryUploadSessionDao) GetByID(id string) (*model.UploadSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

// DeleteByID delete upload session by id
func (m *MemoryUploadSessionDao) DeleteByID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// ListExpired list sessions whose TTL passed and that never completed.
// Already-expired rows are included so the janitor can drop them.
func (m *MemoryUploadSessionDao) ListExpired(now time.Time) ([]*model.UploadSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sessions []*model.UploadSession
	for _, session := range m.sessions {
		if !session.IsExpired(now) {
			continue
		}
		if session.Status == model.SessionStatusCompleted {
			continue
		}
		cp := *session
		sessions = append(sessions, &cp)
	}
	return sessions, nil
}
