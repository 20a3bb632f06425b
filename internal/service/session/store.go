package session

import (
	"context"
	"sync"

	"github.com/davidleathers/clinical-access-backend/internal/domain/session"
)

// Store persists session records keyed by session id with a per-user
// index. Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, s *session.Session) error
	Get(ctx context.Context, id string) (*session.Session, error)
	Delete(ctx context.Context, id string) error
	UserSessionIDs(ctx context.Context, userID string) ([]string, error)
	All(ctx context.Context) ([]*session.Session, error)
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	byUser   map[string]map[string]struct{}
}

// NewMemoryStore returns an in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[string]*session.Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (s *memoryStore) Put(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	if _, ok := s.byUser[sess.UserID]; !ok {
		s.byUser[sess.UserID] = make(map[string]struct{})
	}
	s.byUser[sess.UserID][sess.ID] = struct{}{}
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return sess.Clone(), nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	if ids, ok := s.byUser[sess.UserID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
	return nil
}

func (s *memoryStore) UserSessionIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memoryStore) All(_ context.Context) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out, nil
}
