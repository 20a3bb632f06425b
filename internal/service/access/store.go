package access

import (
	"sync"

	"github.com/davidleathers/clinical-access-backend/internal/domain/access"
)

// RoleStore persists role definitions.
type RoleStore interface {
	Put(role *access.Role)
	Get(id string) (*access.Role, bool)
	Delete(id string) bool
	All() []*access.Role
}

// UserStore persists user records.
type UserStore interface {
	Put(user *access.User)
	Get(id string) (*access.User, bool)
	Delete(id string) bool
	All() []*access.User
}

type memoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]*access.Role
	order []string
}

// NewMemoryRoleStore returns an in-memory RoleStore that preserves
// insertion order for listings.
func NewMemoryRoleStore() RoleStore {
	return &memoryRoleStore{roles: make(map[string]*access.Role)}
}

func (s *memoryRoleStore) Put(role *access.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; !ok {
		s.order = append(s.order, role.ID)
	}
	s.roles[role.ID] = role
}

func (s *memoryRoleStore) Get(id string) (*access.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	return r, ok
}

func (s *memoryRoleStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return false
	}
	delete(s.roles, id)
	for i, rid := range s.order {
		if rid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *memoryRoleStore) All() []*access.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.Role, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.roles[id])
	}
	return out
}

type memoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*access.User
}

// NewMemoryUserStore returns an in-memory UserStore.
func NewMemoryUserStore() UserStore {
	return &memoryUserStore{users: make(map[string]*access.User)}
}

func (s *memoryUserStore) Put(user *access.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *memoryUserStore) Get(id string) (*access.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *memoryUserStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false
	}
	delete(s.users, id)
	return true
}

func (s *memoryUserStore) All() []*access.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*access.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out
}
