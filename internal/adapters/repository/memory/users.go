package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vncsmyrnk/ballot/internal/core/domain"
)

// UserStore is the in-memory user directory and refresh token store.
// Lookups that find nothing return (nil, nil), like the Postgres repositories.
type UserStore struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]domain.User
	tokens map[string]domain.RefreshToken
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:  make(map[uuid.UUID]domain.User),
		tokens: make(map[string]domain.RefreshToken),
	}
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email && u.DeletedAt == nil {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, nil
	}
	return &u, nil
}

func (s *UserStore) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make(map[uuid.UUID]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok && u.DeletedAt == nil {
			found[id] = &u
		}
	}
	return found, nil
}

// Create assigns an id when the user has none.
func (s *UserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	s.users[user.ID] = *user
	return nil
}

func (s *UserStore) UpsertByEmail(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			*user = u
			return nil
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	s.users[user.ID] = *user
	return nil
}

func (s *UserStore) StoreRefreshToken(_ context.Context, token *domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token.ID = uuid.New()
	token.CreatedAt = time.Now()
	s.tokens[token.TokenHash] = *token
	return nil
}

func (s *UserStore) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *UserStore) RevokeRefreshToken(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, t := range s.tokens {
		if t.ID == id {
			t.Revoked = true
			s.tokens[hash] = t
		}
	}
	return nil
}
