package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/repository"
)

// MemoryUserStore is an in-memory repository.UserRepository keyed by email.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]model.User
	// Err, when set, is returned by every method.
	Err error
}

var _ repository.UserRepository = (*MemoryUserStore)(nil)

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]model.User)}
}

// SetActive flips the active flag of the user with email.
func (s *MemoryUserStore) SetActive(email string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		u.IsActive = active
		s.users[email] = u
	}
}

func (s *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.users[email]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *MemoryUserStore) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if _, ok := s.users[params.Email]; ok {
		return nil, repository.ErrDuplicateUser
	}
	now := time.Now().UTC()
	u := model.User{
		ID:           uuid.NewString(),
		Name:         params.Name,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[params.Email] = u
	return &u, nil
}

func (s *MemoryUserStore) UpdateLastLogin(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for email, u := range s.users {
		if u.ID == id {
			now := time.Now().UTC()
			u.LastLoginAt = &now
			s.users[email] = u
		}
	}
	return nil
}
