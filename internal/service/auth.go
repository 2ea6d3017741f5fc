package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	apperrors "github.com/mentorscore/session-api/internal/errors"
	"github.com/mentorscore/session-api/internal/model"
	"github.com/mentorscore/session-api/internal/repository"
	"github.com/mentorscore/session-api/internal/util"
)

const minPasswordLength = 8

// unknownUserHash is compared against when no account matches, so a missing
// email costs the same bcrypt work as a wrong password.
var unknownUserHash = sync.OnceValue(func() string {
	hash, _ := util.HashPassword("unknown-user")
	return hash
})

// AuthService verifies predefined accounts. There is no self-registration;
// accounts are created by operators.
type AuthService struct {
	users repository.UserRepository
}

func NewAuthService(users repository.UserRepository) *AuthService {
	return &AuthService{users: users}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login returns the account for email when password matches and the account
// holds role. A role mismatch is reported after the password check.
func (s *AuthService) Login(ctx context.Context, email, password string, role model.UserRole) (*model.User, error) {
	email = NormalizeEmail(email)
	role = model.UserRole(strings.ToLower(strings.TrimSpace(string(role))))
	if email == "" || password == "" || role == "" {
		return nil, apperrors.ValidationError("Email, password, and role are required")
	}
	if !role.Valid() {
		return nil, apperrors.InvalidInput("role", `must be "student", "mentor", or "university"`)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find user: %w", err))
	}
	if user == nil {
		util.CheckPasswordHash(password, unknownUserHash())
		return nil, apperrors.Unauthorized("Invalid email or password")
	}
	if !util.CheckPasswordHash(password, user.PasswordHash) || !user.IsActive {
		return nil, apperrors.Unauthorized("Invalid email or password")
	}
	if user.Role != role {
		return nil, apperrors.Forbidden(fmt.Sprintf("Invalid role. This account is registered as %s", user.Role))
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		log.Warn().Err(err).Str("userId", user.ID).Msg("failed to record last login")
	}
	return user, nil
}

// CreateUser adds an account with a bcrypt-hashed password.
func (s *AuthService) CreateUser(ctx context.Context, name, email, password string, role model.UserRole) (*model.User, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.InvalidInput("email", "must be a valid email address")
	}
	if len(password) < minPasswordLength {
		return nil, apperrors.InvalidInput("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if !role.Valid() {
		return nil, apperrors.InvalidInput("role", `must be "student", "mentor", or "university"`)
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, apperrors.Internal("Failed to hash password").WithCause(err)
	}

	user, err := s.users.Create(ctx, model.CreateUserParams{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	if errors.Is(err, repository.ErrDuplicateUser) {
		return nil, apperrors.AlreadyExists("User")
	}
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("create user: %w", err))
	}

	log.Info().Str("userId", user.ID).Str("role", string(role)).Msg("user created")
	return user, nil
}
