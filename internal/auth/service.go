package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Service bundles credential checks and token handling for the API layer.
type Service struct {
	users      UserRepository
	secret     string
	ttlMinutes int
}

// NewService creates an authentication service.
func NewService(users UserRepository, secret string, ttlMinutes int) *Service {
	return &Service{
		users:      users,
		secret:     secret,
		ttlMinutes: ttlMinutes,
	}
}

// Login verifies credentials and issues an access token.
//
// Returns ErrInvalidCredentials for both unknown emails and wrong
// passwords; the caller cannot tell which.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateAccessToken(user, s.secret, s.ttlMinutes)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Verify validates an access token and returns its claims.
func (s *Service) Verify(token string) (*Claims, error) {
	return ParseToken(token, s.secret)
}

// SeedAdmin creates the initial account when the user table is empty.
// Called once at startup; a populated table makes this a no-op.
func SeedAdmin(ctx context.Context, users UserRepository, email, password string) (*User, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing admin password: %w", err)
	}

	admin := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := users.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("seeding admin user: %w", err)
	}
	return admin, nil
}
