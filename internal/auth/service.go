package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/boardcast/internal/domain"
)

// UserGetter resolves a verified user ID to the stored user record.
type UserGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Service authenticates handshake credentials.
type Service struct {
	users     UserGetter
	jwtSecret string
}

// NewService creates a new auth service.
func NewService(users UserGetter, jwtSecret string) *Service {
	return &Service{
		users:     users,
		jwtSecret: jwtSecret,
	}
}

// Authenticate verifies the bearer token and loads the user it names.
// The returned error always wraps one of ErrMissingCredential,
// ErrInvalidCredential, ErrExpiredCredential or ErrUserNotFound, unless the
// user store itself failed.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	userID, err := ValidateToken(s.jwtSecret, token)
	if err != nil {
		return nil, fmt.Errorf("auth.Authenticate: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("auth.Authenticate: %w", ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("auth.Authenticate: get user: %w", err)
	}

	return user, nil
}

// Reason maps an authentication error to the short rejection code sent to
// the client.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "MissingCredential"
	case errors.Is(err, ErrExpiredCredential):
		return "ExpiredCredential"
	case errors.Is(err, ErrInvalidCredential):
		return "InvalidCredential"
	case errors.Is(err, ErrUserNotFound):
		return "UserNotFound"
	default:
		return "AuthenticationUnavailable"
	}
}
