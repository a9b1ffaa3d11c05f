package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardcast/internal/auth"
	"github.com/gosuda/boardcast/internal/domain"
)

const testSecret = "service-test-secret-that-is-long-enough"

// mockUsers is a configurable UserGetter.
type mockUsers struct {
	getByIDFunc func(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

func (m *mockUsers) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return m.getByIDFunc(ctx, id)
}

func TestService_Authenticate(t *testing.T) {
	t.Parallel()

	alice := &domain.User{ID: uuid.New(), Name: "alice"}
	errDB := errors.New("connection refused")

	validFor := func(t *testing.T, id uuid.UUID) string {
		t.Helper()
		tok, err := auth.IssueAccessToken(testSecret, id, time.Minute)
		require.NoError(t, err)
		return tok
	}

	t.Run("valid token resolves user", func(t *testing.T) {
		t.Parallel()

		svc := auth.NewService(&mockUsers{getByIDFunc: func(_ context.Context, id uuid.UUID) (*domain.User, error) {
			assert.Equal(t, alice.ID, id)
			return alice, nil
		}}, testSecret)

		user, err := svc.Authenticate(context.Background(), validFor(t, alice.ID))
		require.NoError(t, err)
		assert.Equal(t, alice, user)
	})

	t.Run("missing token never reaches store", func(t *testing.T) {
		t.Parallel()

		svc := auth.NewService(&mockUsers{getByIDFunc: func(context.Context, uuid.UUID) (*domain.User, error) {
			t.Fatal("user store must not be called")
			return nil, nil
		}}, testSecret)

		_, err := svc.Authenticate(context.Background(), "")
		require.ErrorIs(t, err, auth.ErrMissingCredential)
		assert.Equal(t, "MissingCredential", auth.Reason(err))
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()

		svc := auth.NewService(&mockUsers{getByIDFunc: func(context.Context, uuid.UUID) (*domain.User, error) {
			return nil, domain.ErrNotFound
		}}, testSecret)

		_, err := svc.Authenticate(context.Background(), validFor(t, uuid.New()))
		require.ErrorIs(t, err, auth.ErrUserNotFound)
		assert.Equal(t, "UserNotFound", auth.Reason(err))
	})

	t.Run("store failure is not a credential error", func(t *testing.T) {
		t.Parallel()

		svc := auth.NewService(&mockUsers{getByIDFunc: func(context.Context, uuid.UUID) (*domain.User, error) {
			return nil, errDB
		}}, testSecret)

		_, err := svc.Authenticate(context.Background(), validFor(t, uuid.New()))
		require.ErrorIs(t, err, errDB)
		assert.Equal(t, "AuthenticationUnavailable", auth.Reason(err))
	})
}

func TestReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{auth.ErrMissingCredential, "MissingCredential"},
		{auth.ErrInvalidCredential, "InvalidCredential"},
		{auth.ErrExpiredCredential, "ExpiredCredential"},
		{auth.ErrUserNotFound, "UserNotFound"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, auth.Reason(errors.Join(errors.New("wrapped"), tt.err)))
		})
	}
}
