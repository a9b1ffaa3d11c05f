package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/boardcast/internal/domain"
)

type contextKey string

const (
	ContextKeyUserID contextKey = "user_id"
	ContextKeyUser   contextKey = "user"
)

// WithUser stores the authenticated user and its ID in ctx.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUser, user)
	return context.WithValue(ctx, ContextKeyUserID, user.ID)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ContextKeyUserID).(uuid.UUID)
	return v, ok
}

func UserFromContext(ctx context.Context) (*domain.User, bool) {
	v, ok := ctx.Value(ContextKeyUser).(*domain.User)
	return v, ok && v != nil
}
