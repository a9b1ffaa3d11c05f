package v1_test

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/boardcast/internal/collab"
	"github.com/gosuda/boardcast/internal/domain"
	"github.com/gosuda/boardcast/internal/server/middleware"
	redisstore "github.com/gosuda/boardcast/internal/store/redis"
)

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

func userCtx(userID uuid.UUID) context.Context {
	return middleware.WithUser(context.Background(), &domain.User{ID: userID, Name: "caller"})
}

// ---------------------------------------------------------------------------
// Mock PresenceReader
// ---------------------------------------------------------------------------

type mockPresence struct {
	connectedUsersFunc func(ctx context.Context, boardIDs []uuid.UUID) ([]collab.OnlineUser, error)
	onlineUsersFunc    func(ctx context.Context, boardID uuid.UUID) ([]collab.OnlineUser, error)
	editorsFunc        func(ctx context.Context, cardID uuid.UUID) (uuid.UUID, []uuid.UUID, error)
}

func (m *mockPresence) ConnectedUsers(ctx context.Context, boardIDs []uuid.UUID) ([]collab.OnlineUser, error) {
	return m.connectedUsersFunc(ctx, boardIDs)
}

func (m *mockPresence) OnlineUsers(ctx context.Context, boardID uuid.UUID) ([]collab.OnlineUser, error) {
	return m.onlineUsersFunc(ctx, boardID)
}

func (m *mockPresence) Editors(ctx context.Context, cardID uuid.UUID) (uuid.UUID, []uuid.UUID, error) {
	return m.editorsFunc(ctx, cardID)
}

// ---------------------------------------------------------------------------
// Mock BoardReader
// ---------------------------------------------------------------------------

type mockBoards struct {
	getByIDFunc        func(ctx context.Context, id uuid.UUID) (*domain.Board, error)
	listAccessibleFunc func(ctx context.Context, userID uuid.UUID) ([]*domain.Board, error)
}

func (m *mockBoards) GetByID(ctx context.Context, id uuid.UUID) (*domain.Board, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockBoards) ListAccessible(ctx context.Context, userID uuid.UUID) ([]*domain.Board, error) {
	return m.listAccessibleFunc(ctx, userID)
}

// ---------------------------------------------------------------------------
// Mock LastSeenStore
// ---------------------------------------------------------------------------

type mockLastSeen struct {
	getFunc func(ctx context.Context, userID uuid.UUID) (*redisstore.LastSeen, error)
}

func (m *mockLastSeen) Get(ctx context.Context, userID uuid.UUID) (*redisstore.LastSeen, error) {
	return m.getFunc(ctx, userID)
}
