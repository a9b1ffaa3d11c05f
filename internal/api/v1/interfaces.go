package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/boardcast/internal/collab"
	"github.com/gosuda/boardcast/internal/domain"
	redisstore "github.com/gosuda/boardcast/internal/store/redis"
)

// PresenceReader abstracts the engine's read side for handler testing.
// *collab.Engine satisfies this interface.
type PresenceReader interface {
	ConnectedUsers(ctx context.Context, boardIDs []uuid.UUID) ([]collab.OnlineUser, error)
	OnlineUsers(ctx context.Context, boardID uuid.UUID) ([]collab.OnlineUser, error)
	Editors(ctx context.Context, cardID uuid.UUID) (uuid.UUID, []uuid.UUID, error)
}

// BoardReader resolves boards for access checks.
// domain.BoardRepository satisfies this interface.
type BoardReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Board, error)
	ListAccessible(ctx context.Context, userID uuid.UUID) ([]*domain.Board, error)
}

// LastSeenStore reads mirrored last-seen records.
// *redis.Presence satisfies this interface.
type LastSeenStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*redisstore.LastSeen, error)
}
