package domain

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

type Board struct {
	ID        uuid.UUID       `json:"_id"`
	Title     string          `json:"title"`
	OwnerID   uuid.UUID       `json:"owner"`
	MemberIDs []uuid.UUID     `json:"members"`
	IsPublic  bool            `json:"isPublic"`
	Columns   json.RawMessage `json:"columns"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CanAccess reports whether userID may subscribe to the board: the owner,
// any member, or anyone at all when the board is public.
func (b *Board) CanAccess(userID uuid.UUID) bool {
	if b.IsPublic || b.OwnerID == userID {
		return true
	}
	return slices.Contains(b.MemberIDs, userID)
}

type BoardRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Board, error)
	// ListAccessible returns every board the user owns, is a member of, or
	// that is public.
	ListAccessible(ctx context.Context, userID uuid.UUID) ([]*Board, error)
}
