package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID  `json:"_id"`
	Email     string     `json:"email,omitempty"`
	Name      string     `json:"name"`
	AvatarURL string     `json:"avatar,omitempty"`
	IsOnline  bool       `json:"isOnline"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"` // nullable, never connected
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// UserRepository is the read side of the user store plus the online/last-seen
// write issued by the presence engine. Account management lives elsewhere.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdatePresence(ctx context.Context, id uuid.UUID, online bool, seenAt time.Time) error
}
