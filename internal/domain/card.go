package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CardStatus string

const (
	CardStatusActive   CardStatus = "active"
	CardStatusArchived CardStatus = "archived"
)

type Card struct {
	ID          uuid.UUID   `json:"_id"`
	BoardID     uuid.UUID   `json:"board"`
	ColumnID    string      `json:"columnId"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Position    int         `json:"order"`
	Status      CardStatus  `json:"status"`
	AssigneeIDs []uuid.UUID `json:"assignees"`
	CreatedBy   uuid.UUID   `json:"createdBy"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type CardRepository interface {
	// ListActiveByBoard returns the board's active cards ordered by position.
	ListActiveByBoard(ctx context.Context, boardID uuid.UUID) ([]*Card, error)
}
