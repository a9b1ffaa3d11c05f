package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/boardcast/internal/domain"
)

type CardRepo struct {
	pool *pgxpool.Pool
}

func NewCardRepo(pool *pgxpool.Pool) *CardRepo {
	return &CardRepo{pool: pool}
}

func (r *CardRepo) ListActiveByBoard(ctx context.Context, boardID uuid.UUID) ([]*domain.Card, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.board_id, c.column_id, c.title, c.description, c.position, c.status,
		        COALESCE((SELECT array_agg(a.user_id) FROM card_assignees a WHERE a.card_id = c.id), '{}'),
		        c.created_by, c.created_at, c.updated_at
		 FROM cards c
		 WHERE c.board_id = $1 AND c.status = $2
		 ORDER BY c.column_id, c.position, c.created_at
		 LIMIT 5000`,
		boardID, domain.CardStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("cardRepo.ListActiveByBoard: %w", err)
	}
	defer rows.Close()

	return scanCards(rows, "cardRepo.ListActiveByBoard")
}

func scanCards(rows pgx.Rows, caller string) ([]*domain.Card, error) {
	cards := []*domain.Card{}
	for rows.Next() {
		var c domain.Card
		var description *string
		if err := rows.Scan(
			&c.ID, &c.BoardID, &c.ColumnID, &c.Title, &description, &c.Position, &c.Status,
			&c.AssigneeIDs, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		c.Description = derefStr(description)
		cards = append(cards, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return cards, nil
}
