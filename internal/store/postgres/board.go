package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/boardcast/internal/domain"
)

type BoardRepo struct {
	pool *pgxpool.Pool
}

func NewBoardRepo(pool *pgxpool.Pool) *BoardRepo {
	return &BoardRepo{pool: pool}
}

const boardColumns = `b.id, b.title, b.owner_id, b.is_public, b.columns, b.created_at, b.updated_at,
		        COALESCE((SELECT array_agg(m.user_id ORDER BY m.added_at) FROM board_members m WHERE m.board_id = b.id), '{}')`

func (r *BoardRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Board, error) {
	var b domain.Board

	err := r.pool.QueryRow(ctx,
		`SELECT `+boardColumns+`
		 FROM boards b WHERE b.id = $1`,
		id,
	).Scan(&b.ID, &b.Title, &b.OwnerID, &b.IsPublic, &b.Columns, &b.CreatedAt, &b.UpdatedAt, &b.MemberIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("boardRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("boardRepo.GetByID: %w", err)
	}

	return &b, nil
}

func (r *BoardRepo) ListAccessible(ctx context.Context, userID uuid.UUID) ([]*domain.Board, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+boardColumns+`
		 FROM boards b
		 WHERE b.is_public
		    OR b.owner_id = $1
		    OR EXISTS (SELECT 1 FROM board_members m WHERE m.board_id = b.id AND m.user_id = $1)
		 ORDER BY b.created_at, b.id
		 LIMIT 1000`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("boardRepo.ListAccessible: %w", err)
	}
	defer rows.Close()

	var boards []*domain.Board
	for rows.Next() {
		var b domain.Board
		if err := rows.Scan(&b.ID, &b.Title, &b.OwnerID, &b.IsPublic, &b.Columns, &b.CreatedAt, &b.UpdatedAt, &b.MemberIDs); err != nil {
			return nil, fmt.Errorf("boardRepo.ListAccessible: scan: %w", err)
		}
		boards = append(boards, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("boardRepo.ListAccessible: rows: %w", err)
	}

	return boards, nil
}
