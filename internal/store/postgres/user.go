package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/boardcast/internal/domain"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	var email, avatarURL *string

	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, avatar_url, is_online, last_seen, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &email, &u.Name, &avatarURL, &u.IsOnline, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("userRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}

	u.Email = derefStr(email)
	u.AvatarURL = derefStr(avatarURL)

	return &u, nil
}

// UpdatePresence records the online flag and last-seen time. A write older
// than the stored last_seen is ignored so a delayed write cannot regress the
// record.
func (r *UserRepo) UpdatePresence(ctx context.Context, id uuid.UUID, online bool, seenAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_online = $1, last_seen = $2, updated_at = now()
		 WHERE id = $3 AND (last_seen IS NULL OR last_seen <= $2)`,
		online, seenAt, id,
	)
	if err != nil {
		return fmt.Errorf("userRepo.UpdatePresence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("userRepo.UpdatePresence: %w", err)
		}
		if !exists {
			return fmt.Errorf("userRepo.UpdatePresence: %w", domain.ErrNotFound)
		}
	}

	return nil
}

// --- Helpers ---

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
