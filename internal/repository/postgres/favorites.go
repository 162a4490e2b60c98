package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	appErrors "fixia-backend/pkg/errors"

	"fixia-backend/internal/repository"
)

// FavoriteRepository is the PostgreSQL implementation of
// repository.FavoriteRepository.
type FavoriteRepository struct {
	pool *pgxpool.Pool
}

func NewFavoriteRepository(pool *pgxpool.Pool) *FavoriteRepository {
	return &FavoriteRepository{pool: pool}
}

func (r *FavoriteRepository) ListByUser(ctx context.Context, userID string) ([]repository.Favorite, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT user_id, service_id, created_at FROM favorites WHERE user_id = $1 ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, appErrors.NewInternal("failed to list favorites", err)
	}
	defer rows.Close()

	var favorites []repository.Favorite
	for rows.Next() {
		var f repository.Favorite
		if err := rows.Scan(&f.UserID, &f.ServiceID, &f.CreatedAt); err != nil {
			return nil, appErrors.NewInternal("failed to scan favorite", err)
		}
		favorites = append(favorites, f)
	}
	return favorites, rows.Err()
}

func (r *FavoriteRepository) Add(ctx context.Context, userID, serviceID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO favorites (user_id, service_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, service_id) DO NOTHING`,
		userID, serviceID, time.Now().UTC())
	if err != nil {
		return appErrors.NewInternal("failed to add favorite", err)
	}
	return nil
}

func (r *FavoriteRepository) Remove(ctx context.Context, userID, serviceID string) error {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM favorites WHERE user_id = $1 AND service_id = $2",
		userID, serviceID)
	if err != nil {
		return appErrors.NewInternal("failed to remove favorite", err)
	}
	if tag.RowsAffected() == 0 {
		return appErrors.NewNotFound("favorite not found")
	}
	return nil
}
