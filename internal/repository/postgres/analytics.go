package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	appErrors "fixia-backend/pkg/errors"

	"fixia-backend/internal/repository"
)

// AnalyticsRepository is the PostgreSQL implementation of
// repository.AnalyticsRepository.
type AnalyticsRepository struct {
	pool *pgxpool.Pool
}

func NewAnalyticsRepository(pool *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{pool: pool}
}

func (r *AnalyticsRepository) TrackEvent(ctx context.Context, entityType, entityID, event, userID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO analytics_events (id, entity_type, entity_id, event, user_id, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
		uuid.New().String(), entityType, entityID, event, userID, time.Now().UTC())
	if err != nil {
		return appErrors.NewInternal("failed to track event", err)
	}
	return nil
}

func (r *AnalyticsRepository) Summary(ctx context.Context, period string) (*repository.AnalyticsSummary, error) {
	since, err := periodStart(period)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT event, COUNT(*) FROM analytics_events WHERE created_at >= $1 GROUP BY event`,
		since)
	if err != nil {
		return nil, appErrors.NewInternal("failed to aggregate events", err)
	}
	defer rows.Close()

	summary := &repository.AnalyticsSummary{
		Period:  period,
		ByEvent: make(map[string]int),
	}
	for rows.Next() {
		var event string
		var count int64
		if err := rows.Scan(&event, &count); err != nil {
			return nil, appErrors.NewInternal("failed to scan event count", err)
		}
		summary.ByEvent[event] = int(count)
		switch event {
		case "view":
			summary.Views = count
		case "favorite":
			summary.Favorites = count
		case "contact":
			summary.Contacts = count
		}
	}
	return summary, rows.Err()
}

func periodStart(period string) (time.Time, error) {
	now := time.Now().UTC()
	switch period {
	case "day":
		return now.AddDate(0, 0, -1), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, -1, 0), nil
	default:
		return time.Time{}, appErrors.NewValidation("period must be one of: day, week, month")
	}
}
