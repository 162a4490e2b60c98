// Package postgres implements the repository interfaces over pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	appErrors "fixia-backend/pkg/errors"

	"fixia-backend/internal/repository"
)

// ServiceRepository is the PostgreSQL implementation of
// repository.ServiceRepository.
type ServiceRepository struct {
	pool *pgxpool.Pool
}

func NewServiceRepository(pool *pgxpool.Pool) *ServiceRepository {
	return &ServiceRepository{pool: pool}
}

const serviceColumns = "id, user_id, category_id, title, description, price_cents, currency, featured, active, created_at, updated_at"

func (r *ServiceRepository) List(ctx context.Context, filters repository.ServiceFilters) ([]repository.Service, error) {
	var (
		where = []string{"active = true"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.CategoryID != "" {
		where = append(where, "category_id = "+arg(filters.CategoryID))
	}
	if filters.Query != "" {
		where = append(where, "(title ILIKE "+arg("%"+filters.Query+"%")+" OR description ILIKE "+arg("%"+filters.Query+"%")+")")
	}
	if filters.MinPrice > 0 {
		where = append(where, "price_cents >= "+arg(filters.MinPrice))
	}
	if filters.MaxPrice > 0 {
		where = append(where, "price_cents <= "+arg(filters.MaxPrice))
	}
	if filters.Featured {
		where = append(where, "featured = true")
	}

	limit := filters.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := fmt.Sprintf(
		"SELECT %s FROM services WHERE %s ORDER BY featured DESC, created_at DESC LIMIT %s OFFSET %s",
		serviceColumns, strings.Join(where, " AND "), arg(limit), arg(filters.Offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, appErrors.NewInternal("failed to list services", err)
	}
	defer rows.Close()

	var services []repository.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, appErrors.NewInternal("failed to scan service", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (r *ServiceRepository) GetByID(ctx context.Context, id string) (*repository.Service, error) {
	row := r.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM services WHERE id = $1", serviceColumns), id)
	svc, err := scanService(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, appErrors.NewNotFound("service not found")
	}
	if err != nil {
		return nil, appErrors.NewInternal("failed to load service", err)
	}
	return &svc, nil
}

func (r *ServiceRepository) Create(ctx context.Context, svc *repository.Service) error {
	if svc.ID == "" {
		svc.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	svc.CreatedAt = now
	svc.UpdatedAt = now
	svc.Active = true
	if svc.Currency == "" {
		svc.Currency = "ARS"
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO services (id, user_id, category_id, title, description, price_cents, currency, featured, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		svc.ID, svc.UserID, svc.CategoryID, svc.Title, svc.Description,
		svc.PriceCents, svc.Currency, svc.Featured, svc.Active, svc.CreatedAt, svc.UpdatedAt)
	if err != nil {
		return appErrors.NewInternal("failed to create service", err)
	}
	return nil
}

func (r *ServiceRepository) Update(ctx context.Context, svc *repository.Service) error {
	svc.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx,
		`UPDATE services
		 SET title = $1, description = $2, price_cents = $3, category_id = $4, featured = $5, active = $6, updated_at = $7
		 WHERE id = $8 AND user_id = $9`,
		svc.Title, svc.Description, svc.PriceCents, svc.CategoryID,
		svc.Featured, svc.Active, svc.UpdatedAt, svc.ID, svc.UserID)
	if err != nil {
		return appErrors.NewInternal("failed to update service", err)
	}
	if tag.RowsAffected() == 0 {
		return appErrors.NewNotFound("service not found")
	}
	return nil
}

func (r *ServiceRepository) ListCategories(ctx context.Context) ([]repository.Category, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, name, slug FROM categories ORDER BY name")
	if err != nil {
		return nil, appErrors.NewInternal("failed to list categories", err)
	}
	defer rows.Close()

	var categories []repository.Category
	for rows.Next() {
		var c repository.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, appErrors.NewInternal("failed to scan category", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func scanService(row pgx.Row) (repository.Service, error) {
	var svc repository.Service
	err := row.Scan(&svc.ID, &svc.UserID, &svc.CategoryID, &svc.Title, &svc.Description,
		&svc.PriceCents, &svc.Currency, &svc.Featured, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt)
	return svc, err
}
