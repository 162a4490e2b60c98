// Package repository defines the persistence interfaces and models for the
// marketplace. Implementations live in subpackages.
package repository

import (
	"context"
	"time"
)

// Service is a marketplace listing offered by a professional.
type Service struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	CategoryID  string    `json:"categoryId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"priceCents"`
	Currency    string    `json:"currency"`
	Featured    bool      `json:"featured"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Category groups services in the marketplace catalog.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Favorite marks a service saved by a user.
type Favorite struct {
	UserID    string    `json:"userId"`
	ServiceID string    `json:"serviceId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ServiceFilters narrows marketplace listings. The zero value means "all
// active services".
type ServiceFilters struct {
	CategoryID string `json:"categoryId,omitempty"`
	Query      string `json:"query,omitempty"`
	MinPrice   int64  `json:"minPrice,omitempty"`
	MaxPrice   int64  `json:"maxPrice,omitempty"`
	Featured   bool   `json:"featured,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// AnalyticsSummary aggregates marketplace activity for a period.
type AnalyticsSummary struct {
	Period    string         `json:"period"`
	Views     int64          `json:"views"`
	Favorites int64          `json:"favorites"`
	Contacts  int64          `json:"contacts"`
	ByEvent   map[string]int `json:"byEvent,omitempty"`
}

// ServiceRepository persists marketplace services.
type ServiceRepository interface {
	List(ctx context.Context, filters ServiceFilters) ([]Service, error)
	GetByID(ctx context.Context, id string) (*Service, error)
	Create(ctx context.Context, svc *Service) error
	Update(ctx context.Context, svc *Service) error
	ListCategories(ctx context.Context) ([]Category, error)
}

// FavoriteRepository persists user favorites.
type FavoriteRepository interface {
	ListByUser(ctx context.Context, userID string) ([]Favorite, error)
	Add(ctx context.Context, userID, serviceID string) error
	Remove(ctx context.Context, userID, serviceID string) error
}

// AnalyticsRepository records and aggregates marketplace events.
type AnalyticsRepository interface {
	TrackEvent(ctx context.Context, entityType, entityID, event, userID string) error
	Summary(ctx context.Context, period string) (*AnalyticsSummary, error)
}
