package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fixia-backend/pkg/api"
	appErrors "fixia-backend/pkg/errors"

	"fixia-backend/internal/cache"
	"fixia-backend/internal/middleware"
	"fixia-backend/internal/queue"
	"fixia-backend/internal/repository"
)

// ServicesHandler serves the marketplace service endpoints.
type ServicesHandler struct {
	repo   repository.ServiceRepository
	cache  *cache.Service
	jobs   *queue.Manager
	logger *zap.Logger
}

func NewServicesHandler(repo repository.ServiceRepository, cacheSvc *cache.Service, jobs *queue.Manager, logger *zap.Logger) *ServicesHandler {
	return &ServicesHandler{repo: repo, cache: cacheSvc, jobs: jobs, logger: logger}
}

// List handles GET /api/services. Listings are cached per canonical filter
// set for the short tier.
func (h *ServicesHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := parseServiceFilters(r)

	services, err := cache.GetOrSetTyped(r.Context(), h.cache,
		h.cache.Keys().ServicesList(filters), h.cache.TTL().ShortTTL,
		func(ctx context.Context) ([]repository.Service, error) {
			return h.repo.List(ctx, filters)
		})
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	if services == nil {
		services = []repository.Service{}
	}

	api.Success(w, http.StatusOK, map[string]any{"services": services})
}

// Detail handles GET /api/services/{serviceID}.
func (h *ServicesHandler) Detail(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")

	svc, err := cache.GetOrSetTyped(r.Context(), h.cache,
		h.cache.Keys().ServiceDetail(serviceID), h.cache.TTL().MediumTTL,
		func(ctx context.Context) (*repository.Service, error) {
			return h.repo.GetByID(ctx, serviceID)
		})
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	// A view is analytics work, not request work; hand it to the job
	// facade and ignore the result either way.
	h.jobs.Enqueue(r.Context(), queue.QueueAnalytics, queue.TypeAnalyticsRollup, queue.RollupPayload{
		EntityType: "service",
		EntityID:   serviceID,
		Event:      "view",
		UserID:     middleware.UserID(r.Context()),
	})

	api.Success(w, http.StatusOK, svc)
}

type serviceRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CategoryID  string `json:"categoryId"`
	PriceCents  int64  `json:"priceCents"`
	Currency    string `json:"currency"`
	Featured    bool   `json:"featured"`
}

func (req *serviceRequest) validate() error {
	if req.Title == "" {
		return appErrors.NewValidation("title is required")
	}
	if req.PriceCents < 0 {
		return appErrors.NewValidation("price must not be negative")
	}
	return nil
}

// Create handles POST /api/services. Requires authentication.
func (h *ServicesHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	svc := &repository.Service{
		UserID:      userID,
		CategoryID:  req.CategoryID,
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
		Featured:    req.Featured,
	}
	if err := h.repo.Create(r.Context(), svc); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	h.jobs.Enqueue(r.Context(), queue.QueueEmails, queue.TypeEmailNotification, queue.EmailPayload{
		To:       userID,
		Template: "service_published",
		Data:     map[string]any{"serviceId": svc.ID, "title": svc.Title},
	})

	api.Success(w, http.StatusCreated, svc)
}

// Update handles PUT /api/services/{serviceID}. Requires authentication;
// the invalidation middleware clears derived cache entries on success.
func (h *ServicesHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	serviceID := chi.URLParam(r, "serviceID")

	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	svc := &repository.Service{
		ID:          serviceID,
		UserID:      userID,
		CategoryID:  req.CategoryID,
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
		Featured:    req.Featured,
		Active:      true,
	}
	if err := h.repo.Update(r.Context(), svc); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	api.Success(w, http.StatusOK, svc)
}

// Categories handles GET /api/categories. The catalog changes rarely and
// is cached for the very-long tier.
func (h *ServicesHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := cache.GetOrSetTyped(r.Context(), h.cache,
		h.cache.Keys().Categories(), h.cache.TTL().VeryLongTTL,
		func(ctx context.Context) ([]repository.Category, error) {
			return h.repo.ListCategories(ctx)
		})
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	if categories == nil {
		categories = []repository.Category{}
	}

	api.Success(w, http.StatusOK, map[string]any{"categories": categories})
}
