package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fixia-backend/pkg/api"

	"fixia-backend/internal/cache"
	"fixia-backend/internal/middleware"
	"fixia-backend/internal/queue"
	"fixia-backend/internal/repository"
)

// FavoritesHandler serves a user's saved services. All routes require
// authentication.
type FavoritesHandler struct {
	repo   repository.FavoriteRepository
	cache  *cache.Service
	jobs   *queue.Manager
	logger *zap.Logger
}

func NewFavoritesHandler(repo repository.FavoriteRepository, cacheSvc *cache.Service, jobs *queue.Manager, logger *zap.Logger) *FavoritesHandler {
	return &FavoritesHandler{repo: repo, cache: cacheSvc, jobs: jobs, logger: logger}
}

// List handles GET /api/favorites.
func (h *FavoritesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	favorites, err := cache.GetOrSetTyped(r.Context(), h.cache,
		h.cache.Keys().Favorites(userID), h.cache.TTL().ShortTTL,
		func(ctx context.Context) ([]repository.Favorite, error) {
			return h.repo.ListByUser(ctx, userID)
		})
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	if favorites == nil {
		favorites = []repository.Favorite{}
	}

	api.Success(w, http.StatusOK, map[string]any{"favorites": favorites})
}

// Add handles POST /api/favorites/{serviceID}.
func (h *FavoritesHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	serviceID := chi.URLParam(r, "serviceID")

	if err := h.repo.Add(r.Context(), userID, serviceID); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	h.jobs.Enqueue(r.Context(), queue.QueueAnalytics, queue.TypeAnalyticsRollup, queue.RollupPayload{
		EntityType: "service",
		EntityID:   serviceID,
		Event:      "favorite",
		UserID:     userID,
	})

	api.Success(w, http.StatusCreated, map[string]string{"serviceId": serviceID})
}

// Remove handles DELETE /api/favorites/{serviceID}.
func (h *FavoritesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	serviceID := chi.URLParam(r, "serviceID")

	if err := h.repo.Remove(r.Context(), userID, serviceID); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
