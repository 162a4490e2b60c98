package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"fixia-backend/pkg/api"
	appErrors "fixia-backend/pkg/errors"

	"fixia-backend/internal/cache"
	"fixia-backend/internal/middleware"
	"fixia-backend/internal/queue"
	"fixia-backend/internal/repository"
)

// AnalyticsHandler serves marketplace analytics.
type AnalyticsHandler struct {
	repo   repository.AnalyticsRepository
	cache  *cache.Service
	jobs   *queue.Manager
	logger *zap.Logger
}

func NewAnalyticsHandler(repo repository.AnalyticsRepository, cacheSvc *cache.Service, jobs *queue.Manager, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{repo: repo, cache: cacheSvc, jobs: jobs, logger: logger}
}

// Summary handles GET /api/analytics/summary?period=day|week|month.
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "week"
	}

	summary, err := cache.GetOrSetTyped(r.Context(), h.cache,
		h.cache.Keys().AnalyticsSummary(period), h.cache.TTL().MediumTTL,
		func(ctx context.Context) (*repository.AnalyticsSummary, error) {
			return h.repo.Summary(ctx, period)
		})
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	api.Success(w, http.StatusOK, summary)
}

type trackRequest struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Event      string `json:"event"`
}

// Track handles POST /api/analytics/events. The event is handed to the
// job facade; callers get an acknowledgement, not the rollup result.
func (h *AnalyticsHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.EntityType == "" || req.EntityID == "" || req.Event == "" {
		handleServiceError(w, appErrors.NewValidation("entityType, entityId and event are required"), h.logger)
		return
	}

	result, err := h.jobs.Enqueue(r.Context(), queue.QueueAnalytics, queue.TypeAnalyticsRollup, queue.RollupPayload{
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Event:      req.Event,
		UserID:     middleware.UserID(r.Context()),
	})
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	response := map[string]any{"accepted": true}
	if queued, ok := result.(queue.Queued); ok {
		response["jobId"] = queued.Job.ID
	}
	api.Success(w, http.StatusAccepted, response)
}
