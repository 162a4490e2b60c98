// Package handlers contains the HTTP handlers for the marketplace API.
package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"fixia-backend/pkg/api"
	appErrors "fixia-backend/pkg/errors"

	"fixia-backend/internal/repository"
)

// handleServiceError maps application errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	switch {
	case appErrors.IsValidation(err):
		api.Error(w, http.StatusBadRequest, err.Error())
	case appErrors.IsNotFound(err):
		api.Error(w, http.StatusNotFound, err.Error())
	case appErrors.IsUnauthorized(err):
		api.Error(w, http.StatusUnauthorized, err.Error())
	default:
		logger.Error("internal error", zap.Error(err))
		api.Error(w, http.StatusInternalServerError, "An internal error occurred")
	}
}

// parseServiceFilters reads listing filters from the query string.
func parseServiceFilters(r *http.Request) repository.ServiceFilters {
	q := r.URL.Query()
	filters := repository.ServiceFilters{
		CategoryID: q.Get("category"),
		Query:      q.Get("q"),
		Featured:   q.Get("featured") == "true",
	}
	if v, err := strconv.ParseInt(q.Get("minPrice"), 10, 64); err == nil {
		filters.MinPrice = v
	}
	if v, err := strconv.ParseInt(q.Get("maxPrice"), 10, 64); err == nil {
		filters.MaxPrice = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filters.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filters.Offset = v
	}
	return filters
}
