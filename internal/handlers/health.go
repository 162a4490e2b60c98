package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"fixia-backend/pkg/api"

	"fixia-backend/internal/monitoring"
	"fixia-backend/internal/queue"
)

// HealthHandler exposes the monitoring snapshot and queue state.
type HealthHandler struct {
	monitor *monitoring.Monitor
	jobs    *queue.Manager
	logger  *zap.Logger
}

func NewHealthHandler(monitor *monitoring.Monitor, jobs *queue.Manager, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{monitor: monitor, jobs: jobs, logger: logger}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.monitor.Snapshot()

	status := http.StatusOK
	if !snap.Healthy {
		status = http.StatusServiceUnavailable
	}

	api.Success(w, status, map[string]any{
		"healthy":              snap.Healthy,
		"lastCheck":            snap.LastCheck,
		"consecutiveFailures":  snap.ConsecutiveFailures,
		"consecutiveSuccesses": snap.ConsecutiveSuccesses,
		"alerts":               snap.Alerts,
		"durableQueue":         h.jobs.Durable(),
		"failedJobs":           len(h.jobs.FailedJobs()),
	})
}
