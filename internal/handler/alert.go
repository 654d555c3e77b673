package handler

import (
	"context"
	"time"

	"github.com/citypulse/streamd/internal/broadcaster"
)

type AlertRequest struct {
	Topic string         `json:"topic"`
	Data  map[string]any `json:"data"`
}

type AlertHandlerInterface interface {
	Handle(ctx context.Context, req AlertRequest) (broadcaster.Message, error)
}

// AlertHandler broadcasts an operator-raised alert to every subscriber of
// a topic, bypassing the poll cycle.
type AlertHandler struct {
	topicValidator *TopicValidator
	registry       broadcaster.Registry
}

func NewAlertHandler(
	topicValidator *TopicValidator,
	registry broadcaster.Registry,
) *AlertHandler {
	return &AlertHandler{
		topicValidator,
		registry,
	}
}

func (h *AlertHandler) Handle(ctx context.Context, req AlertRequest) (broadcaster.Message, error) {
	err := h.topicValidator.ValidateBroadcast(req.Topic)
	if err != nil {
		return broadcaster.Message{}, err
	}

	message := broadcaster.Message{
		Type:      broadcaster.KindAlert,
		Topic:     req.Topic,
		Data:      req.Data,
		Timestamp: time.Now(),
	}

	h.registry.BroadcastToTopic(req.Topic, message)

	return message, nil
}
