package handler

import (
	"github.com/citypulse/streamd/internal/broadcaster"
)

type SubscribeRequest struct {
	ConnectionId string
	Topics       []string
}

type SubscribeHandlerInterface interface {
	Handle(req SubscribeRequest) error
}

type SubscribeHandler struct {
	topicValidator *TopicValidator
	registry       broadcaster.Registry
}

func NewSubscribeHandler(
	topicValidator *TopicValidator,
	registry broadcaster.Registry,
) *SubscribeHandler {
	return &SubscribeHandler{
		topicValidator,
		registry,
	}
}

func (h *SubscribeHandler) Handle(req SubscribeRequest) error {
	for _, topic := range req.Topics {
		if err := h.topicValidator.ValidateSubscription(topic); err != nil {
			return err
		}
	}

	h.registry.Subscribe(req.ConnectionId, req.Topics)

	return nil
}
