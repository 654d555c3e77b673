package handler

import (
	"github.com/citypulse/streamd/internal/broadcaster"
)

type UnsubscribeRequest struct {
	ConnectionId string
	Topics       []string
}

type UnsubscribeHandlerInterface interface {
	Handle(req UnsubscribeRequest) error
}

type UnsubscribeHandler struct {
	topicValidator *TopicValidator
	registry       broadcaster.Registry
}

func NewUnsubscribeHandler(
	topicValidator *TopicValidator,
	registry broadcaster.Registry,
) *UnsubscribeHandler {
	return &UnsubscribeHandler{
		topicValidator,
		registry,
	}
}

func (h *UnsubscribeHandler) Handle(req UnsubscribeRequest) error {
	for _, topic := range req.Topics {
		if err := h.topicValidator.ValidateSubscription(topic); err != nil {
			return err
		}
	}

	h.registry.Unsubscribe(req.ConnectionId, req.Topics)

	return nil
}
