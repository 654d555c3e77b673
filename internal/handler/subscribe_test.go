package handler

import (
	"testing"

	"github.com/citypulse/streamd/internal/broadcaster"
	"github.com/citypulse/streamd/internal/entity"
	"github.com/citypulse/streamd/internal/ierr"
	"github.com/stretchr/testify/assert"
)

func TestSubscribeHandlerRegistersTopics(t *testing.T) {
	registry := broadcaster.NewMockRegistry(t)
	subscribeHandler := NewSubscribeHandler(NewTopicValidator(), registry)

	topics := []string{entity.TopicCameras, entity.TopicAll}
	registry.On("Subscribe", "conn-1", topics).Return().Once()

	err := subscribeHandler.Handle(SubscribeRequest{
		ConnectionId: "conn-1",
		Topics:       topics,
	})
	assert.NoError(t, err)
}

func TestSubscribeHandlerRejectsUnknownTopic(t *testing.T) {
	registry := broadcaster.NewMockRegistry(t)
	subscribeHandler := NewSubscribeHandler(NewTopicValidator(), registry)

	err := subscribeHandler.Handle(SubscribeRequest{
		ConnectionId: "conn-1",
		Topics:       []string{"bicycles"},
	})
	assert.Error(t, err)
	assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.Code(err))
}

func TestUnsubscribeHandlerRemovesTopics(t *testing.T) {
	registry := broadcaster.NewMockRegistry(t)
	unsubscribeHandler := NewUnsubscribeHandler(NewTopicValidator(), registry)

	topics := []string{entity.TopicWeather}
	registry.On("Unsubscribe", "conn-1", topics).Return().Once()

	err := unsubscribeHandler.Handle(UnsubscribeRequest{
		ConnectionId: "conn-1",
		Topics:       topics,
	})
	assert.NoError(t, err)
}
