package handler

import (
	"errors"

	"github.com/citypulse/streamd/internal/entity"
	"github.com/citypulse/streamd/internal/ierr"
)

// TopicValidator checks topic names against the fixed tracked set. The
// wildcard is legal for subscriptions only; broadcasts always name a
// concrete collection.
type TopicValidator struct{}

func NewTopicValidator() *TopicValidator {
	return &TopicValidator{}
}

func (v *TopicValidator) ValidateSubscription(topic string) error {
	if !entity.IsSubscribableTopic(topic) {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("unknown topic: "+topic))
	}

	return nil
}

func (v *TopicValidator) ValidateBroadcast(topic string) error {
	if !entity.IsTrackedTopic(topic) {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("not a broadcast topic: "+topic))
	}

	return nil
}
