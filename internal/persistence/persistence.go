package persistence

import (
	"context"
	"time"
)

// Engine archives the revisions the aggregator broadcasts so operators
// can look back at how an entity evolved. Archiving is best effort; the
// in-memory cache stays the authoritative snapshot.
type Engine interface {
	Setup(ctx context.Context) error
	Archive(ctx context.Context, topic string, payloads []map[string]any) error
	History(ctx context.Context, topic string, entityId string, limit int64) ([]Revision, error)
}

type Revision struct {
	Topic      string         `json:"topic"`
	EntityId   string         `json:"entityId"`
	ObservedAt time.Time      `json:"observedAt"`
	Payload    map[string]any `json:"payload"`
}

// NoopEngine is wired when no archive store is configured.
type NoopEngine struct{}

func NewNoopEngine() *NoopEngine {
	return &NoopEngine{}
}

func (e *NoopEngine) Setup(ctx context.Context) error {
	return nil
}

func (e *NoopEngine) Archive(ctx context.Context, topic string, payloads []map[string]any) error {
	return nil
}

func (e *NoopEngine) History(ctx context.Context, topic string, entityId string, limit int64) ([]Revision, error) {
	return nil, nil
}
