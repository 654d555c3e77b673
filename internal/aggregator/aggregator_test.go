package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/citypulse/streamd/internal/broadcaster"
	"github.com/citypulse/streamd/internal/entity"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeSource struct {
	mu      sync.Mutex
	fetch   func(sourceType string) ([]entity.Entity, error)
	fetches int
}

func (s *fakeSource) FetchEntities(ctx context.Context, sourceType string) ([]entity.Entity, error) {
	s.mu.Lock()
	s.fetches++
	fetch := s.fetch
	s.mu.Unlock()

	return fetch(sourceType)
}

func (s *fakeSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fetches
}

type broadcastCall struct {
	topic   string
	message broadcaster.Message
}

// recordingRegistry captures broadcasts instead of fanning them out.
type recordingRegistry struct {
	mu         sync.Mutex
	provider   broadcaster.SnapshotProvider
	broadcasts []broadcastCall
}

func (r *recordingRegistry) Register(connection *broadcaster.Connection) error { return nil }
func (r *recordingRegistry) Remove(connectionId string)                        {}
func (r *recordingRegistry) Subscribe(connectionId string, topics []string)    {}
func (r *recordingRegistry) Unsubscribe(connectionId string, topics []string)  {}
func (r *recordingRegistry) Touch(connectionId string)                         {}
func (r *recordingRegistry) ClientCount() int                                  { return 0 }
func (r *recordingRegistry) SubscriberCount(topic string) int                  { return 0 }

func (r *recordingRegistry) BroadcastToTopic(topic string, message broadcaster.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.broadcasts = append(r.broadcasts, broadcastCall{topic, message})
}

func (r *recordingRegistry) BroadcastToAll(message broadcaster.Message) {
	r.BroadcastToTopic("", message)
}

func (r *recordingRegistry) SetSnapshotProvider(provider broadcaster.SnapshotProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.provider = provider
}

func (r *recordingRegistry) calls() []broadcastCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]broadcastCall(nil), r.broadcasts...)
}

func camera(id, revision string) entity.Entity {
	return entity.Entity{
		Id:       id,
		Revision: revision,
		Payload:  map[string]any{"id": id, "modifiedAt": revision},
	}
}

func cameraDescriptor() entity.Descriptor {
	return entity.Descriptor{
		Topic:        entity.TopicCameras,
		SourceType:   "Camera",
		PollInterval: time.Hour,
	}
}

func newTestAggregator(t *testing.T, fetch func(string) ([]entity.Entity, error), descriptors ...entity.Descriptor) (*Aggregator, *fakeSource, *recordingRegistry) {
	t.Helper()

	if len(descriptors) == 0 {
		descriptors = []entity.Descriptor{cameraDescriptor()}
	}

	logger, _ := zap.NewDevelopment()
	entitySource := &fakeSource{fetch: fetch}
	registry := &recordingRegistry{}

	return NewAggregator(logger, entitySource, registry, nil, descriptors, time.Second), entitySource, registry
}

func updateEntities(t *testing.T, message broadcaster.Message) []map[string]any {
	t.Helper()

	entities, ok := message.Data.([]map[string]any)
	if !ok {
		t.Fatalf("update data is %T, want []map[string]any", message.Data)
	}

	return entities
}

func TestFirstPollBroadcastsAllEntitiesInOneUpdate(t *testing.T) {
	a, _, registry := newTestAggregator(t, func(string) ([]entity.Entity, error) {
		return []entity.Entity{camera("CAM1", "t1"), camera("CAM2", "t1")}, nil
	})

	a.pollPartition(a.partitions[0])

	calls := registry.calls()
	assert.Len(t, calls, 1)
	assert.Equal(t, entity.TopicCameras, calls[0].topic)
	assert.Equal(t, broadcaster.KindUpdate, calls[0].message.Type)
	assert.Equal(t, entity.TopicCameras, calls[0].message.Topic)
	assert.Len(t, updateEntities(t, calls[0].message), 2)

	assert.Len(t, a.Snapshot()[entity.TopicCameras], 2)
}

func TestUnchangedPollStaysQuiet(t *testing.T) {
	a, _, registry := newTestAggregator(t, func(string) ([]entity.Entity, error) {
		return []entity.Entity{camera("CAM1", "t1"), camera("CAM2", "t1")}, nil
	})

	a.pollPartition(a.partitions[0])
	a.pollPartition(a.partitions[0])

	assert.Len(t, registry.calls(), 1)
	assert.Len(t, a.Snapshot()[entity.TopicCameras], 2)
}

func TestRevisionChangeBroadcastsOnlyChangedEntities(t *testing.T) {
	responses := [][]entity.Entity{
		{camera("CAM1", "t1"), camera("CAM2", "t1")},
		{camera("CAM1", "t1"), camera("CAM2", "t2")},
	}
	call := 0

	a, _, registry := newTestAggregator(t, func(string) ([]entity.Entity, error) {
		response := responses[call]
		call++

		return response, nil
	})

	a.pollPartition(a.partitions[0])
	a.pollPartition(a.partitions[0])

	calls := registry.calls()
	assert.Len(t, calls, 2)

	changed := updateEntities(t, calls[1].message)
	assert.Len(t, changed, 1)
	assert.Equal(t, "CAM2", changed[0]["id"])
	assert.Equal(t, "t2", changed[0]["modifiedAt"])

	// Cache reflects the new revision for CAM2 and the old payload for CAM1.
	part := a.partitions[0]
	assert.Equal(t, "t1", part.entries["CAM1"].revision)
	assert.Equal(t, "t2", part.entries["CAM2"].revision)
}

func TestNewEntityIsClassifiedChanged(t *testing.T) {
	responses := [][]entity.Entity{
		{camera("CAM1", "t1")},
		{camera("CAM1", "t1"), camera("CAM9", "t5")},
	}
	call := 0

	a, _, registry := newTestAggregator(t, func(string) ([]entity.Entity, error) {
		response := responses[call]
		call++

		return response, nil
	})

	a.pollPartition(a.partitions[0])
	a.pollPartition(a.partitions[0])

	calls := registry.calls()
	assert.Len(t, calls, 2)

	changed := updateEntities(t, calls[1].message)
	assert.Len(t, changed, 1)
	assert.Equal(t, "CAM9", changed[0]["id"])
}

func TestFetchFailureKeepsCacheAndBroadcastsNothing(t *testing.T) {
	failing := false

	a, _, registry := newTestAggregator(t, func(string) ([]entity.Entity, error) {
		if failing {
			return nil, errors.New("upstream down")
		}

		return []entity.Entity{camera("CAM1", "t1")}, nil
	})

	a.pollPartition(a.partitions[0])
	failing = true
	a.pollPartition(a.partitions[0])

	assert.Len(t, registry.calls(), 1)
	assert.Len(t, a.Snapshot()[entity.TopicCameras], 1)
}

func TestPollRetainsEntitiesMissingFromFetch(t *testing.T) {
	responses := [][]entity.Entity{
		{camera("CAM1", "t1"), camera("CAM2", "t1")},
		{camera("CAM1", "t1")},
	}
	call := 0

	a, _, registry := newTestAggregator(t, func(string) ([]entity.Entity, error) {
		response := responses[call]
		call++

		return response, nil
	})

	a.pollPartition(a.partitions[0])
	a.pollPartition(a.partitions[0])

	// CAM2 vanished upstream: no broadcast, and it stays in the snapshot.
	assert.Len(t, registry.calls(), 1)
	assert.Len(t, a.Snapshot()[entity.TopicCameras], 2)
}

func TestFailingTypeDoesNotStallOthers(t *testing.T) {
	descriptors := []entity.Descriptor{
		{Topic: entity.TopicCameras, SourceType: "Camera", PollInterval: time.Hour},
		{Topic: entity.TopicWeather, SourceType: "WeatherObserved", PollInterval: time.Hour},
		{Topic: entity.TopicAccidents, SourceType: "Accident", PollInterval: time.Hour},
	}

	revision := 0

	a, _, registry := newTestAggregator(t, func(sourceType string) ([]entity.Entity, error) {
		if sourceType == "WeatherObserved" {
			return nil, errors.New("always failing")
		}

		return []entity.Entity{{
			Id:       sourceType + "-1",
			Revision: string(rune('a' + revision)),
			Payload:  map[string]any{"id": sourceType + "-1"},
		}}, nil
	}, descriptors...)

	for cycle := 0; cycle < 3; cycle++ {
		for _, part := range a.partitions {
			a.pollPartition(part)
		}

		revision++
	}

	topicsSeen := make(map[string]int)
	for _, call := range registry.calls() {
		topicsSeen[call.topic]++
	}

	assert.Equal(t, 3, topicsSeen[entity.TopicCameras])
	assert.Equal(t, 3, topicsSeen[entity.TopicAccidents])
	assert.Zero(t, topicsSeen[entity.TopicWeather])
}

func TestOverlappingPollForSameTypeIsSkipped(t *testing.T) {
	a, entitySource, _ := newTestAggregator(t, func(string) ([]entity.Entity, error) {
		return nil, nil
	})

	part := a.partitions[0]

	part.mu.Lock()
	part.polling = true
	part.mu.Unlock()

	a.pollPartition(part)
	assert.Zero(t, entitySource.fetchCount())

	part.mu.Lock()
	part.polling = false
	part.mu.Unlock()

	a.pollPartition(part)
	assert.Equal(t, 1, entitySource.fetchCount())
}

func TestStartRunsInitialPollAndRegistersSnapshotProvider(t *testing.T) {
	a, entitySource, registry := newTestAggregator(t, func(string) ([]entity.Entity, error) {
		return []entity.Entity{camera("CAM1", "t1")}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Start(ctx)
	defer a.Stop()

	assert.Equal(t, 1, entitySource.fetchCount())
	assert.Len(t, registry.calls(), 1)

	assert.NotNil(t, registry.provider)
	assert.Len(t, registry.provider()[entity.TopicCameras], 1)

	// Second start is a no-op.
	a.Start(ctx)
	assert.Equal(t, 1, entitySource.fetchCount())
}

func TestStopLeavesCacheQueryable(t *testing.T) {
	a, _, _ := newTestAggregator(t, func(string) ([]entity.Entity, error) {
		return []entity.Entity{camera("CAM1", "t1")}, nil
	})

	ctx := context.Background()
	a.Start(ctx)
	a.Stop()
	a.Stop() // idempotent

	assert.Len(t, a.Snapshot()[entity.TopicCameras], 1)
}

func TestSnapshotContainsPayloadsNotCacheEntries(t *testing.T) {
	a, _, _ := newTestAggregator(t, func(string) ([]entity.Entity, error) {
		return []entity.Entity{camera("CAM1", "t1")}, nil
	})

	a.pollPartition(a.partitions[0])

	snapshot := a.Snapshot()
	assert.Equal(t, map[string]any{"id": "CAM1", "modifiedAt": "t1"}, snapshot[entity.TopicCameras][0])
}
