package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/citypulse/streamd/internal/broadcaster"
	"github.com/citypulse/streamd/internal/entity"
	"github.com/citypulse/streamd/internal/persistence"
	"github.com/citypulse/streamd/internal/source"
	"go.uber.org/zap"
)

const DefaultFetchTimeout = 15 * time.Second

type cacheEntry struct {
	payload  map[string]any
	revision string
}

// partition is one entity type's slice of the cache. Exactly one poll may
// be in flight per partition; entries is replaced wholesale under the
// write lock so readers never observe a half-applied cycle.
type partition struct {
	descriptor entity.Descriptor

	mu      sync.RWMutex
	entries map[string]cacheEntry
	polling bool
}

// Aggregator mirrors every tracked collection from the upstream source
// and announces only the entities that actually changed, one batched
// update per type per cycle.
type Aggregator struct {
	logger       *zap.Logger
	source       source.Source
	registry     broadcaster.Registry
	archive      persistence.Engine
	fetchTimeout time.Duration
	now          func() time.Time

	partitions []*partition

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func NewAggregator(
	logger *zap.Logger,
	entitySource source.Source,
	registry broadcaster.Registry,
	archive persistence.Engine,
	descriptors []entity.Descriptor,
	fetchTimeout time.Duration,
) *Aggregator {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}

	partitions := make([]*partition, 0, len(descriptors))
	for _, descriptor := range descriptors {
		partitions = append(partitions, &partition{
			descriptor: descriptor,
			entries:    make(map[string]cacheEntry),
		})
	}

	return &Aggregator{
		logger:       logger,
		source:       entitySource,
		registry:     registry,
		archive:      archive,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
		partitions:   partitions,
	}
}

// Start runs one immediate poll of every tracked type, registers the
// aggregator as the registry's snapshot source, and schedules the
// recurring per-type poll loops. Calling Start while running is a no-op.
func (a *Aggregator) Start(ctx context.Context) {
	a.mu.Lock()

	if a.running {
		a.mu.Unlock()

		a.logger.Warn("aggregator already running, ignoring start")

		return
	}

	a.running = true
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.mu.Unlock()

	var initial sync.WaitGroup
	for _, part := range a.partitions {
		initial.Add(1)

		go func(part *partition) {
			defer initial.Done()

			a.pollPartition(part)
		}(part)
	}

	initial.Wait()

	a.registry.SetSnapshotProvider(a.Snapshot)

	for _, part := range a.partitions {
		go a.runPollLoop(loopCtx, part)
	}

	a.logger.Info("aggregator started",
		zap.Int("trackedTypes", len(a.partitions)))
}

// Stop cancels future poll ticks. An in-flight cycle is allowed to finish
// so the cache never ends up half-updated, and the cache stays queryable.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}

	a.running = false
	a.cancel()

	a.logger.Info("aggregator stopped")
}

func (a *Aggregator) runPollLoop(ctx context.Context, part *partition) {
	ticker := time.NewTicker(part.descriptor.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollPartition(part)
		}
	}
}

// pollPartition runs one fetch-compare-update-broadcast cycle for a
// single entity type. Cycles for the same type are serialized by the
// polling flag; a tick that lands while the previous cycle is still in
// flight is skipped.
func (a *Aggregator) pollPartition(part *partition) {
	part.mu.Lock()
	if part.polling {
		part.mu.Unlock()

		a.logger.Warn("previous poll still in flight, skipping tick",
			zap.String("topic", part.descriptor.Topic))

		return
	}
	part.polling = true
	part.mu.Unlock()

	defer func() {
		part.mu.Lock()
		part.polling = false
		part.mu.Unlock()
	}()

	fetchCtx, cancel := context.WithTimeout(context.Background(), a.fetchTimeout)
	defer cancel()

	fetched, err := a.source.FetchEntities(fetchCtx, part.descriptor.SourceType)
	if err != nil {
		a.logger.Warn("upstream fetch failed, serving cached data this cycle",
			zap.String("topic", part.descriptor.Topic),
			zap.String("sourceType", part.descriptor.SourceType),
			zap.Error(err))

		return
	}

	changed := a.applyFetch(part, fetched)
	if len(changed) == 0 {
		return
	}

	a.logger.Debug("broadcasting changed entities",
		zap.String("topic", part.descriptor.Topic),
		zap.Int("changed", len(changed)))

	a.registry.BroadcastToTopic(part.descriptor.Topic, broadcaster.Message{
		Type:      broadcaster.KindUpdate,
		Topic:     part.descriptor.Topic,
		Data:      changed,
		Timestamp: a.now(),
	})

	a.archiveChanged(part.descriptor.Topic, changed)
}

// applyFetch diffs the fetched collection against the partition cache and
// swaps in the next generation. Returns the payloads of every new or
// revised entity. Entities that vanished upstream are retained.
func (a *Aggregator) applyFetch(part *partition, fetched []entity.Entity) []map[string]any {
	part.mu.RLock()

	var changed []map[string]any
	for _, fetchedEntity := range fetched {
		current, ok := part.entries[fetchedEntity.Id]
		if !ok || current.revision != fetchedEntity.Revision {
			changed = append(changed, fetchedEntity.Payload)
		}
	}

	if len(changed) == 0 {
		part.mu.RUnlock()

		return nil
	}

	next := make(map[string]cacheEntry, len(part.entries)+len(changed))
	for id, entry := range part.entries {
		next[id] = entry
	}

	part.mu.RUnlock()

	for _, fetchedEntity := range fetched {
		if current, ok := next[fetchedEntity.Id]; ok && current.revision == fetchedEntity.Revision {
			continue
		}

		next[fetchedEntity.Id] = cacheEntry{
			payload:  fetchedEntity.Payload,
			revision: fetchedEntity.Revision,
		}
	}

	part.mu.Lock()
	part.entries = next
	part.mu.Unlock()

	return changed
}

func (a *Aggregator) archiveChanged(topic string, changed []map[string]any) {
	if a.archive == nil {
		return
	}

	archiveCtx, cancel := context.WithTimeout(context.Background(), a.fetchTimeout)
	defer cancel()

	if err := a.archive.Archive(archiveCtx, topic, changed); err != nil {
		a.logger.Warn("failed to archive changed entities",
			zap.String("topic", topic),
			zap.Error(err))
	}
}

// Snapshot returns the current cached payloads for every tracked type.
// Safe to call at any time, including mid-poll; each partition is read
// under its lock so no single entity mixes generations.
func (a *Aggregator) Snapshot() broadcaster.SnapshotData {
	snapshot := make(broadcaster.SnapshotData, len(a.partitions))

	for _, part := range a.partitions {
		part.mu.RLock()

		payloads := make([]map[string]any, 0, len(part.entries))
		for _, entry := range part.entries {
			payloads = append(payloads, entry.payload)
		}

		part.mu.RUnlock()

		snapshot[part.descriptor.Topic] = payloads
	}

	return snapshot
}
