package broadcaster

import (
	"context"
	"sync"
	"time"

	"github.com/citypulse/streamd/internal/entity"
	"go.uber.org/zap"
)

const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultHeartbeatTimeout  = 30 * time.Second
)

type Registry interface {
	Register(connection *Connection) error
	Remove(connectionId string)
	Subscribe(connectionId string, topics []string)
	Unsubscribe(connectionId string, topics []string)
	Touch(connectionId string)
	BroadcastToTopic(topic string, message Message)
	BroadcastToAll(message Message)
	SetSnapshotProvider(provider SnapshotProvider)
	ClientCount() int
	SubscriberCount(topic string) int
}

// clientState is the registry-owned view of one connection: its
// subscription set and when the peer last proved it was alive.
type clientState struct {
	connection *Connection
	topics     map[string]struct{}
	lastSeen   time.Time
}

func (s *clientState) subscribedTo(topic string) bool {
	if _, ok := s.topics[entity.TopicAll]; ok {
		return true
	}

	_, ok := s.topics[topic]

	return ok
}

type InMemoryRegistry struct {
	logger            *zap.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	now               func() time.Time

	mu       sync.RWMutex
	provider SnapshotProvider
	clients  map[string]*clientState
}

func NewInMemoryRegistry(
	logger *zap.Logger,
	heartbeatInterval time.Duration,
	heartbeatTimeout time.Duration,
) *InMemoryRegistry {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = DefaultHeartbeatTimeout
	}

	return &InMemoryRegistry{
		logger:            logger,
		heartbeatInterval: heartbeatInterval,
		heartbeatTimeout:  heartbeatTimeout,
		now:               time.Now,
		clients:           make(map[string]*clientState),
	}
}

func (r *InMemoryRegistry) SetSnapshotProvider(provider SnapshotProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.provider = provider
}

// Register adds the connection with an empty subscription set, sends it a
// welcome message, and serves it a full snapshot when a provider is
// registered.
func (r *InMemoryRegistry) Register(connection *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[connection.Id] = &clientState{
		connection: connection,
		topics:     make(map[string]struct{}),
		lastSeen:   r.now(),
	}

	r.trySendLocked(connection, Message{
		Type:      KindConnected,
		Data:      map[string]string{"connectionId": connection.Id},
		Timestamp: r.now(),
	})

	if r.provider != nil {
		r.trySendLocked(connection, Message{
			Type:      KindSnapshot,
			Data:      r.provider(),
			Timestamp: r.now(),
		})
	}

	r.logger.Info("connection registered",
		zap.String("connectionId", connection.Id),
		zap.Int("clients", len(r.clients)))

	return nil
}

func (r *InMemoryRegistry) Subscribe(connectionId string, topics []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.clients[connectionId]
	if !ok {
		r.logger.Debug("subscribe for unknown connection",
			zap.String("connectionId", connectionId))

		return
	}

	for _, topic := range topics {
		state.topics[topic] = struct{}{}
	}
}

func (r *InMemoryRegistry) Unsubscribe(connectionId string, topics []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.clients[connectionId]
	if !ok {
		r.logger.Debug("unsubscribe for unknown connection",
			zap.String("connectionId", connectionId))

		return
	}

	for _, topic := range topics {
		delete(state.topics, topic)
	}
}

// Touch records proof of life for a connection. The transport calls it on
// every pong and on every inbound client message.
func (r *InMemoryRegistry) Touch(connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.clients[connectionId]; ok {
		state.lastSeen = r.now()
	}
}

func (r *InMemoryRegistry) BroadcastToTopic(topic string, message Message) {
	r.broadcast(message, func(state *clientState) bool {
		return state.subscribedTo(topic)
	})
}

func (r *InMemoryRegistry) BroadcastToAll(message Message) {
	r.broadcast(message, func(*clientState) bool {
		return true
	})
}

func (r *InMemoryRegistry) broadcast(message Message, include func(*clientState) bool) {
	r.mu.RLock()

	var staleConnectionIds []string

	for connectionId, state := range r.clients {
		if !include(state) {
			continue
		}

		if !r.trySend(state.connection, message) {
			staleConnectionIds = append(staleConnectionIds, connectionId)
		}
	}

	r.mu.RUnlock()

	if len(staleConnectionIds) == 0 {
		return
	}

	r.mu.Lock()

	for _, connectionId := range staleConnectionIds {
		r.removeLocked(connectionId)
	}

	r.mu.Unlock()
}

// trySend queues the message without blocking. A full send buffer means
// the peer stopped draining; the connection is reported stale so the
// caller can evict it without stalling the rest of the fan-out.
func (r *InMemoryRegistry) trySend(connection *Connection, message Message) bool {
	select {
	case connection.Send <- message:
		return true
	default:
		r.logger.Warn("connection send buffer full, scheduling removal",
			zap.String("connectionId", connection.Id))

		return false
	}
}

func (r *InMemoryRegistry) trySendLocked(connection *Connection, message Message) {
	if !r.trySend(connection, message) {
		r.removeLocked(connection.Id)
	}
}

func (r *InMemoryRegistry) Remove(connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(connectionId)
}

// IMPORTANT: it must be called only when the write lock is already held.
func (r *InMemoryRegistry) removeLocked(connectionId string) {
	state, ok := r.clients[connectionId]
	if !ok {
		return
	}

	delete(r.clients, connectionId)
	close(state.connection.Send)

	if err := state.connection.Close(); err != nil {
		r.logger.Debug("closing connection",
			zap.String("connectionId", connectionId),
			zap.Error(err))
	}

	r.logger.Info("connection removed",
		zap.String("connectionId", connectionId),
		zap.Int("clients", len(r.clients)))
}

func (r *InMemoryRegistry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

func (r *InMemoryRegistry) SubscriberCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, state := range r.clients {
		if state.subscribedTo(topic) {
			count++
		}
	}

	return count
}

// RunHeartbeat probes every connection on a fixed interval and evicts the
// ones whose last proof of life is older than the timeout. Blocks until
// ctx is done.
func (r *InMemoryRegistry) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *InMemoryRegistry) sweep() {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for connectionId, state := range r.clients {
		if now.Sub(state.lastSeen) > r.heartbeatTimeout {
			r.logger.Warn("connection missed heartbeat deadline, evicting",
				zap.String("connectionId", connectionId),
				zap.Time("lastSeen", state.lastSeen))

			r.removeLocked(connectionId)

			continue
		}

		if err := state.connection.Ping(); err != nil {
			r.logger.Warn("heartbeat probe failed, evicting",
				zap.String("connectionId", connectionId),
				zap.Error(err))

			r.removeLocked(connectionId)
		}
	}
}
