package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/citypulse/streamd/internal/broadcaster"
	"github.com/citypulse/streamd/internal/handler"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

type WebSocketServer struct {
	logger   *zap.Logger
	upgrader *websocket.Upgrader
	registry broadcaster.Registry

	subscribeHandler   handler.SubscribeHandlerInterface
	unsubscribeHandler handler.UnsubscribeHandlerInterface
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	registry broadcaster.Registry,
	subscribeHandler handler.SubscribeHandlerInterface,
	unsubscribeHandler handler.UnsubscribeHandlerInterface,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		registry,
		subscribeHandler,
		unsubscribeHandler,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/websocket", func(w http.ResponseWriter, r *http.Request) {
		socket, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", zap.Error(err))

			return
		}

		socket.SetReadLimit(maxMessageSize)

		connection := broadcaster.NewConnection(
			func() error {
				return socket.WriteControl(
					websocket.PingMessage,
					nil,
					time.Now().Add(writeWait),
				)
			},
			socket.Close,
		)

		socket.SetPongHandler(func(string) error {
			s.registry.Touch(connection.Id)

			return nil
		})

		logger := s.logger.With(zap.String("connectionId", connection.Id))
		logger.Info("websocket connection established")

		go s.writePump(socket, connection)

		// Register only after the write pump is draining Send, so the
		// welcome and snapshot messages reach the wire.
		if err := s.registry.Register(connection); err != nil {
			logger.Warn("failed to register connection", zap.Error(err))
			socket.Close()

			return
		}

		s.readLoop(logger, socket, connection)
	})
}

// readLoop consumes client control messages until the peer goes away.
// Malformed messages are logged and ignored; only transport errors end
// the connection.
func (s *WebSocketServer) readLoop(logger *zap.Logger, socket *websocket.Conn, connection *broadcaster.Connection) {
	defer s.registry.Remove(connection.Id)

	for {
		_, raw, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			} else {
				logger.Info("websocket connection closed")
			}

			return
		}

		s.registry.Touch(connection.Id)

		var control handler.ControlMessage
		if err := json.Unmarshal(raw, &control); err != nil {
			logger.Warn("ignoring malformed control message", zap.Error(err))

			continue
		}

		s.handleControl(logger, connection, control)
	}
}

func (s *WebSocketServer) handleControl(logger *zap.Logger, connection *broadcaster.Connection, control handler.ControlMessage) {
	switch control.Action {
	case handler.ActionSubscribe:
		err := s.subscribeHandler.Handle(handler.SubscribeRequest{
			ConnectionId: connection.Id,
			Topics:       control.Topics,
		})
		if err != nil {
			logger.Warn("subscribe rejected",
				zap.Strings("topics", control.Topics),
				zap.Error(err))
		}
	case handler.ActionUnsubscribe:
		err := s.unsubscribeHandler.Handle(handler.UnsubscribeRequest{
			ConnectionId: connection.Id,
			Topics:       control.Topics,
		})
		if err != nil {
			logger.Warn("unsubscribe rejected",
				zap.Strings("topics", control.Topics),
				zap.Error(err))
		}
	default:
		logger.Warn("ignoring unknown control action",
			zap.String("action", control.Action))
	}
}

// writePump drains the registry's Send channel onto the socket. It exits
// when the registry closes the channel, after sending a close frame.
func (s *WebSocketServer) writePump(socket *websocket.Conn, connection *broadcaster.Connection) {
	for message := range connection.Send {
		socket.SetWriteDeadline(time.Now().Add(writeWait))

		if err := socket.WriteJSON(message); err != nil {
			s.logger.Debug("websocket write failed",
				zap.String("connectionId", connection.Id),
				zap.Error(err))

			s.registry.Remove(connection.Id)

			// Remove closed Send; drain what was already queued.
			for range connection.Send {
			}

			return
		}
	}

	socket.SetWriteDeadline(time.Now().Add(writeWait))
	socket.WriteMessage(websocket.CloseMessage, []byte{})
	socket.Close()
}
