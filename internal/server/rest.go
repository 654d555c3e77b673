package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/citypulse/streamd/internal/broadcaster"
	"github.com/citypulse/streamd/internal/entity"
	"github.com/citypulse/streamd/internal/handler"
	"github.com/citypulse/streamd/internal/ierr"
	"github.com/citypulse/streamd/internal/persistence"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 20

type RESTServer struct {
	logger *zap.Logger

	alertHandler handler.AlertHandlerInterface
	snapshot     broadcaster.SnapshotProvider
	registry     broadcaster.Registry
	archive      persistence.Engine
}

func NewRESTServer(
	logger *zap.Logger,
	alertHandler handler.AlertHandlerInterface,
	snapshot broadcaster.SnapshotProvider,
	registry broadcaster.Registry,
	archive persistence.Engine,
) *RESTServer {
	return &RESTServer{
		logger,
		alertHandler,
		snapshot,
		registry,
		archive,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.HandleFunc("/alerts", s.handleAlert).Methods("POST", "OPTIONS")
	router.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")
	router.HandleFunc("/stats", s.handleStats).Methods("GET")
	router.HandleFunc("/history/{topic}/{id}", s.handleHistory).Methods("GET")
}

func (s *RESTServer) handleAlert(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		return
	}

	var alertRequest handler.AlertRequest
	err := json.NewDecoder(r.Body).Decode(&alertRequest)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	message, err := s.alertHandler.Handle(r.Context(), alertRequest)
	if err != nil {
		if ierr.Code(err) == ierr.ErrorCodeInvalidArgument {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		s.logger.Error("failed to handle alert request", zap.Error(err))
		http.Error(w, "failed to handle alert request", http.StatusInternalServerError)

		return
	}

	s.writeJSON(w, message)
}

func (s *RESTServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	s.writeJSON(w, s.snapshot())
}

type statsResponse struct {
	Clients     int            `json:"clients"`
	Subscribers map[string]int `json:"subscribers"`
}

func (s *RESTServer) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	subscribers := make(map[string]int)
	for _, descriptor := range entity.Catalog() {
		subscribers[descriptor.Topic] = s.registry.SubscriberCount(descriptor.Topic)
	}

	s.writeJSON(w, statsResponse{
		Clients:     s.registry.ClientCount(),
		Subscribers: subscribers,
	})
}

func (s *RESTServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	vars := mux.Vars(r)
	topic := vars["topic"]
	entityId := vars["id"]

	if !entity.IsTrackedTopic(topic) {
		http.Error(w, "unknown topic", http.StatusNotFound)

		return
	}

	limit := int64(defaultHistoryLimit)
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.ParseInt(rawLimit, 10, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)

			return
		}

		limit = parsed
	}

	revisions, err := s.archive.History(r.Context(), topic, entityId, limit)
	if err != nil {
		s.logger.Error("failed to load entity history",
			zap.String("topic", topic),
			zap.String("entityId", entityId),
			zap.Error(err))
		http.Error(w, "failed to load history", http.StatusInternalServerError)

		return
	}

	if revisions == nil {
		revisions = []persistence.Revision{}
	}

	s.writeJSON(w, revisions)
}

func (s *RESTServer) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(value); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
