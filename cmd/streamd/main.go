package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/citypulse/streamd/internal/aggregator"
	"github.com/citypulse/streamd/internal/broadcaster"
	"github.com/citypulse/streamd/internal/entity"
	"github.com/citypulse/streamd/internal/handler"
	"github.com/citypulse/streamd/internal/persistence"
	"github.com/citypulse/streamd/internal/persistence/mongodb"
	"github.com/citypulse/streamd/internal/server"
	"github.com/citypulse/streamd/internal/source"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

type App struct {
	logger          *zap.Logger
	settings        Settings
	registry        *broadcaster.InMemoryRegistry
	aggregator      *aggregator.Aggregator
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
}

func NewApp(logger *zap.Logger, settings Settings, archive persistence.Engine) *App {
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       func(r *http.Request) bool { return true },
		EnableCompression: true,
	}

	registry := broadcaster.NewInMemoryRegistry(
		logger,
		settings.HeartbeatInterval,
		settings.HeartbeatTimeout,
	)

	brokerClient := source.NewContextBrokerClient(
		logger,
		settings.ContextBrokerURL,
		&http.Client{Timeout: settings.FetchTimeout},
	)

	entityAggregator := aggregator.NewAggregator(
		logger,
		brokerClient,
		registry,
		archive,
		trackedDescriptors(settings),
		settings.FetchTimeout,
	)

	topicValidator := handler.NewTopicValidator()
	subscribeHandler := handler.NewSubscribeHandler(topicValidator, registry)
	unsubscribeHandler := handler.NewUnsubscribeHandler(topicValidator, registry)
	alertHandler := handler.NewAlertHandler(topicValidator, registry)

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		registry,
		subscribeHandler,
		unsubscribeHandler,
	)
	restServer := server.NewRESTServer(
		logger,
		alertHandler,
		entityAggregator.Snapshot,
		registry,
		archive,
	)

	return &App{
		logger,
		settings,
		registry,
		entityAggregator,
		websocketServer,
		restServer,
	}
}

// trackedDescriptors applies environment overrides on top of the catalog
// defaults; an unset interval keeps the default.
func trackedDescriptors(settings Settings) []entity.Descriptor {
	overrides := map[string]time.Duration{
		entity.TopicCameras:    settings.CamerasPollInterval,
		entity.TopicWeather:    settings.WeatherPollInterval,
		entity.TopicAirQuality: settings.AirQualityPollInterval,
		entity.TopicAccidents:  settings.AccidentsPollInterval,
		entity.TopicPatterns:   settings.PatternsPollInterval,
	}

	descriptors := entity.Catalog()
	for i := range descriptors {
		if interval, ok := overrides[descriptors[i].Topic]; ok && interval > 0 {
			descriptors[i].PollInterval = interval
		}
	}

	return descriptors
}

func (a *App) run(ctx context.Context) {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	go a.registry.RunHeartbeat(notifyCtx)

	a.aggregator.Start(notifyCtx)
	defer a.aggregator.Stop()

	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter().
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:    address,
		Handler: router,
	}

	a.logger.Info("starting http server",
		zap.String("address", address))

	go func() {
		err := httpServer.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("failed to start http server",
				zap.Error(err))
		}
	}()

	<-notifyCtx.Done()

	a.logger.Info("stopping http server")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Fatal("http server shutdown failed",
			zap.Error(err))
	}

	a.logger.Info("http server stopped")
}

func buildArchive(ctx context.Context, logger *zap.Logger, settings Settings) persistence.Engine {
	if settings.MongoDBURI == "" {
		logger.Info("no archive store configured, entity history disabled")

		return persistence.NewNoopEngine()
	}

	client, err := mongo.Connect(options.Client().ApplyURI(settings.MongoDBURI))
	if err != nil {
		logger.Fatal("failed to connect to mongodb", zap.Error(err))
	}

	archive := mongodb.NewArchiveEngine(client)

	setupCtx, setupCtxCancel := context.WithTimeout(ctx, 30*time.Second)
	defer setupCtxCancel()

	if err := archive.Setup(setupCtx); err != nil {
		logger.Fatal("failed to set up archive indexes", zap.Error(err))
	}

	return archive
}

func main() {
	ctx := context.Background()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		panic(err)
	}

	logger, err := buildZapLogger(settings.LogEncoding)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	archive := buildArchive(ctx, logger, settings)

	app := NewApp(logger, settings, archive)
	app.run(ctx)
}
