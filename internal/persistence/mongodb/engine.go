package mongodb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/citypulse/streamd/internal/persistence"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const historyTTLSeconds = 5 * 24 * 60 * 60

type revisionDocument struct {
	Id         bson.ObjectID `bson:"_id"`
	ObservedAt time.Time     `bson:"observedAt"`
	Topic      string        `bson:"topic"`
	EntityId   string        `bson:"entityId"`
	Payload    string        `bson:"payload"`
}

type ArchiveEngine struct {
	collection *mongo.Collection
}

func NewArchiveEngine(client *mongo.Client) *ArchiveEngine {
	database := client.Database("streamd")
	collection := database.Collection("entity_history")

	return &ArchiveEngine{
		collection,
	}
}

func (e *ArchiveEngine) Setup(ctx context.Context) error {
	ttlIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "observedAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(historyTTLSeconds),
	}

	lookupIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "topic", Value: 1},
			{Key: "entityId", Value: 1},
			{Key: "_id", Value: -1},
		},
	}

	_, err := e.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{ttlIndexModel, lookupIndexModel})

	return err
}

func (e *ArchiveEngine) Archive(ctx context.Context, topic string, payloads []map[string]any) error {
	observedAt := time.Now()

	documents := make([]any, 0, len(payloads))
	for _, payload := range payloads {
		entityId, _ := payload["id"].(string)

		payloadJson, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		documents = append(documents, bson.D{
			{Key: "observedAt", Value: observedAt},
			{Key: "topic", Value: topic},
			{Key: "entityId", Value: entityId},
			{Key: "payload", Value: string(payloadJson)},
		})
	}

	if len(documents) == 0 {
		return nil
	}

	_, err := e.collection.InsertMany(ctx, documents)

	return err
}

func (e *ArchiveEngine) History(ctx context.Context, topic string, entityId string, limit int64) ([]persistence.Revision, error) {
	filter := bson.M{
		"topic":    topic,
		"entityId": entityId,
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(limit)

	result, err := e.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var documents []revisionDocument
	err = result.All(ctx, &documents)
	if err != nil {
		return nil, err
	}

	revisions := make([]persistence.Revision, len(documents))
	for i, document := range documents {
		var payload map[string]any
		err := json.Unmarshal([]byte(document.Payload), &payload)
		if err != nil {
			return nil, err
		}

		revisions[i] = persistence.Revision{
			Topic:      document.Topic,
			EntityId:   document.EntityId,
			ObservedAt: document.ObservedAt,
			Payload:    payload,
		}
	}

	return revisions, nil
}
