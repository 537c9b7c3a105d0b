package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps one document per key: {_id: key, ids: [...], updated_at}.
type MongoStore struct {
	coll *mongo.Collection
}

type streamDoc struct {
	Key       string    `bson:"_id"`
	IDs       []string  `bson:"ids"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	return &MongoStore{coll: client.Database(dbName).Collection(collName)}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: -1}},
	})
	return err
}

func (s *MongoStore) Load(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc streamDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load streams %s: %w", key, err)
	}
	return doc.IDs, nil
}

func (s *MongoStore) Save(ctx context.Context, key string, ids []string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if ids == nil {
		ids = []string{}
	}
	doc := streamDoc{Key: key, IDs: ids, UpdatedAt: time.Now().UTC()}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save streams %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; the mongo client is owned and disconnected by main.
func (s *MongoStore) Close() error { return nil }
