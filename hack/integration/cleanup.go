package integration

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DatabaseCleaner removes cached stream lists left by test runs.
type DatabaseCleaner struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewDatabaseCleaner(mongoURI, dbName, collection string) (*DatabaseCleaner, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &DatabaseCleaner{client: client, coll: client.Database(dbName).Collection(collection)}, nil
}

func (d *DatabaseCleaner) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// CleanOwner drops the cached list for one wallet.
func (d *DatabaseCleaner) CleanOwner(ctx context.Context, key string) error {
	_, err := d.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

// CleanOlderThan drops lists not written within duration.
func (d *DatabaseCleaner) CleanOlderThan(ctx context.Context, duration time.Duration) (int64, error) {
	res, err := d.coll.DeleteMany(ctx, bson.M{"updated_at": bson.M{"$lt": time.Now().Add(-duration)}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
