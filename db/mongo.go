package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// NewMongoClient dials the history database and verifies the connection.
func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, errors.New("mongo connection uri is empty")
	}

	opts := options.Client().ApplyURI(uri)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(pingCtx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, nil
}

// EnsureHistoryIndexes creates the per-user timeline indexes the history
// store reads through. Safe to call on every start.
func EnsureHistoryIndexes(ctx context.Context, database *mongo.Database) error {
	timeline := mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: 1}},
	}

	if _, err := database.Collection(messagesCollection).Indexes().CreateOne(ctx, timeline); err != nil {
		return fmt.Errorf("ensure %s index: %w", messagesCollection, err)
	}
	if _, err := database.Collection(journalCollection).Indexes().CreateOne(ctx, timeline); err != nil {
		return fmt.Errorf("ensure %s index: %w", journalCollection, err)
	}

	byMessageID := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "message_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := database.Collection(messagesCollection).Indexes().CreateOne(ctx, byMessageID); err != nil {
		return fmt.Errorf("ensure %s message id index: %w", messagesCollection, err)
	}

	return nil
}
