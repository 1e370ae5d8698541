package repository

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	MessagesCollection = "messages"
	UsersCollection    = "users"
	GroupsCollection   = "groups"
	AlertsCollection   = "notifications"
	CallLogsCollection = "call_logs"
)

// NewMongoClient connects and pings with exponential backoff until maxElapsed.
func NewMongoClient(ctx context.Context, uri string, maxElapsed time.Duration, log *zap.Logger) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	ping := func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pctx, nil)
	}
	notify := func(err error, next time.Duration) {
		log.Warn("mongo ping failed, retrying", zap.Error(err), zap.Duration("next", next))
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(b, ctx), notify); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the lookup indexes and the TTL index that expires
// messages messageTTL after created_at.
func EnsureIndexes(ctx context.Context, db *mongo.Database, messageTTL time.Duration) error {
	msgs := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetName("message_ttl_idx").SetExpireAfterSeconds(int32(messageTTL / time.Second)),
		},
		{
			Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "delivered", Value: 1}},
			Options: options.Index().SetName("recipient_delivered_idx"),
		},
		{
			Keys:    bson.D{{Key: "sender_id", Value: 1}, {Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("pair_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("group_created_idx").SetSparse(true),
		},
	}
	if _, err := db.Collection(MessagesCollection).Indexes().CreateMany(ctx, msgs); err != nil {
		return err
	}

	alerts := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "type", Value: 1}},
		Options: options.Index().SetName("user_type_idx"),
	}
	if _, err := db.Collection(AlertsCollection).Indexes().CreateOne(ctx, alerts); err != nil {
		return err
	}

	logs := mongo.IndexModel{
		Keys:    bson.D{{Key: "caller_id", Value: 1}, {Key: "started_at", Value: -1}},
		Options: options.Index().SetName("caller_started_idx"),
	}
	_, err := db.Collection(CallLogsCollection).Indexes().CreateOne(ctx, logs)
	return err
}
