package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kyvra-tech/symbol-nodes-tracker-backend/internal/config"
)

const (
	CollectionNodes    = "nodes"
	CollectionSettings = "settings"
)

// MongoDB bundles the client with the tracker database handle
type MongoDB struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// NewMongoDB connects, pings and makes sure the registry indexes exist
func NewMongoDB(cfg *config.MongoDBConfig) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	m := &MongoDB{Client: client, DB: client.Database(cfg.Database)}
	if err := m.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return m, nil
}

func (m *MongoDB) createIndexes(ctx context.Context) error {
	_, err := m.DB.Collection(CollectionNodes).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "host", Value: 1}, {Key: "publicKey", Value: 1}},
			Options: options.Index().SetName("identity").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "peer.lastStatusCheck", Value: 1}},
			Options: options.Index().SetName("peer_last_status_check"),
		},
		{
			Keys:    bson.D{{Key: "api.lastStatusCheck", Value: 1}},
			Options: options.Index().SetName("api_last_status_check"),
		},
		{
			Keys:    bson.D{{Key: "voting.lastStatusCheck", Value: 1}},
			Options: options.Index().SetName("voting_last_status_check"),
		},
	})
	if err != nil {
		return err
	}

	_, err = m.DB.Collection(CollectionSettings).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetName("key").SetUnique(true),
	})
	return err
}

// Ping checks the primary is reachable
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.Client.Ping(ctx, nil)
}

func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.Client.Disconnect(ctx)
}
