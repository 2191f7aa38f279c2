package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultAppName     = "storefront"
	defaultMaxPoolSize = 100
	defaultMinPoolSize = 10
)

// MongoOptions configures the cart store connection. Zero values take the
// package defaults.
type MongoOptions struct {
	URI         string
	Database    string
	AppName     string
	MaxPoolSize uint64
	MinPoolSize uint64
}

func ConnectMongoDB(ctx context.Context, opts MongoOptions) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, clientOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(opts.Database), nil
}

func clientOptions(opts MongoOptions) *options.ClientOptions {
	if opts.AppName == "" {
		opts.AppName = defaultAppName
	}
	if opts.MaxPoolSize == 0 {
		opts.MaxPoolSize = defaultMaxPoolSize
	}
	if opts.MinPoolSize == 0 {
		opts.MinPoolSize = defaultMinPoolSize
	}
	// The driver rejects a min pool above the max.
	if opts.MinPoolSize > opts.MaxPoolSize {
		opts.MinPoolSize = opts.MaxPoolSize
	}

	return options.Client().
		ApplyURI(opts.URI).
		SetAppName(opts.AppName).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(opts.MaxPoolSize).
		SetMinPoolSize(opts.MinPoolSize)
}
