// Package bootstrap opens the backing services shared by the HTTP server and the lambdas.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/chris/invoice-settlement/pkg/config"
	"github.com/chris/invoice-settlement/pkg/consolidation"
	"github.com/chris/invoice-settlement/pkg/storage"
	dydbstore "github.com/chris/invoice-settlement/pkg/storage/dynamodb"
	"github.com/chris/invoice-settlement/pkg/storage/memory"
	mongostore "github.com/chris/invoice-settlement/pkg/storage/mongo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// Stores is the opened data layer.
type Stores struct {
	Invoices    storage.Storage
	Connections storage.ConnectionStore

	close func(ctx context.Context) error
}

// Close releases the underlying clients.
func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// OpenStores connects the configured invoice store backend. Websocket connections are
// kept in DynamoDB when a connections table is configured and in memory otherwise.
func OpenStores(ctx context.Context, cfg config.StoreConfig, awsCfg aws.Config, logger *zap.Logger) (*Stores, error) {
	stores := &Stores{}

	var dynamo *dydbstore.Store
	if cfg.Backend == config.BackendDynamoDB || cfg.ConnectionsTable != "" {
		dynamo = dydbstore.New(dynamodb.NewFromConfig(awsCfg), cfg.InvoicesTable, cfg.PaymentsTable, cfg.ConnectionsTable)
	}
	if cfg.ConnectionsTable != "" {
		stores.Connections = dynamo
	}

	switch cfg.Backend {
	case config.BackendDynamoDB:
		stores.Invoices = dynamo
		logger.Info("Using dynamodb store", zap.String("invoices_table", cfg.InvoicesTable))

	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("failed to ping mongodb: %w", err)
		}

		store := mongostore.New(client, cfg.MongoDatabase)
		if err := store.EnsureIndexes(connectCtx); err != nil {
			logger.Warn("Failed to create indexes", zap.Error(err))
		}
		stores.Invoices = store
		stores.close = client.Disconnect
		logger.Info("Using mongodb store", zap.String("db", cfg.MongoDatabase))

	case config.BackendMemory:
		store := memory.New()
		stores.Invoices = store
		if stores.Connections == nil {
			stores.Connections = store
		}
		logger.Warn("Using in-memory store; data is lost on restart")

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	if stores.Connections == nil {
		stores.Connections = memory.New()
	}
	return stores, nil
}

// EngineConfig converts the engine section of the service configuration.
func EngineConfig(cfg config.EngineConfig) consolidation.Config {
	return consolidation.Config{
		PageSize:       cfg.PageSize,
		MaxPages:       cfg.MaxPages,
		MaxInvoices:    cfg.MaxInvoices,
		MaxSearchUnits: cfg.MaxSearchUnits,
	}
}
