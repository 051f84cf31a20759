package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/chris/invoice-settlement/pkg/bootstrap"
	"github.com/chris/invoice-settlement/pkg/config"
	"github.com/chris/invoice-settlement/pkg/logger"
	"github.com/chris/invoice-settlement/pkg/storage"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type reconciler struct {
	store     storage.ReconciliationStore
	batchSize int32
	logger    *zap.Logger
}

func newReconciler() *reconciler {
	// Load environment variables for local testing.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	zl := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		zl.Fatal("Unable to load SDK config", zap.Error(err))
	}
	stores, err := bootstrap.OpenStores(ctx, cfg.Store, awsCfg, zl)
	if err != nil {
		zl.Fatal("Failed to open stores", zap.Error(err))
	}

	return &reconciler{
		store:     stores.Invoices,
		batchSize: int32(cfg.Reconciliation.BatchSize),
		logger:    zl,
	}
}

// HandleRequest is triggered by an EventBridge Schedule. It closes invoices whose
// payment was applied but whose close command never succeeded.
func (r *reconciler) HandleRequest(ctx context.Context) error {
	r.logger.Info("Starting reconciliation of paid open invoices")

	invoices, err := r.store.ListPaidOpenInvoices(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("Failed to list paid open invoices", zap.Error(err))
		return err
	}

	if len(invoices) == 0 {
		r.logger.Info("No paid open invoices found")
		return nil
	}

	closed := 0
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.store.MarkClosedIfFullyPaid(ctx, inv.Id); err != nil {
			// Continue with the next invoice, don't let one failure stop the whole batch.
			r.logger.Error("Failed to close invoice", zap.String("invoice_id", inv.Id), zap.Error(err))
			continue
		}
		closed++
	}

	r.logger.Info("Reconciliation finished", zap.Int("found", len(invoices)), zap.Int("closed", closed))
	return nil
}

func main() {
	lambda.Start(newReconciler().HandleRequest)
}
