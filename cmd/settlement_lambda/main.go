package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/chris/invoice-settlement/pkg/bootstrap"
	"github.com/chris/invoice-settlement/pkg/config"
	"github.com/chris/invoice-settlement/pkg/consolidation"
	"github.com/chris/invoice-settlement/pkg/logger"
	"github.com/chris/invoice-settlement/pkg/mapping"
	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/websockets"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// engine runs one settlement request.
type engine interface {
	ConsolidateAndSettle(ctx context.Context, req models.ConsolidationRequest, onProgress consolidation.ProgressFunc) (*consolidation.SettlementOutcome, error)
}

type worker struct {
	engine    engine
	publisher websockets.Publisher
	logger    *zap.Logger
}

// newWorker initializes dependencies once per lambda container.
func newWorker() *worker {
	// Load environment variables from .env file (useful for local testing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

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

	var publisher websockets.Publisher = &websockets.NoOpPublisher{}
	if cfg.WebSocket.Endpoint != "" {
		publisher = websockets.NewPublisher(awsCfg, stores.Connections, stores.Connections, cfg.WebSocket.Endpoint, zl.Named("publisher"))
	}

	return &worker{
		engine:    consolidation.NewEngine(stores.Invoices, bootstrap.EngineConfig(cfg.Engine), zl.Named("engine")),
		publisher: publisher,
		logger:    zl,
	}
}

// HandleRequest settles each queued request. Messages that fail before any payment was
// written are reported back to SQS for redelivery; everything else is consumed.
func (w *worker) HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, message := range sqsEvent.Records {
		msgLogger := w.logger.With(zap.String("message_id", message.MessageId))

		var req models.ConsolidationRequest
		if err := json.Unmarshal([]byte(message.Body), &req); err != nil {
			// Redelivery cannot fix a malformed body.
			msgLogger.Error("Dropping malformed settlement message", zap.Error(err))
			continue
		}
		msgLogger = msgLogger.With(zap.String("run_id", req.RunID), zap.String("customer_id", req.CustomerID))

		out, err := w.engine.ConsolidateAndSettle(ctx, req, w.progress(ctx, req))
		if retryable(out, err) {
			msgLogger.Warn("Settlement will be retried", zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: message.MessageId})
			continue
		}
		if out == nil {
			msgLogger.Error("Dropping invalid settlement request", zap.Error(err))
			continue
		}

		fields := []zap.Field{
			zap.String("status", string(out.Status)),
			zap.Int64("applied", out.AppliedAmount),
			zap.Int("closed", out.ClosedCount),
			zap.Int("failures", len(out.Failures)),
		}
		if err != nil {
			msgLogger.Error("Settlement finished with error", append(fields, zap.Error(err))...)
		} else {
			msgLogger.Info("Settlement finished", fields...)
		}

		if err := w.publisher.Publish(ctx, websockets.Message{Type: websockets.MessageTypeSettlementCompleted, Payload: mapping.ToApiOutcome(out)}); err != nil {
			msgLogger.Warn("Failed to publish settlement outcome", zap.Error(err))
		}
	}
	return resp, nil
}

// retryable reports runs that stopped before any payment was written, so that running
// them again cannot apply the cash twice.
func retryable(out *consolidation.SettlementOutcome, err error) bool {
	if errors.Is(err, consolidation.ErrStoreUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return out != nil && out.AppliedAmount == 0 && out.ClosedCount == 0
	}
	return false
}

func (w *worker) progress(ctx context.Context, req models.ConsolidationRequest) consolidation.ProgressFunc {
	return func(p consolidation.Progress) {
		msg := mapping.ToProgressMessage(req.RunID, req.CustomerID, p)
		if err := w.publisher.Publish(ctx, msg); err != nil {
			w.logger.Warn("Failed to publish settlement progress", zap.String("run_id", req.RunID), zap.Error(err))
		}
	}
}

func main() {
	lambda.Start(newWorker().HandleRequest)
}
