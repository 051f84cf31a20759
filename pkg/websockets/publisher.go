package websockets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"go.uber.org/zap"
)

// PostToConnectionAPI is the subset of the API Gateway management client used by the publisher.
type PostToConnectionAPI interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// DefaultPublisher pushes messages to every client connected through API Gateway.
type DefaultPublisher struct {
	store       AllConnectionsGetter
	connManager ConnectionManager
	apiGwClient PostToConnectionAPI
	logger      *zap.Logger
}

// NewPublisher creates a DefaultPublisher that posts to the given API Gateway endpoint.
func NewPublisher(awsCfg aws.Config, store AllConnectionsGetter, connManager ConnectionManager, apiEndpoint string, logger *zap.Logger) *DefaultPublisher {
	apiGwClient := apigatewaymanagementapi.NewFromConfig(awsCfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(apiEndpoint)
	})
	return NewPublisherWithClient(apiGwClient, store, connManager, logger)
}

// NewPublisherWithClient creates a DefaultPublisher around an existing client.
func NewPublisherWithClient(client PostToConnectionAPI, store AllConnectionsGetter, connManager ConnectionManager, logger *zap.Logger) *DefaultPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultPublisher{
		store:       store,
		connManager: connManager,
		apiGwClient: client,
		logger:      logger,
	}
}

// Publish sends a message to all connected clients. Stale connections are removed;
// other delivery failures are logged and do not fail the publish.
func (p *DefaultPublisher) Publish(ctx context.Context, message Message) error {
	connectionIDs, err := p.store.GetAllConnections(ctx)
	if err != nil {
		return fmt.Errorf("failed to get all connections: %w", err)
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	for _, connectionID := range connectionIDs {
		_, err := p.apiGwClient.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
			ConnectionId: aws.String(connectionID),
			Data:         payload,
		})
		if err == nil {
			continue
		}

		var goneErr *apigwtypes.GoneException
		if errors.As(err, &goneErr) {
			p.logger.Info("Stale connection found, deleting", zap.String("connection_id", connectionID))
			if err := p.connManager.RemoveConnection(ctx, connectionID); err != nil {
				p.logger.Error("Failed to delete stale connection", zap.String("connection_id", connectionID), zap.Error(err))
			}
		} else {
			p.logger.Error("Failed to post to connection", zap.String("connection_id", connectionID), zap.Error(err))
		}
	}

	return nil
}
