package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	connectionsPK    = "connections"
	connectionsIndex = "pk-index"
	connectionTTL    = 2 * time.Hour
)

// WebSocketConnection represents a client following settlement progress.
type WebSocketConnection struct {
	ConnectionID string    `dynamodbav:"connection_id"`
	PK           string    `dynamodbav:"pk"`
	ConnectedAt  time.Time `dynamodbav:"connected_at"`
	TTL          int64     `dynamodbav:"ttl"`
}

// AddConnection saves a new WebSocket connection ID. Connections expire through the table TTL
// in case the disconnect route never fires.
func (s *Store) AddConnection(ctx context.Context, connectionID string) error {
	now := time.Now().UTC()
	conn := WebSocketConnection{
		ConnectionID: connectionID,
		PK:           connectionsPK,
		ConnectedAt:  now,
		TTL:          now.Add(connectionTTL).Unix(),
	}
	item, err := attributevalue.MarshalMap(conn)
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.WebsocketConnectionsTableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put connection: %w", err)
	}

	return nil
}

// RemoveConnection deletes a WebSocket connection ID.
func (s *Store) RemoveConnection(ctx context.Context, connectionID string) error {
	key, err := attributevalue.MarshalMap(map[string]string{
		"connection_id": connectionID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal connection key: %w", err)
	}

	_, err = s.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.WebsocketConnectionsTableName),
		Key:       key,
	})
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	return nil
}

// GetAllConnections retrieves all active WebSocket connection IDs.
func (s *Store) GetAllConnections(ctx context.Context) ([]string, error) {
	queryOutput, err := s.Client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.WebsocketConnectionsTableName),
		IndexName:              aws.String(connectionsIndex),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: connectionsPK},
		},
		ProjectionExpression: aws.String("connection_id"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query connections table: %w", err)
	}

	var connections []WebSocketConnection
	if err := attributevalue.UnmarshalListOfMaps(queryOutput.Items, &connections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connections: %w", err)
	}

	connectionIDs := make([]string, len(connections))
	for i, conn := range connections {
		connectionIDs[i] = conn.ConnectionID
	}

	return connectionIDs, nil
}
