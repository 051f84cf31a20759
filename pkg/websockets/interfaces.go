package websockets

import (
	"context"
)

// ConnectionManager defines the interface for managing WebSocket connections.
type ConnectionManager interface {
	AddConnection(ctx context.Context, connectionID string) error
	RemoveConnection(ctx context.Context, connectionID string) error
}

// AllConnectionsGetter defines an interface for getting all connection IDs.
type AllConnectionsGetter interface {
	GetAllConnections(ctx context.Context) ([]string, error)
}

// Publisher defines the interface for publishing messages to WebSocket clients.
type Publisher interface {
	Publish(ctx context.Context, message Message) error
}

// NoOpPublisher drops every message. It is used when no websocket endpoint is configured.
type NoOpPublisher struct{}

// Publish does nothing.
func (p *NoOpPublisher) Publish(ctx context.Context, message Message) error {
	return nil
}
