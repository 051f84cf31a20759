package websockets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

// Hub publishes messages to websocket clients connected directly to this process.
// It is used by the local HTTP server instead of API Gateway.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]*websocket.Conn
	logger *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{conns: make(map[string]*websocket.Conn), logger: logger}
}

var _ Publisher = (*Hub)(nil)

// Register adds a connection under the given id.
func (h *Hub) Register(connectionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connectionID] = conn
}

// Unregister forgets a connection. It does not close it.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connectionID)
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Publish writes the message to every registered connection. Connections that fail
// to accept the write are closed and dropped.
func (h *Hub) Publish(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Writes happen under the lock: gorilla connections allow one concurrent writer.
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("Dropping local websocket connection", zap.String("connection_id", id), zap.Error(err))
			_ = conn.Close()
			delete(h.conns, id)
		}
	}
	return nil
}
