package websockets

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/chris/invoice-settlement/pkg/websockets"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler handles WebSocket connections of clients following settlement progress.
type Handler struct {
	connManager websockets.ConnectionManager
	hub         *websockets.Hub
	logger      *zap.Logger
}

// NewHandler creates a new Handler. The hub is optional; when set, local connections
// are registered with it so that settlement progress is pushed to them directly.
func NewHandler(connManager websockets.ConnectionManager, hub *websockets.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		connManager: connManager,
		hub:         hub,
		logger:      logger,
	}
}

// HandleRequest routes an API Gateway websocket event by its route key.
func (h *Handler) HandleRequest(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch request.RequestContext.RouteKey {
	case "$connect":
		return h.HandleConnect(ctx, request)
	case "$disconnect":
		return h.HandleDisconnect(ctx, request)
	default:
		return h.HandleDefault(ctx, request)
	}
}

// HandleConnect handles new client connections.
func (h *Handler) HandleConnect(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := request.RequestContext.ConnectionID
	h.logger.Info("Client connected", zap.String("connection_id", connectionID))

	if err := h.connManager.AddConnection(ctx, connectionID); err != nil {
		h.logger.Error("Failed to save connection ID", zap.String("connection_id", connectionID), zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: 500}, err
	}

	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

// HandleDisconnect handles client disconnections.
func (h *Handler) HandleDisconnect(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := request.RequestContext.ConnectionID
	h.logger.Info("Client disconnected", zap.String("connection_id", connectionID))

	if err := h.connManager.RemoveConnection(ctx, connectionID); err != nil {
		h.logger.Error("Failed to delete connection ID", zap.String("connection_id", connectionID), zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: 500}, err
	}

	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

// HandleDefault handles messages sent from a client. Clients are not expected to send any.
func (h *Handler) HandleDefault(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	h.logger.Debug("Received message",
		zap.String("connection_id", request.RequestContext.ConnectionID),
		zap.String("body", request.Body),
	)
	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all connections for local development.
		return true
	},
}

// ServeHTTP handles WebSocket requests for the local development server.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	connectionID := uuid.New().String()
	h.logger.Info("Client connected locally", zap.String("connection_id", connectionID))

	// The request context is cancelled once the handler returns, so cleanup uses a fresh one.
	ctx := context.WithoutCancel(r.Context())
	if err := h.connManager.AddConnection(ctx, connectionID); err != nil {
		h.logger.Error("Failed to save local connection ID", zap.Error(err))
		return
	}
	if h.hub != nil {
		h.hub.Register(connectionID, conn)
	}

	defer func() {
		h.logger.Info("Client disconnected locally", zap.String("connection_id", connectionID))
		if h.hub != nil {
			h.hub.Unregister(connectionID)
		}
		if err := h.connManager.RemoveConnection(ctx, connectionID); err != nil {
			h.logger.Error("Failed to delete local connection ID", zap.Error(err))
		}
	}()

	// Reading is the only way to notice the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Unexpected close error", zap.Error(err))
			}
			break
		}
	}
}
