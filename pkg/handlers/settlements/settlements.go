package settlements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/chris/invoice-settlement/pkg/api"
	"github.com/chris/invoice-settlement/pkg/consolidation"
	"github.com/chris/invoice-settlement/pkg/mapping"
	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/scheduler"
	"github.com/chris/invoice-settlement/pkg/websockets"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine runs a consolidation and settlement for one request.
type Engine interface {
	ConsolidateAndSettle(ctx context.Context, req models.ConsolidationRequest, onProgress consolidation.ProgressFunc) (*consolidation.SettlementOutcome, error)
}

// SettlementsHandler holds the dependencies for settlement-related handlers.
type SettlementsHandler struct {
	Engine    Engine
	Scheduler scheduler.Scheduler
	Publisher websockets.Publisher
	Logger    *zap.Logger
}

// NewSettlementsHandler creates a new SettlementsHandler. A nil scheduler disables the schedule endpoint.
func NewSettlementsHandler(engine Engine, scheduler scheduler.Scheduler, publisher websockets.Publisher, logger *zap.Logger) *SettlementsHandler {
	if publisher == nil {
		publisher = &websockets.NoOpPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementsHandler{Engine: engine, Scheduler: scheduler, Publisher: publisher, Logger: logger}
}

// SettleCustomerInvoices runs a settlement synchronously and returns its outcome.
func (h *SettlementsHandler) SettleCustomerInvoices(w http.ResponseWriter, r *http.Request, customerId string) {
	req, ok := h.decodeRequest(w, r, customerId)
	if !ok {
		return
	}

	ctx := r.Context()
	out, err := h.Engine.ConsolidateAndSettle(ctx, req, h.progressPublisher(ctx, req))
	if out == nil {
		if errors.Is(err, consolidation.ErrInvalidRequest) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.Logger.Error("Settlement failed without an outcome", zap.String("run_id", req.RunID), zap.Error(err))
		http.Error(w, fmt.Sprintf("Failed to settle invoices: %v", err), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, consolidation.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	apiOutcome := mapping.ToApiOutcome(out)
	if err := h.Publisher.Publish(ctx, websockets.Message{
		Type:    websockets.MessageTypeSettlementCompleted,
		Payload: apiOutcome,
	}); err != nil {
		h.Logger.Error("Failed to publish settlement outcome", zap.String("run_id", req.RunID), zap.Error(err))
	}

	writeJSON(w, status, apiOutcome)
}

// ScheduleSettlement queues a settlement for the settlement worker.
func (h *SettlementsHandler) ScheduleSettlement(w http.ResponseWriter, r *http.Request, customerId string) {
	if h.Scheduler == nil {
		http.Error(w, "Scheduling is not configured", http.StatusNotImplemented)
		return
	}

	req, ok := h.decodeRequest(w, r, customerId)
	if !ok {
		return
	}

	if err := h.Scheduler.ScheduleSettlement(r.Context(), req); err != nil {
		h.Logger.Error("Failed to enqueue settlement", zap.String("run_id", req.RunID), zap.Error(err))
		http.Error(w, fmt.Sprintf("Failed to schedule settlement: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, api.ScheduledSettlement{
		RunId:      req.RunID,
		CustomerId: req.CustomerID,
		CashAmount: mapping.FormatMinorUnits(req.CashAmount),
	})
}

func (h *SettlementsHandler) decodeRequest(w http.ResponseWriter, r *http.Request, customerId string) (models.ConsolidationRequest, bool) {
	var body api.SettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return models.ConsolidationRequest{}, false
	}

	req, err := mapping.ToDomainConsolidationRequest(customerId, &body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return models.ConsolidationRequest{}, false
	}
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}
	return req, true
}

// progressPublisher forwards engine progress to websocket clients. Publish failures are
// logged and never interrupt the run.
func (h *SettlementsHandler) progressPublisher(ctx context.Context, req models.ConsolidationRequest) consolidation.ProgressFunc {
	return func(p consolidation.Progress) {
		msg := mapping.ToProgressMessage(req.RunID, req.CustomerID, p)
		if err := h.Publisher.Publish(ctx, msg); err != nil {
			h.Logger.Warn("Failed to publish settlement progress", zap.String("run_id", req.RunID), zap.Error(err))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
