package handlers

import (
	"github.com/chris/invoice-settlement/pkg/api"
	"github.com/chris/invoice-settlement/pkg/handlers/invoices"
	"github.com/chris/invoice-settlement/pkg/handlers/settlements"
	"github.com/chris/invoice-settlement/pkg/scheduler"
	"github.com/chris/invoice-settlement/pkg/storage"
	"github.com/chris/invoice-settlement/pkg/websockets"
	"go.uber.org/zap"
)

// ApiHandler implements the generated server interface.
// It composes the per-resource handlers.
type ApiHandler struct {
	*settlements.SettlementsHandler
	*invoices.InvoicesHandler
}

// NewApiHandler creates a new ApiHandler.
func NewApiHandler(store storage.InvoiceReader, engine settlements.Engine, sched scheduler.Scheduler, publisher websockets.Publisher, logger *zap.Logger) *ApiHandler {
	return &ApiHandler{
		SettlementsHandler: settlements.NewSettlementsHandler(engine, sched, publisher, logger),
		InvoicesHandler:    invoices.NewInvoicesHandler(store),
	}
}

// Make sure we conform to the interface
var _ api.ServerInterface = (*ApiHandler)(nil)
