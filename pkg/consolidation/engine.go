package consolidation

import (
	"context"
	"errors"
	"fmt"

	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config bounds a run.
type Config struct {
	PageSize       int
	MaxPages       int
	MaxInvoices    int
	MaxSearchUnits int
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		PageSize:       5,
		MaxPages:       40,
		MaxInvoices:    200,
		MaxSearchUnits: DefaultMaxSearchUnits,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.MaxInvoices <= 0 {
		c.MaxInvoices = d.MaxInvoices
	}
	if c.MaxSearchUnits <= 0 {
		c.MaxSearchUnits = d.MaxSearchUnits
	}
	return c
}

// Engine consolidates a customer's open invoices against a cash payment and settles them.
type Engine struct {
	store      storage.InvoiceStore
	controller *controller
	executor   *executor
	logger     *zap.Logger
}

// NewEngine creates an Engine. A nil logger disables logging.
func NewEngine(store storage.InvoiceStore, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Engine{
		store:      store,
		controller: &controller{store: store, cfg: cfg, logger: logger},
		executor:   &executor{store: store, logger: logger},
		logger:     logger,
	}
}

// ConsolidateAndSettle selects open invoices matching req.CashAmount and applies the cash to them.
//
// For a valid request the outcome is always non-nil. The error is non-nil when the store
// could not be read (ErrStoreUnavailable), the context was cancelled, or the selection broke
// the affordability invariant (ErrInvariantViolation). Per-invoice failures are reported in
// the outcome only.
//
// When the store can list a run's payments, a run id that already wrote payments is not
// run again: the outcome has StatusAlreadySettled and reports the earlier payments.
func (e *Engine) ConsolidateAndSettle(ctx context.Context, req models.ConsolidationRequest, onProgress ProgressFunc) (*SettlementOutcome, error) {
	if req.CustomerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrInvalidRequest)
	}
	if req.CashAmount <= 0 {
		return nil, fmt.Errorf("%w: cash amount must be positive, got %d", ErrInvalidRequest, req.CashAmount)
	}
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}

	log := e.logger.With(
		zap.String("run_id", req.RunID),
		zap.String("customer_id", req.CustomerID),
		zap.Int64("cash_amount", req.CashAmount))
	log.Info("Starting consolidation run")

	base := &SettlementOutcome{
		RunID:      req.RunID,
		CustomerID: req.CustomerID,
		CashAmount: req.CashAmount,
	}

	if done, err := e.priorPayments(ctx, base); done || err != nil {
		if err != nil {
			log.Warn("Could not check the run for earlier payments", zap.Error(err))
			return base, err
		}
		log.Info("Run already settled, nothing written",
			zap.Int64("applied", base.AppliedAmount),
			zap.Int("invoices", len(base.AlreadyAppliedIDs)))
		return base, nil
	}

	sel, pages, err := e.controller.selectInvoices(ctx, req.CustomerID, req.CashAmount)
	base.PagesFetched = pages
	if err != nil {
		base.Err = err
		switch {
		case errors.Is(err, ErrUndecidable):
			base.Status = StatusUndecidable
			log.Warn("Consolidation undecidable", zap.Error(err))
			return base, nil
		case errors.Is(err, ErrStoreUnavailable):
			base.Status = StatusStoreUnavailable
			log.Error("Failed to fetch open invoices", zap.Error(err))
			return base, err
		default:
			base.Status = StatusCancelled
			log.Warn("Consolidation cancelled before settlement", zap.Error(err))
			return base, err
		}
	}

	if len(sel.Invoices) == 0 {
		base.Status = StatusNoInvoices
		base.Reason = sel.Reason
		log.Info("No open invoices to settle")
		return base, nil
	}

	log.Info("Selection made",
		zap.String("reason", string(sel.Reason)),
		zap.Int("invoices", len(sel.Invoices)),
		zap.Int64("total_balance", sel.TotalBalance),
		zap.Bool("can_close", sel.CanClose))

	out, err := e.executor.settle(ctx, req.RunID, req.CustomerID, sel, req.CashAmount, onProgress)
	out.PagesFetched = pages
	if err != nil {
		out.Err = err
		if errors.Is(err, ErrInvariantViolation) {
			out.Status = StatusPartiallyCompleted
			log.Error("Selection violates affordability, settlement aborted", zap.Error(err))
			return out, err
		}
		out.Status = StatusCancelled
		log.Warn("Settlement cancelled", zap.Int64("applied", out.AppliedAmount), zap.Error(err))
		return out, err
	}

	out.Status = StatusCompleted
	if len(out.Failures) > 0 {
		out.Status = StatusPartiallyCompleted
	}
	log.Info("Consolidation run finished",
		zap.String("status", string(out.Status)),
		zap.Int64("applied", out.AppliedAmount),
		zap.Int("closed", out.ClosedCount),
		zap.Int64("leftover", out.LeftoverCash),
		zap.Int("failures", len(out.Failures)))
	return out, nil
}

// priorPayments fills base from the payments the run already wrote. It reports whether any exist.
func (e *Engine) priorPayments(ctx context.Context, base *SettlementOutcome) (bool, error) {
	reader, ok := e.store.(storage.RunPaymentsReader)
	if !ok {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		base.Status = StatusCancelled
		base.Err = err
		return false, err
	}

	payments, err := reader.ListRunPayments(ctx, base.RunID)
	if err != nil {
		base.Status = StatusStoreUnavailable
		base.Err = fmt.Errorf("%w: failed to read run payments: %w", ErrStoreUnavailable, err)
		return false, base.Err
	}
	if len(payments) == 0 {
		return false, nil
	}

	base.Status = StatusAlreadySettled
	for _, p := range payments {
		base.AppliedAmount += p.Amount
		if p.Closed {
			base.ClosedCount++
		}
		base.AlreadyAppliedIDs = append(base.AlreadyAppliedIDs, p.InvoiceID)
	}
	return true, nil
}
