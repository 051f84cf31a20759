package consolidation

import (
	"context"
	"errors"
	"fmt"

	"github.com/chris/invoice-settlement/pkg/storage"
	"go.uber.org/zap"
)

// executor settles a selection one invoice at a time. Each invoice is its own unit of
// work: a failure is recorded and the loop moves on, nothing is rolled back.
type executor struct {
	store  storage.InvoiceStore
	logger *zap.Logger
}

// settle applies cash across the selection. The returned outcome is filled in even when an
// error is returned, so a cancelled run still reports what it wrote.
func (e *executor) settle(ctx context.Context, runID, customerID string, sel *Selection, cash int64, onProgress ProgressFunc) (*SettlementOutcome, error) {
	out := &SettlementOutcome{
		RunID:      runID,
		CustomerID: customerID,
		CashAmount: cash,
		Reason:     sel.Reason,
	}
	for _, inv := range sel.Invoices {
		out.SelectedInvoiceIDs = append(out.SelectedInvoiceIDs, inv.Id)
	}

	if sel.CanClose && sel.TotalBalance > cash {
		return out, fmt.Errorf("%w: total %d, cash %d", ErrInvariantViolation, sel.TotalBalance, cash)
	}

	settler, combined := e.store.(storage.InvoiceSettler)
	remaining := cash
	processed := 0

	for _, inv := range sel.Invoices {
		amount := inv.Balance
		if !sel.CanClose && amount > remaining {
			amount = remaining
		}
		if inv.Balance > 0 && amount <= 0 {
			// Cash is used up; the rest of an overrunning selection stays untouched.
			break
		}

		if err := ctx.Err(); err != nil {
			return out, err
		}

		cmd := storage.PaymentCommand{
			RunID:           runID,
			InvoiceID:       inv.Id,
			CustomerID:      customerID,
			Amount:          amount,
			ExpectedVersion: inv.Version,
			ExpectedBalance: inv.Balance,
		}

		closed := false
		switch {
		case amount == 0:
			// Already paid but still open.
			if err := e.store.MarkClosedIfFullyPaid(ctx, inv.Id); err != nil {
				e.fail(out, inv.Id, StageClose, err)
				continue
			}
			closed = true

		case combined:
			var err error
			closed, err = settler.SettleInvoice(ctx, cmd)
			if err != nil {
				if e.alreadyApplied(out, inv.Id, err) {
					remaining -= amount
				} else {
					e.fail(out, inv.Id, StageApply, err)
				}
				continue
			}
			out.AppliedAmount += amount
			remaining -= amount

		default:
			if err := e.store.ApplyPayment(ctx, cmd); err != nil {
				if e.alreadyApplied(out, inv.Id, err) {
					remaining -= amount
				} else {
					e.fail(out, inv.Id, StageApply, err)
				}
				continue
			}
			out.AppliedAmount += amount
			remaining -= amount

			if err := ctx.Err(); err != nil {
				return out, err
			}
			if err := e.store.MarkClosedIfFullyPaid(ctx, inv.Id); err != nil {
				e.fail(out, inv.Id, StageClose, err)
				continue
			}
			closed = cmd.PaysInFull()
		}

		if closed {
			out.ClosedCount++
		}
		processed++
		if onProgress != nil {
			onProgress(Progress{
				AppliedSoFar: out.AppliedAmount,
				ClosedCount:  out.ClosedCount,
				Processed:    processed,
				Total:        len(sel.Invoices),
			})
		}
	}

	if sel.CanClose {
		out.LeftoverCash = cash - sel.TotalBalance
	}
	return out, nil
}

func (e *executor) fail(out *SettlementOutcome, invoiceID string, stage Stage, err error) {
	e.logger.Warn("Failed to settle invoice, continuing with the rest of the selection",
		zap.String("run_id", out.RunID),
		zap.String("invoice_id", invoiceID),
		zap.String("stage", string(stage)),
		zap.Error(err))
	out.Failures = append(out.Failures, InvoiceFailure{InvoiceID: invoiceID, Stage: stage, Err: err})
}

// alreadyApplied records an invoice this run id paid in an earlier delivery. It is not a failure.
func (e *executor) alreadyApplied(out *SettlementOutcome, invoiceID string, err error) bool {
	if !errors.Is(err, storage.ErrAlreadyApplied) {
		return false
	}
	e.logger.Info("Invoice already settled by this run, skipping",
		zap.String("run_id", out.RunID),
		zap.String("invoice_id", invoiceID))
	out.AlreadyAppliedIDs = append(out.AlreadyAppliedIDs, invoiceID)
	return true
}
