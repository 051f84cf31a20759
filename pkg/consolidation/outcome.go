package consolidation

import (
	"errors"

	"github.com/chris/invoice-settlement/pkg/models"
)

// Status is the terminal state of a settlement run.
type Status string

const (
	StatusCompleted          Status = "Completed"
	StatusPartiallyCompleted Status = "PartiallyCompleted"
	StatusNoInvoices         Status = "NoInvoices"
	StatusStoreUnavailable   Status = "StoreUnavailable"
	StatusUndecidable        Status = "Undecidable"
	StatusCancelled          Status = "Cancelled"
	// StatusAlreadySettled means the run id has written payments before; nothing is written again.
	StatusAlreadySettled Status = "AlreadySettled"
)

var (
	// ErrStoreUnavailable wraps any failure to fetch a page of open invoices.
	ErrStoreUnavailable = errors.New("invoice store unavailable")
	// ErrInvariantViolation is returned when a closeable selection costs more than the cash amount.
	ErrInvariantViolation = errors.New("selection total exceeds cash amount")
	// ErrUndecidable is returned when the page or invoice cap is reached before a selection is found.
	ErrUndecidable = errors.New("selection undecidable within search limits")
	// ErrInvalidRequest is returned, without an outcome, for a missing customer or a non-positive cash amount.
	ErrInvalidRequest = errors.New("invalid consolidation request")
)

// Reason records which termination rule produced a selection.
type Reason string

const (
	ReasonStoreExhausted Reason = "store_exhausted"
	ReasonTrivialSet     Reason = "trivial_set"
	ReasonSingleInvoice  Reason = "single_invoice"
	ReasonExactMatch     Reason = "exact_match"
)

// Selection is the ordered list of invoices chosen for one run.
type Selection struct {
	Invoices     []models.Invoice
	TotalBalance int64
	// CanClose is true when the selection fits within the cash amount.
	CanClose bool
	Reason   Reason
}

func newSelection(invoices []models.Invoice, cash int64, reason Reason) *Selection {
	sel := &Selection{Invoices: invoices, Reason: reason}
	for _, inv := range invoices {
		sel.TotalBalance += inv.Balance
	}
	sel.CanClose = sel.TotalBalance <= cash
	return sel
}

// Stage is the write command an invoice failure happened in.
type Stage string

const (
	StageApply Stage = "apply"
	StageClose Stage = "close"
)

// InvoiceFailure is a per-invoice payment error. It never aborts the run.
type InvoiceFailure struct {
	InvoiceID string
	Stage     Stage
	Err       error
}

func (f InvoiceFailure) Error() string {
	return string(f.Stage) + " " + f.InvoiceID + ": " + f.Err.Error()
}

func (f InvoiceFailure) Unwrap() error { return f.Err }

// Progress is emitted after every invoice that was settled successfully.
type Progress struct {
	AppliedSoFar int64
	ClosedCount  int
	Processed    int
	Total        int
}

// Fraction returns closed invoices over selection size.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.ClosedCount) / float64(p.Total)
}

// ProgressFunc receives progress synchronously from the settlement loop.
type ProgressFunc func(Progress)

// SettlementOutcome is the end-of-run report.
type SettlementOutcome struct {
	RunID              string
	CustomerID         string
	Status             Status
	Reason             Reason
	CashAmount         int64
	AppliedAmount      int64
	ClosedCount        int
	LeftoverCash       int64
	Failures           []InvoiceFailure
	SelectedInvoiceIDs []string
	// AlreadyAppliedIDs are invoices this run id had paid before, e.g. by a duplicate delivery.
	AlreadyAppliedIDs []string
	PagesFetched      int
	// Err is the cause for StoreUnavailable, Cancelled and invariant violations.
	Err error
}

// FailedInvoiceIDs lists the invoices that could not be settled.
func (o *SettlementOutcome) FailedInvoiceIDs() []string {
	ids := make([]string, len(o.Failures))
	for i, f := range o.Failures {
		ids[i] = f.InvoiceID
	}
	return ids
}
