package storage

import (
	"context"

	"github.com/chris/invoice-settlement/pkg/models"
)

// PageRequest selects one page of a customer's open invoices.
// Page is zero-based; invoices are ordered by creation time.
type PageRequest struct {
	Page      int
	Size      int
	Ascending bool
}

// Page is one page of open invoices.
type Page struct {
	Invoices []models.Invoice
	HasMore  bool
}

// PaymentCommand applies an amount to a single invoice.
// ExpectedVersion and ExpectedBalance are what the caller read; the store rejects the
// write with ErrInvoiceChanged if the invoice has been modified since.
type PaymentCommand struct {
	RunID           string
	InvoiceID       string
	CustomerID      string
	Amount          int64
	ExpectedVersion int64
	ExpectedBalance int64
}

// PaysInFull reports whether applying the command leaves the invoice with a zero balance.
func (c PaymentCommand) PaysInFull() bool {
	return c.Amount >= c.ExpectedBalance
}

// InvoiceReader defines the interface for reading invoice data.
type InvoiceReader interface {
	// GetInvoice retrieves an invoice by its ID.
	GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error)

	// QueryOpenInvoices returns one page of a customer's open invoices sorted by creation time.
	QueryOpenInvoices(ctx context.Context, customerID string, req PageRequest) (*Page, error)
}

// PaymentWriter defines the per-invoice write commands used during settlement.
type PaymentWriter interface {
	// ApplyPayment records a payment against an invoice and reduces its balance.
	ApplyPayment(ctx context.Context, cmd PaymentCommand) error

	// MarkClosedIfFullyPaid closes the invoice when its balance is zero.
	// It is idempotent: closing an already closed or still unpaid invoice is not an error.
	MarkClosedIfFullyPaid(ctx context.Context, invoiceID string) error
}

// InvoiceSettler is implemented by stores that can apply a payment and close the
// invoice in a single conditional write. It returns whether the invoice was closed.
type InvoiceSettler interface {
	SettleInvoice(ctx context.Context, cmd PaymentCommand) (bool, error)
}

// RunPaymentsReader is implemented by stores that can list the payments a run has written.
// The engine uses it to refuse replaying a run whose request was delivered twice.
type RunPaymentsReader interface {
	ListRunPayments(ctx context.Context, runID string) ([]models.PaymentRecord, error)
}

// InvoiceStore combines the reader and writer interfaces.
type InvoiceStore interface {
	InvoiceReader
	PaymentWriter
}

// ReconciliationStore finds invoices left open after their balance reached zero,
// e.g. because the close command failed after the payment was applied.
type ReconciliationStore interface {
	ListPaidOpenInvoices(ctx context.Context, limit int32) ([]models.Invoice, error)
	MarkClosedIfFullyPaid(ctx context.Context, invoiceID string) error
}
