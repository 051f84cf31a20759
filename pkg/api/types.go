package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is the API representation of an invoice. Amounts are decimal strings with two fraction digits.
type Invoice struct {
	Id           string     `json:"id"`
	SerialNumber string     `json:"serial_number"`
	CustomerId   string     `json:"customer_id"`
	Billed       string     `json:"billed"`
	Paid         string     `json:"paid"`
	Balance      string     `json:"balance"`
	Open         bool       `json:"open"`
	Version      int64      `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// InvoicePage is one page of a customer's open invoices, oldest first.
type InvoicePage struct {
	Invoices []Invoice `json:"invoices"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	HasMore  bool      `json:"has_more"`
}

// SettlementRequest is the body of a settlement call. CashAmount accepts "700.00" or 700.00.
type SettlementRequest struct {
	CashAmount decimal.Decimal `json:"cash_amount"`
	RunId      *string         `json:"run_id,omitempty"`
}

// SettlementStatus mirrors the engine's terminal statuses.
type SettlementStatus string

const (
	Completed          SettlementStatus = "Completed"
	PartiallyCompleted SettlementStatus = "PartiallyCompleted"
	NoInvoices         SettlementStatus = "NoInvoices"
	StoreUnavailable   SettlementStatus = "StoreUnavailable"
	Undecidable        SettlementStatus = "Undecidable"
	Cancelled          SettlementStatus = "Cancelled"
	AlreadySettled     SettlementStatus = "AlreadySettled"
)

// InvoiceFailure describes an invoice that could not be settled.
type InvoiceFailure struct {
	InvoiceId string `json:"invoice_id"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// SettlementOutcome is the end-of-run summary.
type SettlementOutcome struct {
	RunId              string           `json:"run_id"`
	CustomerId         string           `json:"customer_id"`
	Status             SettlementStatus `json:"status"`
	Reason             string           `json:"reason,omitempty"`
	CashAmount         string           `json:"cash_amount"`
	AppliedAmount      string           `json:"applied_amount"`
	LeftoverCash       string           `json:"leftover_cash"`
	ClosedCount        int              `json:"closed_count"`
	SelectedInvoiceIds []string         `json:"selected_invoice_ids"`
	AlreadyAppliedIds  []string         `json:"already_applied_invoice_ids,omitempty"`
	Failures           []InvoiceFailure `json:"failures"`
	PagesFetched       int              `json:"pages_fetched"`
	Error              *string          `json:"error,omitempty"`
}

// ScheduledSettlement acknowledges a settlement queued for asynchronous processing.
type ScheduledSettlement struct {
	RunId      string `json:"run_id"`
	CustomerId string `json:"customer_id"`
	CashAmount string `json:"cash_amount"`
}

// ListOpenInvoicesParams defines parameters for ListOpenInvoices.
type ListOpenInvoicesParams struct {
	Page     *int `form:"page,omitempty" json:"page,omitempty"`
	PageSize *int `form:"page_size,omitempty" json:"page_size,omitempty"`
}
