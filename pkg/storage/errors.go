package storage

import "errors"

// ErrInvoiceNotFound is returned when an invoice does not exist.
var ErrInvoiceNotFound = errors.New("invoice not found")

// ErrInvoiceChanged is returned when an invoice was modified after it was read, e.g. by a concurrent settlement run.
var ErrInvoiceChanged = errors.New("invoice changed since it was read")

// ErrInvoiceClosed is returned when a payment targets an invoice that is no longer open.
var ErrInvoiceClosed = errors.New("invoice is closed")

// ErrInvalidAmount is returned when a payment amount is not positive.
var ErrInvalidAmount = errors.New("payment amount must be positive")

// ErrAlreadyApplied is returned when the run has already written a payment for the invoice.
var ErrAlreadyApplied = errors.New("payment already applied by this run")
