package models

import (
	"time"
)

// Invoice represents the internal domain model for a customer invoice.
// Amounts are minor currency units (cents). It includes tags for DynamoDB and MongoDB marshalling.
type Invoice struct {
	Id           string     `dynamodbav:"id" bson:"_id"`
	SerialNumber string     `dynamodbav:"serial_number" bson:"serial_number"`
	CustomerId   string     `dynamodbav:"customer_id" bson:"customer_id"`
	Billed       int64      `dynamodbav:"billed" bson:"billed"`
	Paid         int64      `dynamodbav:"paid" bson:"paid"`
	Balance      int64      `dynamodbav:"balance" bson:"balance"`
	Open         bool       `dynamodbav:"open" bson:"open"`
	Version      int64      `dynamodbav:"version" bson:"version"`
	CreatedAt    time.Time  `dynamodbav:"created_at" bson:"created_at"`
	UpdatedAt    time.Time  `dynamodbav:"updated_at" bson:"updated_at"`
	ClosedAt     *time.Time `dynamodbav:"closed_at,omitempty" bson:"closed_at,omitempty"`

	// CustomerOpen is the partition key of the open-invoice index ("<customer>#OPEN").
	// It is removed when the invoice closes so closed invoices drop out of the index.
	CustomerOpen string `dynamodbav:"customer_open,omitempty" bson:"-"`
}

// OutstandingBalance returns billed minus paid, never below zero.
func (i *Invoice) OutstandingBalance() int64 {
	if b := i.Billed - i.Paid; b > 0 {
		return b
	}
	return 0
}

// IsFullyPaid reports whether nothing remains to be paid on the invoice.
func (i *Invoice) IsFullyPaid() bool {
	return i.OutstandingBalance() == 0
}

// CustomerOpenKey builds the open-invoice index partition key for a customer.
func CustomerOpenKey(customerID string) string {
	return customerID + "#OPEN"
}

// PaymentEntryID is the payment record key for an invoice paid by a run. A run pays an
// invoice at most once, so a second write with the same key is a replay.
func PaymentEntryID(runID, invoiceID string) string {
	return runID + "#" + invoiceID
}

// PaymentRecord is a single payment applied to an invoice during a settlement run.
type PaymentRecord struct {
	EntryID    string    `dynamodbav:"entry_id" bson:"_id"`
	RunID      string    `dynamodbav:"run_id" bson:"run_id"`
	InvoiceID  string    `dynamodbav:"invoice_id" bson:"invoice_id"`
	CustomerID string    `dynamodbav:"customer_id" bson:"customer_id"`
	Amount     int64     `dynamodbav:"amount" bson:"amount"`
	Closed     bool      `dynamodbav:"closed" bson:"closed"`
	Timestamp  time.Time `dynamodbav:"timestamp" bson:"timestamp"`
}

// ConsolidationRequest asks for a cash amount to be settled against a customer's open invoices.
// It is also the SQS message body for scheduled settlements.
type ConsolidationRequest struct {
	RunID      string `json:"run_id"`
	CustomerID string `json:"customer_id"`
	CashAmount int64  `json:"cash_amount"`
}
