package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/storage"
	"github.com/google/uuid"
)

// Store implements the invoice store using in-memory maps. It is used for local
// development and tests and enforces the same version checks as the remote stores.
type Store struct {
	mu          sync.RWMutex
	invoices    map[string]models.Invoice
	payments    []models.PaymentRecord
	connections map[string]struct{}
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		invoices:    make(map[string]models.Invoice),
		payments:    make([]models.PaymentRecord, 0),
		connections: make(map[string]struct{}),
	}
}

var (
	_ storage.Storage           = (*Store)(nil)
	_ storage.InvoiceSettler    = (*Store)(nil)
	_ storage.RunPaymentsReader = (*Store)(nil)
	_ storage.ConnectionStore   = (*Store)(nil)
)

// PutInvoice inserts or replaces an invoice. Balance and open flag are derived from billed and paid.
func (s *Store) PutInvoice(inv models.Invoice) models.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.Id == "" {
		inv.Id = uuid.New().String()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	inv.Balance = inv.OutstandingBalance()
	inv.Open = inv.Balance > 0
	if inv.Version == 0 {
		inv.Version = 1
	}
	s.invoices[inv.Id] = inv
	return inv
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[invoiceID]
	if !ok {
		return nil, fmt.Errorf("invoice with ID %s: %w", invoiceID, storage.ErrInvoiceNotFound)
	}
	return &inv, nil
}

func (s *Store) QueryOpenInvoices(ctx context.Context, customerID string, req storage.PageRequest) (*storage.Page, error) {
	if req.Size <= 0 {
		return nil, fmt.Errorf("invalid page size %d", req.Size)
	}
	if req.Page < 0 {
		return nil, fmt.Errorf("invalid page index %d", req.Page)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var open []models.Invoice
	for _, inv := range s.invoices {
		if inv.CustomerId == customerID && inv.Open {
			open = append(open, inv)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].Id < open[j].Id
		}
		if req.Ascending {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].CreatedAt.After(open[j].CreatedAt)
	})

	start := req.Page * req.Size
	if start >= len(open) {
		return &storage.Page{Invoices: []models.Invoice{}}, nil
	}
	end := start + req.Size
	if end > len(open) {
		end = len(open)
	}
	page := make([]models.Invoice, end-start)
	copy(page, open[start:end])
	return &storage.Page{Invoices: page, HasMore: end < len(open)}, nil
}

func (s *Store) ApplyPayment(ctx context.Context, cmd storage.PaymentCommand) error {
	_, err := s.applyPayment(cmd, false)
	return err
}

func (s *Store) SettleInvoice(ctx context.Context, cmd storage.PaymentCommand) (bool, error) {
	return s.applyPayment(cmd, cmd.PaysInFull())
}

func (s *Store) applyPayment(cmd storage.PaymentCommand, closeInvoice bool) (bool, error) {
	if cmd.Amount <= 0 {
		return false, storage.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entryID := models.PaymentEntryID(cmd.RunID, cmd.InvoiceID)
	for _, p := range s.payments {
		if p.EntryID == entryID {
			return false, fmt.Errorf("invoice %s in run %s: %w", cmd.InvoiceID, cmd.RunID, storage.ErrAlreadyApplied)
		}
	}

	inv, ok := s.invoices[cmd.InvoiceID]
	if !ok {
		return false, fmt.Errorf("invoice with ID %s: %w", cmd.InvoiceID, storage.ErrInvoiceNotFound)
	}
	if !inv.Open {
		return false, fmt.Errorf("invoice with ID %s: %w", cmd.InvoiceID, storage.ErrInvoiceClosed)
	}
	if inv.Version != cmd.ExpectedVersion || inv.Balance != cmd.ExpectedBalance || inv.Balance < cmd.Amount {
		return false, fmt.Errorf("payment to invoice %s rejected: %w", cmd.InvoiceID, storage.ErrInvoiceChanged)
	}

	now := time.Now().UTC()
	inv.Paid += cmd.Amount
	inv.Balance -= cmd.Amount
	inv.Version++
	inv.UpdatedAt = now
	if closeInvoice && inv.Balance == 0 {
		inv.Open = false
		inv.ClosedAt = &now
	}
	s.invoices[inv.Id] = inv

	s.payments = append(s.payments, models.PaymentRecord{
		EntryID:    entryID,
		RunID:      cmd.RunID,
		InvoiceID:  cmd.InvoiceID,
		CustomerID: cmd.CustomerID,
		Amount:     cmd.Amount,
		Closed:     !inv.Open,
		Timestamp:  now,
	})

	return !inv.Open, nil
}

func (s *Store) MarkClosedIfFullyPaid(ctx context.Context, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[invoiceID]
	if !ok || !inv.Open || inv.Balance != 0 {
		return nil
	}
	now := time.Now().UTC()
	inv.Open = false
	inv.ClosedAt = &now
	inv.UpdatedAt = now
	inv.Version++
	s.invoices[invoiceID] = inv
	return nil
}

func (s *Store) ListPaidOpenInvoices(ctx context.Context, limit int32) ([]models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.Invoice
	for _, inv := range s.invoices {
		if inv.Open && inv.Balance == 0 {
			result = append(result, inv)
			if limit > 0 && int32(len(result)) >= limit {
				break
			}
		}
	}
	return result, nil
}

// ListRunPayments returns the payments written by a run, in write order.
func (s *Store) ListRunPayments(ctx context.Context, runID string) ([]models.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PaymentRecord
	for _, p := range s.payments {
		if p.RunID == runID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Payments returns a copy of the payment records written so far.
func (s *Store) Payments() []models.PaymentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PaymentRecord, len(s.payments))
	copy(out, s.payments)
	return out
}

func (s *Store) AddConnection(ctx context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[connectionID] = struct{}{}
	return nil
}

func (s *Store) RemoveConnection(ctx context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, connectionID)
	return nil
}

func (s *Store) GetAllConnections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.connections))
	for id := range s.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
