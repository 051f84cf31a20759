package consolidation

import (
	"context"
	"sync"
	"time"

	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/storage"
	"github.com/chris/invoice-settlement/pkg/storage/memory"
)

// recordingStore wraps the memory store, records page requests and can fail chosen writes.
type recordingStore struct {
	*memory.Store

	mu        sync.Mutex
	pages     []int
	failApply map[string]error
	settled   []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Store: memory.New(), failApply: map[string]error{}}
}

func (r *recordingStore) QueryOpenInvoices(ctx context.Context, customerID string, req storage.PageRequest) (*storage.Page, error) {
	r.mu.Lock()
	r.pages = append(r.pages, req.Page)
	r.mu.Unlock()
	return r.Store.QueryOpenInvoices(ctx, customerID, req)
}

func (r *recordingStore) SettleInvoice(ctx context.Context, cmd storage.PaymentCommand) (bool, error) {
	r.mu.Lock()
	r.settled = append(r.settled, cmd.InvoiceID)
	err := r.failApply[cmd.InvoiceID]
	r.mu.Unlock()
	if err != nil {
		return false, err
	}
	return r.Store.SettleInvoice(ctx, cmd)
}

func (r *recordingStore) requestedPages() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.pages...)
}

func (r *recordingStore) attempted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.settled...)
}

// seed creates one invoice per balance, an hour apart so the first one is the oldest.
func seed(s *memory.Store, customerID string, balances ...int64) []models.Invoice {
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	out := make([]models.Invoice, 0, len(balances))
	for i, b := range balances {
		out = append(out, s.PutInvoice(models.Invoice{
			SerialNumber: "INV-" + string(rune('A'+i)),
			CustomerId:   customerID,
			Billed:       b,
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		}))
	}
	return out
}

func invoicesWith(balances ...int64) []models.Invoice {
	out := make([]models.Invoice, len(balances))
	for i, b := range balances {
		out[i] = models.Invoice{Id: string(rune('a' + i)), Billed: b, Balance: b, Open: true, Version: 1}
	}
	return out
}
