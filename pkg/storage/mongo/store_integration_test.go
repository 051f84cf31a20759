//go:build integration

package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// newIntegrationStore connects to SETTLE_TEST_MONGO_URI and returns a store on a fresh
// database that is dropped when the test ends. Transactions need a replica set, e.g.
// mongodb://localhost:27017/?replicaSet=rs0.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("SETTLE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("set SETTLE_TEST_MONGO_URI (a replica set) to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	dbName := fmt.Sprintf("settlement_it_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Database(dbName).Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	store := New(client, dbName)
	require.NoError(t, store.EnsureIndexes(ctx))
	return store
}

func insertInvoices(t *testing.T, s *Store, customerID string, balances ...int64) []models.Invoice {
	t.Helper()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := make([]models.Invoice, 0, len(balances))
	for i, b := range balances {
		inv := models.Invoice{
			Id:           fmt.Sprintf("%s-inv-%d", customerID, i),
			SerialNumber: fmt.Sprintf("INV-%03d", i),
			CustomerId:   customerID,
			Billed:       b,
			Balance:      b,
			Open:         true,
			Version:      1,
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
			UpdatedAt:    base.Add(time.Duration(i) * time.Hour),
		}
		_, err := s.invoices.InsertOne(context.Background(), inv)
		require.NoError(t, err)
		out = append(out, inv)
	}
	return out
}

func paymentFor(runID string, inv models.Invoice, amount int64) storage.PaymentCommand {
	return storage.PaymentCommand{
		RunID:           runID,
		InvoiceID:       inv.Id,
		CustomerID:      inv.CustomerId,
		Amount:          amount,
		ExpectedVersion: inv.Version,
		ExpectedBalance: inv.Balance,
	}
}

func TestStoreIntegration(t *testing.T) {
	ctx := context.Background()

	t.Run("Paging Reports More Pages", func(t *testing.T) {
		s := newIntegrationStore(t)
		invoices := insertInvoices(t, s, "cust-page", 100, 200, 300)
		insertInvoices(t, s, "cust-other", 50)

		first, err := s.QueryOpenInvoices(ctx, "cust-page", storage.PageRequest{Page: 0, Size: 2, Ascending: true})
		require.NoError(t, err)
		assert.True(t, first.HasMore)
		require.Len(t, first.Invoices, 2)
		assert.Equal(t, invoices[0].Id, first.Invoices[0].Id)
		assert.Equal(t, invoices[1].Id, first.Invoices[1].Id)

		last, err := s.QueryOpenInvoices(ctx, "cust-page", storage.PageRequest{Page: 1, Size: 2, Ascending: true})
		require.NoError(t, err)
		assert.False(t, last.HasMore)
		require.Len(t, last.Invoices, 1)
		assert.Equal(t, invoices[2].Id, last.Invoices[0].Id)

		newest, err := s.QueryOpenInvoices(ctx, "cust-page", storage.PageRequest{Page: 0, Size: 3})
		require.NoError(t, err)
		assert.False(t, newest.HasMore)
		assert.Equal(t, invoices[2].Id, newest.Invoices[0].Id)
	})

	t.Run("Settle Pays And Closes", func(t *testing.T) {
		s := newIntegrationStore(t)
		inv := insertInvoices(t, s, "cust-settle", 500)[0]

		closed, err := s.SettleInvoice(ctx, paymentFor("run-1", inv, 500))
		require.NoError(t, err)
		assert.True(t, closed)

		got, err := s.GetInvoice(ctx, inv.Id)
		require.NoError(t, err)
		assert.False(t, got.Open)
		assert.Equal(t, int64(0), got.Balance)
		assert.Equal(t, int64(500), got.Paid)
		assert.Equal(t, int64(2), got.Version)
		assert.NotNil(t, got.ClosedAt)

		payments, err := s.ListRunPayments(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, models.PaymentEntryID("run-1", inv.Id), payments[0].EntryID)
		assert.Equal(t, int64(500), payments[0].Amount)
		assert.True(t, payments[0].Closed)
	})

	t.Run("Stale Version Is Rejected", func(t *testing.T) {
		s := newIntegrationStore(t)
		inv := insertInvoices(t, s, "cust-stale", 500)[0]
		stale := paymentFor("run-1", inv, 100)
		stale.ExpectedVersion = 9

		_, err := s.SettleInvoice(ctx, stale)
		assert.ErrorIs(t, err, storage.ErrInvoiceChanged)

		got, err := s.GetInvoice(ctx, inv.Id)
		require.NoError(t, err)
		assert.Equal(t, int64(500), got.Balance)
		assert.Equal(t, int64(1), got.Version)

		// The aborted transaction must not leave a payment record behind.
		payments, err := s.ListRunPayments(ctx, "run-1")
		require.NoError(t, err)
		assert.Empty(t, payments)
	})

	t.Run("Replayed Run Is Rejected", func(t *testing.T) {
		s := newIntegrationStore(t)
		inv := insertInvoices(t, s, "cust-replay", 900)[0]
		require.NoError(t, s.ApplyPayment(ctx, paymentFor("run-1", inv, 100)))

		refreshed, err := s.GetInvoice(ctx, inv.Id)
		require.NoError(t, err)
		err = s.ApplyPayment(ctx, paymentFor("run-1", *refreshed, 100))
		assert.ErrorIs(t, err, storage.ErrAlreadyApplied)

		got, err := s.GetInvoice(ctx, inv.Id)
		require.NoError(t, err)
		assert.Equal(t, int64(800), got.Balance)

		require.NoError(t, s.ApplyPayment(ctx, paymentFor("run-2", *refreshed, 100)))
		payments, err := s.ListRunPayments(ctx, "run-1")
		require.NoError(t, err)
		assert.Len(t, payments, 1)
	})

	t.Run("Mark Closed Only When Fully Paid", func(t *testing.T) {
		s := newIntegrationStore(t)
		invoices := insertInvoices(t, s, "cust-close", 300, 400)
		require.NoError(t, s.ApplyPayment(ctx, paymentFor("run-1", invoices[0], 300)))
		require.NoError(t, s.ApplyPayment(ctx, paymentFor("run-1", invoices[1], 100)))

		paidOpen, err := s.ListPaidOpenInvoices(ctx, 10)
		require.NoError(t, err)
		require.Len(t, paidOpen, 1)
		assert.Equal(t, invoices[0].Id, paidOpen[0].Id)

		require.NoError(t, s.MarkClosedIfFullyPaid(ctx, invoices[0].Id))
		require.NoError(t, s.MarkClosedIfFullyPaid(ctx, invoices[1].Id))

		paid, err := s.GetInvoice(ctx, invoices[0].Id)
		require.NoError(t, err)
		assert.False(t, paid.Open)
		partial, err := s.GetInvoice(ctx, invoices[1].Id)
		require.NoError(t, err)
		assert.True(t, partial.Open)
		assert.Equal(t, int64(300), partial.Balance)

		// Closing twice is a no-op.
		require.NoError(t, s.MarkClosedIfFullyPaid(ctx, invoices[0].Id))
		again, err := s.GetInvoice(ctx, invoices[0].Id)
		require.NoError(t, err)
		assert.Equal(t, paid.Version, again.Version)
	})
}
