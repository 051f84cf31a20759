package consolidation

import (
	"context"
	"errors"
	"testing"

	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/storage"
	"github.com/chris/invoice-settlement/pkg/storage/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const customer = "cust-42"

func request(cash int64) models.ConsolidationRequest {
	return models.ConsolidationRequest{RunID: "run-1", CustomerID: customer, CashAmount: cash}
}

func invoiceAfter(t *testing.T, store *recordingStore, id string) *models.Invoice {
	t.Helper()
	inv, err := store.GetInvoice(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func TestConsolidateAndSettle_Scenarios(t *testing.T) {
	t.Run("One Invoice Below Cash Is Paid And Closed", func(t *testing.T) {
		store := newRecordingStore()
		invoices := seed(store.Store, customer, 500)
		engine := NewEngine(store, DefaultConfig(), zap.NewNop())

		out, err := engine.ConsolidateAndSettle(context.Background(), request(700), nil)

		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, out.Status)
		assert.Equal(t, ReasonTrivialSet, out.Reason)
		assert.Equal(t, int64(500), out.AppliedAmount)
		assert.Equal(t, int64(200), out.LeftoverCash)
		assert.Equal(t, 1, out.ClosedCount)
		assert.Equal(t, out.CashAmount, out.AppliedAmount+out.LeftoverCash)
		assert.False(t, invoiceAfter(t, store, invoices[0].Id).Open)
	})

	t.Run("Exact Match Leaves Third Invoice Untouched", func(t *testing.T) {
		store := newRecordingStore()
		invoices := seed(store.Store, customer, 300, 300, 300)
		engine := NewEngine(store, DefaultConfig(), zap.NewNop())

		out, err := engine.ConsolidateAndSettle(context.Background(), request(600), nil)

		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, out.Status)
		assert.Equal(t, ReasonExactMatch, out.Reason)
		assert.Equal(t, []string{invoices[0].Id, invoices[1].Id}, out.SelectedInvoiceIDs)
		assert.Equal(t, int64(600), out.AppliedAmount)
		assert.Equal(t, int64(0), out.LeftoverCash)
		assert.Equal(t, 2, out.ClosedCount)

		third := invoiceAfter(t, store, invoices[2].Id)
		assert.True(t, third.Open)
		assert.Equal(t, int64(300), third.Balance)
	})

	t.Run("Unaffordable Single Invoice Is Partially Paid", func(t *testing.T) {
		store := newRecordingStore()
		invoices := seed(store.Store, customer, 1000)
		engine := NewEngine(store, DefaultConfig(), zap.NewNop())

		out, err := engine.ConsolidateAndSettle(context.Background(), request(200), nil)

		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, out.Status)
		assert.Equal(t, int64(200), out.AppliedAmount)
		assert.Equal(t, int64(0), out.LeftoverCash)
		assert.Equal(t, 0, out.ClosedCount)

		inv := invoiceAfter(t, store, invoices[0].Id)
		assert.True(t, inv.Open)
		assert.Equal(t, int64(800), inv.Balance)
	})

	t.Run("Exhausted Store Picks First Affordable Invoice", func(t *testing.T) {
		store := &mocks.InvoiceStore{}
		first := models.Invoice{Id: "inv-1", Balance: 400, Open: true, Version: 3}
		second := models.Invoice{Id: "inv-2", Balance: 400, Open: true, Version: 1}

		store.On("QueryOpenInvoices", mock.Anything, customer, storage.PageRequest{Page: 0, Size: 5, Ascending: true}).
			Return(&storage.Page{Invoices: []models.Invoice{first, second}, HasMore: true}, nil).Once()
		store.On("QueryOpenInvoices", mock.Anything, customer, storage.PageRequest{Page: 1, Size: 5, Ascending: true}).
			Return(&storage.Page{Invoices: []models.Invoice{}}, nil).Once()
		store.On("ApplyPayment", mock.Anything, storage.PaymentCommand{
			RunID: "run-1", InvoiceID: "inv-1", CustomerID: customer, Amount: 400, ExpectedVersion: 3, ExpectedBalance: 400,
		}).Return(nil).Once()
		store.On("MarkClosedIfFullyPaid", mock.Anything, "inv-1").Return(nil).Once()

		engine := NewEngine(store, DefaultConfig(), zap.NewNop())
		out, err := engine.ConsolidateAndSettle(context.Background(), request(500), nil)

		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, out.Status)
		assert.Equal(t, ReasonStoreExhausted, out.Reason)
		assert.Equal(t, []string{"inv-1"}, out.SelectedInvoiceIDs)
		assert.Equal(t, int64(400), out.AppliedAmount)
		assert.Equal(t, int64(100), out.LeftoverCash)
		assert.Equal(t, 1, out.ClosedCount)
		assert.Equal(t, 2, out.PagesFetched)
		store.AssertExpectations(t)
	})
}

func TestConsolidateAndSettle_Properties(t *testing.T) {
	t.Run("No Open Invoices Issues No Writes", func(t *testing.T) {
		store := &mocks.InvoiceStore{}
		store.On("QueryOpenInvoices", mock.Anything, customer, mock.Anything).
			Return(&storage.Page{Invoices: []models.Invoice{}}, nil).Once()

		engine := NewEngine(store, DefaultConfig(), zap.NewNop())
		out, err := engine.ConsolidateAndSettle(context.Background(), request(500), nil)

		require.NoError(t, err)
		assert.Equal(t, StatusNoInvoices, out.Status)
		store.AssertExpectations(t)
		store.AssertNotCalled(t, "ApplyPayment", mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "MarkClosedIfFullyPaid", mock.Anything, mock.Anything)
	})

	t.Run("Single Invoice Shortcut Takes First Covering Invoice", func(t *testing.T) {
		store := newRecordingStore()
		invoices := seed(store.Store, customer, 100, 700, 800)
		engine := NewEngine(store, DefaultConfig(), zap.NewNop())

		out, err := engine.ConsolidateAndSettle(context.Background(), request(600), nil)

		require.NoError(t, err)
		assert.Equal(t, ReasonSingleInvoice, out.Reason)
		assert.Equal(t, []string{invoices[1].Id}, out.SelectedInvoiceIDs)
		assert.Equal(t, int64(600), out.AppliedAmount)
		assert.Equal(t, int64(100), invoiceAfter(t, store, invoices[1].Id).Balance)
	})

	t.Run("Exact Match Stops Paging", func(t *testing.T) {
		store := newRecordingStore()
		seed(store.Store, customer, 100, 200, 300, 400, 500)
		engine := NewEngine(store, Config{PageSize: 2}, zap.NewNop())

		out, err := engine.ConsolidateAndSettle(context.Background(), request(300), nil)

		require.NoError(t, err)
		assert.Equal(t, ReasonExactMatch, out.Reason)
		assert.Equal(t, []int{0}, store.requestedPages())
		assert.Equal(t, 1, out.PagesFetched)
	})

	t.Run("Pages Are Requested In Increasing Order", func(t *testing.T) {
		store := newRecordingStore()
		seed(store.Store, customer, 100, 100, 100, 100, 100, 100)
		engine := NewEngine(store, Config{PageSize: 2}, zap.NewNop())

		out, err := engine.ConsolidateAndSettle(context.Background(), request(10000), nil)

		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, store.requestedPages())
		assert.Equal(t, ReasonStoreExhausted, out.Reason)
		assert.Equal(t, int64(600), out.AppliedAmount)
		assert.Equal(t, int64(9400), out.LeftoverCash)
		assert.Equal(t, 6, out.ClosedCount)
	})

	t.Run("Failed Invoice Does Not Stop The Rest", func(t *testing.T) {
		store := newRecordingStore()
		invoices := seed(store.Store, customer, 100, 200, 300)
		store.failApply[invoices[1].Id] = errors.New("throttled")
		engine := NewEngine(store, DefaultConfig(), zap.NewNop())

		out, err := engine.ConsolidateAndSettle(context.Background(), request(600), nil)

		require.NoError(t, err)
		assert.Equal(t, StatusPartiallyCompleted, out.Status)
		assert.Equal(t, []string{invoices[0].Id, invoices[1].Id, invoices[2].Id}, store.attempted())
		assert.Equal(t, 2, out.ClosedCount)
		assert.Equal(t, int64(400), out.AppliedAmount)
		require.Len(t, out.Failures, 1)
		assert.Equal(t, invoices[1].Id, out.Failures[0].InvoiceID)
		assert.Equal(t, StageApply, out.Failures[0].Stage)
		assert.Equal(t, []string{invoices[1].Id}, out.FailedInvoiceIDs())
		assert.True(t, invoiceAfter(t, store, invoices[1].Id).Open)
	})

	t.Run("Progress Reports Each Settled Invoice", func(t *testing.T) {
		store := newRecordingStore()
		seed(store.Store, customer, 100, 200, 300)
		engine := NewEngine(store, DefaultConfig(), zap.NewNop())

		var progress []Progress
		_, err := engine.ConsolidateAndSettle(context.Background(), request(600), func(p Progress) {
			progress = append(progress, p)
		})

		require.NoError(t, err)
		require.Len(t, progress, 3)
		assert.Equal(t, Progress{AppliedSoFar: 100, ClosedCount: 1, Processed: 1, Total: 3}, progress[0])
		assert.Equal(t, int64(300), progress[1].AppliedSoFar)
		assert.InDelta(t, 1.0, progress[2].Fraction(), 1e-9)
	})
}

func TestConsolidateAndSettle_Failures(t *testing.T) {
	t.Run("Store Error Aborts The Run", func(t *testing.T) {
		store := &mocks.InvoiceStore{}
		store.On("QueryOpenInvoices", mock.Anything, customer, mock.Anything).
			Return(nil, errors.New("connection reset")).Once()

		engine := NewEngine(store, DefaultConfig(), zap.NewNop())
		out, err := engine.ConsolidateAndSettle(context.Background(), request(500), nil)

		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.ErrorContains(t, err, "connection reset")
		require.NotNil(t, out)
		assert.Equal(t, StatusStoreUnavailable, out.Status)
		store.AssertExpectations(t)
	})

	t.Run("Page Cap Yields Undecidable", func(t *testing.T) {
		store := newRecordingStore()
		seed(store.Store, customer, 100, 100, 100, 100, 100, 100, 100, 100)
		engine := NewEngine(store, Config{PageSize: 2, MaxPages: 2}, zap.NewNop())

		out, err := engine.ConsolidateAndSettle(context.Background(), request(10000), nil)

		require.NoError(t, err)
		assert.Equal(t, StatusUndecidable, out.Status)
		assert.ErrorIs(t, out.Err, ErrUndecidable)
		assert.Equal(t, []int{0, 1}, store.requestedPages())
		assert.Empty(t, store.Payments())
	})

	t.Run("Invoice Cap Yields Undecidable", func(t *testing.T) {
		store := newRecordingStore()
		seed(store.Store, customer, 100, 100, 100, 100, 100, 100, 100, 100)
		engine := NewEngine(store, Config{PageSize: 2, MaxInvoices: 3}, zap.NewNop())

		out, err := engine.ConsolidateAndSettle(context.Background(), request(10000), nil)

		require.NoError(t, err)
		assert.Equal(t, StatusUndecidable, out.Status)
		assert.Equal(t, 2, out.PagesFetched)
	})

	t.Run("Cancellation Stops Further Writes", func(t *testing.T) {
		store := newRecordingStore()
		seed(store.Store, customer, 100, 200, 300)
		engine := NewEngine(store, DefaultConfig(), zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		out, err := engine.ConsolidateAndSettle(ctx, request(600), func(p Progress) {
			cancel()
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StatusCancelled, out.Status)
		assert.Equal(t, int64(100), out.AppliedAmount)
		assert.Len(t, store.Payments(), 1)
	})

	t.Run("Cancelled Before Start Fetches Nothing", func(t *testing.T) {
		store := newRecordingStore()
		seed(store.Store, customer, 100)
		engine := NewEngine(store, DefaultConfig(), zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		out, err := engine.ConsolidateAndSettle(ctx, request(600), nil)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StatusCancelled, out.Status)
		assert.Empty(t, store.requestedPages())
	})

	t.Run("Exact Match Above The Table Cap", func(t *testing.T) {
		store := newRecordingStore()
		invoices := seed(store.Store, customer, 100001, 100000)
		engine := NewEngine(store, DefaultConfig(), zap.NewNop())

		out, err := engine.ConsolidateAndSettle(context.Background(), request(200001), nil)

		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, out.Status)
		assert.Equal(t, ReasonExactMatch, out.Reason)
		assert.Equal(t, int64(200001), out.AppliedAmount)
		assert.Equal(t, int64(0), out.LeftoverCash)
		assert.Equal(t, 2, out.ClosedCount)
		assert.False(t, invoiceAfter(t, store, invoices[1].Id).Open)
	})

	t.Run("Replayed Run Pays Once", func(t *testing.T) {
		store := newRecordingStore()
		invoices := seed(store.Store, customer, 300, 300, 300, 300)
		engine := NewEngine(store, DefaultConfig(), zap.NewNop())
		req := request(600)
		req.RunID = "run-dup"

		first, err := engine.ConsolidateAndSettle(context.Background(), req, nil)
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, first.Status)

		again, err := engine.ConsolidateAndSettle(context.Background(), req, nil)

		require.NoError(t, err)
		assert.Equal(t, StatusAlreadySettled, again.Status)
		assert.Equal(t, int64(600), again.AppliedAmount)
		assert.Equal(t, 2, again.ClosedCount)
		assert.ElementsMatch(t, []string{invoices[0].Id, invoices[1].Id}, again.AlreadyAppliedIDs)
		require.Len(t, store.Payments(), 2)
		var total int64
		for _, p := range store.Payments() {
			total += p.Amount
		}
		assert.Equal(t, int64(600), total)
		assert.True(t, invoiceAfter(t, store, invoices[2].Id).Open)
		assert.True(t, invoiceAfter(t, store, invoices[3].Id).Open)
	})

	t.Run("Run Payments Read Failure Is Store Unavailable", func(t *testing.T) {
		store := &unreadableRunStore{recordingStore: newRecordingStore()}
		seed(store.Store, customer, 300)
		engine := NewEngine(store, DefaultConfig(), zap.NewNop())

		out, err := engine.ConsolidateAndSettle(context.Background(), request(300), nil)

		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.Equal(t, StatusStoreUnavailable, out.Status)
		assert.Empty(t, store.attempted())
		assert.Empty(t, store.Payments())
	})

	t.Run("Invalid Request", func(t *testing.T) {
		engine := NewEngine(newRecordingStore(), DefaultConfig(), nil)

		out, err := engine.ConsolidateAndSettle(context.Background(), models.ConsolidationRequest{CustomerID: customer}, nil)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, ErrInvalidRequest)

		out, err = engine.ConsolidateAndSettle(context.Background(), models.ConsolidationRequest{CashAmount: 100}, nil)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("Run ID Is Generated When Missing", func(t *testing.T) {
		store := newRecordingStore()
		seed(store.Store, customer, 100)
		engine := NewEngine(store, DefaultConfig(), nil)

		out, err := engine.ConsolidateAndSettle(context.Background(), models.ConsolidationRequest{CustomerID: customer, CashAmount: 100}, nil)

		require.NoError(t, err)
		assert.NotEmpty(t, out.RunID)
		require.Len(t, store.Payments(), 1)
		assert.Equal(t, out.RunID, store.Payments()[0].RunID)
	})
}

type unreadableRunStore struct {
	*recordingStore
}

func (u *unreadableRunStore) ListRunPayments(ctx context.Context, runID string) ([]models.PaymentRecord, error) {
	return nil, errors.New("connection reset")
}
