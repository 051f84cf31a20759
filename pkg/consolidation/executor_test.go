package consolidation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/storage"
	"github.com/chris/invoice-settlement/pkg/storage/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecutorSettle(t *testing.T) {
	ctx := context.Background()

	t.Run("Invariant Violation Aborts Before Any Write", func(t *testing.T) {
		store := &mocks.InvoiceStore{}
		exec := &executor{store: store, logger: zap.NewNop()}
		sel := &Selection{Invoices: invoicesWith(500, 400), TotalBalance: 900, CanClose: true}

		out, err := exec.settle(ctx, "run-1", customer, sel, 500, nil)

		assert.ErrorIs(t, err, ErrInvariantViolation)
		assert.Equal(t, int64(0), out.AppliedAmount)
		store.AssertNotCalled(t, "ApplyPayment", mock.Anything, mock.Anything)
	})

	t.Run("Stale Invoice Is Rejected And Recorded", func(t *testing.T) {
		store := newRecordingStore()
		invoices := seed(store.Store, customer, 300, 200)
		stale := invoices[0]
		stale.Version = 7
		exec := &executor{store: store, logger: zap.NewNop()}
		sel := newSelection([]models.Invoice{stale, invoices[1]}, 500, ReasonExactMatch)

		out, err := exec.settle(ctx, "run-1", customer, sel, 500, nil)

		require.NoError(t, err)
		require.Len(t, out.Failures, 1)
		assert.ErrorIs(t, out.Failures[0].Err, storage.ErrInvoiceChanged)
		assert.Equal(t, int64(200), out.AppliedAmount)
		assert.Equal(t, 1, out.ClosedCount)
	})

	t.Run("Payment Already Applied By This Run Is Skipped", func(t *testing.T) {
		store := newRecordingStore()
		invoices := seed(store.Store, customer, 300, 200)
		store.failApply[invoices[0].Id] = fmt.Errorf("invoice %s: %w", invoices[0].Id, storage.ErrAlreadyApplied)
		exec := &executor{store: store, logger: zap.NewNop()}

		out, err := exec.settle(ctx, "run-1", customer, newSelection(invoices, 500, ReasonExactMatch), 500, nil)

		require.NoError(t, err)
		assert.Empty(t, out.Failures)
		assert.Equal(t, []string{invoices[0].Id}, out.AlreadyAppliedIDs)
		assert.Equal(t, int64(200), out.AppliedAmount)
		assert.Equal(t, int64(0), out.LeftoverCash)
	})

	t.Run("Plain Store Reports Already Applied Payments", func(t *testing.T) {
		store := &mocks.InvoiceStore{}
		inv := invoicesWith(300)[0]
		store.On("ApplyPayment", mock.Anything, mock.Anything).Return(storage.ErrAlreadyApplied).Once()
		exec := &executor{store: store, logger: zap.NewNop()}

		out, err := exec.settle(ctx, "run-1", customer, newSelection(invoicesWith(300), 300, ReasonExactMatch), 300, nil)

		require.NoError(t, err)
		assert.Empty(t, out.Failures)
		assert.Equal(t, []string{inv.Id}, out.AlreadyAppliedIDs)
		store.AssertNotCalled(t, "MarkClosedIfFullyPaid", mock.Anything, mock.Anything)
		store.AssertExpectations(t)
	})

	t.Run("Close Failure Still Counts Applied Cash", func(t *testing.T) {
		store := &mocks.InvoiceStore{}
		inv := invoicesWith(300)[0]
		store.On("ApplyPayment", mock.Anything, mock.MatchedBy(func(cmd storage.PaymentCommand) bool {
			return cmd.InvoiceID == inv.Id && cmd.Amount == 300
		})).Return(nil).Once()
		store.On("MarkClosedIfFullyPaid", mock.Anything, inv.Id).Return(errors.New("timeout")).Once()
		exec := &executor{store: store, logger: zap.NewNop()}

		out, err := exec.settle(ctx, "run-1", customer, newSelection(invoicesWith(300), 500, ReasonTrivialSet), 500, nil)

		require.NoError(t, err)
		assert.Equal(t, int64(300), out.AppliedAmount)
		assert.Equal(t, 0, out.ClosedCount)
		assert.Equal(t, int64(200), out.LeftoverCash)
		require.Len(t, out.Failures, 1)
		assert.Equal(t, StageClose, out.Failures[0].Stage)
		store.AssertExpectations(t)
	})

	t.Run("Overrunning Selection Stops When Cash Runs Out", func(t *testing.T) {
		store := newRecordingStore()
		invoices := seed(store.Store, customer, 300, 300, 300)
		exec := &executor{store: store, logger: zap.NewNop()}
		sel := newSelection(invoices, 500, ReasonStoreExhausted)
		require.False(t, sel.CanClose)

		out, err := exec.settle(ctx, "run-1", customer, sel, 500, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{invoices[0].Id, invoices[1].Id}, store.attempted())
		assert.Equal(t, int64(500), out.AppliedAmount)
		assert.Equal(t, int64(0), out.LeftoverCash)
		assert.Equal(t, 1, out.ClosedCount)
	})

	t.Run("Paid Invoice Left Open Is Only Closed", func(t *testing.T) {
		store := &mocks.InvoiceStore{}
		inv := invoicesWith(0)[0]
		store.On("MarkClosedIfFullyPaid", mock.Anything, inv.Id).Return(nil).Once()
		exec := &executor{store: store, logger: zap.NewNop()}

		out, err := exec.settle(ctx, "run-1", customer, newSelection(invoicesWith(0), 100, ReasonTrivialSet), 100, nil)

		require.NoError(t, err)
		assert.Equal(t, 1, out.ClosedCount)
		assert.Equal(t, int64(0), out.AppliedAmount)
		store.AssertNotCalled(t, "ApplyPayment", mock.Anything, mock.Anything)
		store.AssertExpectations(t)
	})

	t.Run("Cancellation Between Apply And Close", func(t *testing.T) {
		store := &mocks.InvoiceStore{}
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		store.On("ApplyPayment", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			cancel()
		}).Return(nil).Once()
		exec := &executor{store: store, logger: zap.NewNop()}

		out, err := exec.settle(cctx, "run-1", customer, newSelection(invoicesWith(100, 200), 300, ReasonExactMatch), 300, nil)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int64(100), out.AppliedAmount)
		store.AssertNotCalled(t, "MarkClosedIfFullyPaid", mock.Anything, mock.Anything)
		store.AssertExpectations(t)
	})
}
