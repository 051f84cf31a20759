package consolidation

import (
	"context"
	"fmt"

	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/storage"
	"go.uber.org/zap"
)

// controller pages through a customer's open invoices, oldest first, until the
// accumulated set yields a selection.
type controller struct {
	store  storage.InvoiceReader
	cfg    Config
	logger *zap.Logger
}

// selectInvoices returns the selection and the number of pages fetched.
// Store failures wrap ErrStoreUnavailable; hitting a cap returns ErrUndecidable.
func (c *controller) selectInvoices(ctx context.Context, customerID string, cash int64) (*Selection, int, error) {
	var accumulated []models.Invoice
	search := newSubsetSearch(cash, c.cfg.MaxSearchUnits)
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, pages, err
		}

		page, err := c.store.QueryOpenInvoices(ctx, customerID, storage.PageRequest{
			Page:      pages,
			Size:      c.cfg.PageSize,
			Ascending: true,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, pages, ctxErr
			}
			return nil, pages, fmt.Errorf("%w: failed to query page %d: %w", ErrStoreUnavailable, pages, err)
		}
		pages++

		// 1. Store exhausted.
		if len(page.Invoices) == 0 {
			return c.exhausted(accumulated, search, cash), pages, nil
		}

		for _, inv := range page.Invoices {
			accumulated = append(accumulated, inv)
			search.add(inv.Balance)
		}
		c.logger.Debug("Fetched open invoices page",
			zap.String("customer_id", customerID),
			zap.Int("page", pages-1),
			zap.Int("accumulated", len(accumulated)))

		// 2. Trivial set.
		if len(accumulated) <= 1 {
			return newSelection(accumulated, cash, ReasonTrivialSet), pages, nil
		}

		ev := search.evaluate()

		// 3. Single invoice covering the whole cash amount.
		if ev.Single >= 0 {
			return newSelection(pick(accumulated, []int{ev.Single}), cash, ReasonSingleInvoice), pages, nil
		}

		// 4. Exact match.
		if ev.Exact != nil {
			return newSelection(pick(accumulated, ev.Exact), cash, ReasonExactMatch), pages, nil
		}

		// The store reported the last page, so another fetch would come back empty.
		if !page.HasMore {
			return c.exhausted(accumulated, search, cash), pages, nil
		}

		if pages >= c.cfg.MaxPages || len(accumulated) >= c.cfg.MaxInvoices {
			return nil, pages, fmt.Errorf("%w: %d pages, %d invoices", ErrUndecidable, pages, len(accumulated))
		}
	}
}

func (c *controller) exhausted(accumulated []models.Invoice, search *subsetSearch, cash int64) *Selection {
	if len(accumulated) == 0 {
		return newSelection(nil, cash, ReasonStoreExhausted)
	}
	ev := search.evaluate()
	if ev.Affordable {
		return newSelection(pick(accumulated, ev.Best), cash, ReasonStoreExhausted)
	}
	// Nothing fits: settle everything seen as a best effort, oldest first.
	return newSelection(accumulated, cash, ReasonStoreExhausted)
}

func pick(invoices []models.Invoice, idx []int) []models.Invoice {
	out := make([]models.Invoice, len(idx))
	for i, j := range idx {
		out[i] = invoices[j]
	}
	return out
}
