package mapping

import (
	"errors"
	"fmt"

	"github.com/chris/invoice-settlement/pkg/api"
	"github.com/chris/invoice-settlement/pkg/consolidation"
	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/websockets"
	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for amounts that are not positive or have more than two decimals.
var ErrInvalidAmount = errors.New("invalid amount")

// minorUnitExp is the exponent of one minor unit (cents).
const minorUnitExp = -2

// FormatMinorUnits renders cents as a decimal string with two fraction digits.
func FormatMinorUnits(amount int64) string {
	return decimal.New(amount, minorUnitExp).StringFixed(2)
}

// ToMinorUnits converts a positive decimal amount to cents.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amount.String())
	}
	cents := amount.Shift(-minorUnitExp)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than two decimal places", ErrInvalidAmount, amount.String())
	}
	if cents.GreaterThan(decimal.NewFromInt(maxMinorUnits)) {
		return 0, fmt.Errorf("%w: %s is too large", ErrInvalidAmount, amount.String())
	}
	return cents.IntPart(), nil
}

// maxMinorUnits keeps amounts well inside int64 once they are summed.
const maxMinorUnits = 1 << 50

// ToApiInvoice converts a domain Invoice to its API model.
func ToApiInvoice(inv *models.Invoice) api.Invoice {
	return api.Invoice{
		Id:           inv.Id,
		SerialNumber: inv.SerialNumber,
		CustomerId:   inv.CustomerId,
		Billed:       FormatMinorUnits(inv.Billed),
		Paid:         FormatMinorUnits(inv.Paid),
		Balance:      FormatMinorUnits(inv.Balance),
		Open:         inv.Open,
		Version:      inv.Version,
		CreatedAt:    inv.CreatedAt,
		ClosedAt:     inv.ClosedAt,
	}
}

// ToApiInvoices converts a page of domain invoices.
func ToApiInvoices(invoices []models.Invoice) []api.Invoice {
	out := make([]api.Invoice, len(invoices))
	for i := range invoices {
		out[i] = ToApiInvoice(&invoices[i])
	}
	return out
}

// ToDomainConsolidationRequest builds the engine request for a customer from the API body.
func ToDomainConsolidationRequest(customerId string, req *api.SettlementRequest) (models.ConsolidationRequest, error) {
	cash, err := ToMinorUnits(req.CashAmount)
	if err != nil {
		return models.ConsolidationRequest{}, err
	}
	out := models.ConsolidationRequest{CustomerID: customerId, CashAmount: cash}
	if req.RunId != nil {
		out.RunID = *req.RunId
	}
	return out, nil
}

// ToApiOutcome converts the engine outcome to its API model.
func ToApiOutcome(out *consolidation.SettlementOutcome) api.SettlementOutcome {
	res := api.SettlementOutcome{
		RunId:              out.RunID,
		CustomerId:         out.CustomerID,
		Status:             api.SettlementStatus(out.Status),
		Reason:             string(out.Reason),
		CashAmount:         FormatMinorUnits(out.CashAmount),
		AppliedAmount:      FormatMinorUnits(out.AppliedAmount),
		LeftoverCash:       FormatMinorUnits(out.LeftoverCash),
		ClosedCount:        out.ClosedCount,
		SelectedInvoiceIds: out.SelectedInvoiceIDs,
		AlreadyAppliedIds:  out.AlreadyAppliedIDs,
		Failures:           make([]api.InvoiceFailure, len(out.Failures)),
		PagesFetched:       out.PagesFetched,
	}
	if res.SelectedInvoiceIds == nil {
		res.SelectedInvoiceIds = []string{}
	}
	for i, f := range out.Failures {
		res.Failures[i] = api.InvoiceFailure{InvoiceId: f.InvoiceID, Stage: string(f.Stage), Error: f.Err.Error()}
	}
	if out.Err != nil {
		msg := out.Err.Error()
		res.Error = &msg
	}
	return res
}

// ToProgressMessage builds the websocket message sent after each settled invoice of a run.
func ToProgressMessage(runID, customerID string, p consolidation.Progress) websockets.Message {
	return websockets.Message{
		Type: websockets.MessageTypeSettlementProgress,
		Payload: websockets.SettlementProgressPayload{
			RunID:        runID,
			CustomerID:   customerID,
			AppliedSoFar: FormatMinorUnits(p.AppliedSoFar),
			ClosedCount:  p.ClosedCount,
			Processed:    p.Processed,
			Total:        p.Total,
			Fraction:     p.Fraction(),
		},
	}
}
