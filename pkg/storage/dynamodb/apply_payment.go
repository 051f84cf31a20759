package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/storage"
)

// ApplyPayment records a payment against an invoice and reduces its balance.
// The invoice stays open; closing is a separate command.
func (s *Store) ApplyPayment(ctx context.Context, cmd storage.PaymentCommand) error {
	_, err := s.executePayment(ctx, cmd, false)
	return err
}

// SettleInvoice applies a payment and, when it pays the invoice in full, closes the
// invoice in the same conditional write. It returns whether the invoice was closed.
func (s *Store) SettleInvoice(ctx context.Context, cmd storage.PaymentCommand) (bool, error) {
	return s.executePayment(ctx, cmd, cmd.PaysInFull())
}

// executePayment writes the balance update and the payment record in one transaction.
// The invoice update is conditioned on the version and balance the caller read, so a
// concurrent change to the invoice rejects the payment instead of overpaying it.
func (s *Store) executePayment(ctx context.Context, cmd storage.PaymentCommand, closeInvoice bool) (bool, error) {
	if cmd.Amount <= 0 {
		return false, storage.ErrInvalidAmount
	}

	// 1. Prepare common values.
	now := time.Now().UTC()
	amountAV, err := attributevalue.Marshal(cmd.Amount)
	if err != nil {
		return false, fmt.Errorf("failed to marshal amount for payment: %w", err)
	}
	nowAV, err := attributevalue.Marshal(now)
	if err != nil {
		return false, fmt.Errorf("failed to marshal timestamp for payment: %w", err)
	}

	// 2. Prepare the payment record.
	record := models.PaymentRecord{
		EntryID:    models.PaymentEntryID(cmd.RunID, cmd.InvoiceID),
		RunID:      cmd.RunID,
		InvoiceID:  cmd.InvoiceID,
		CustomerID: cmd.CustomerID,
		Amount:     cmd.Amount,
		Closed:     closeInvoice,
		Timestamp:  now,
	}
	recordAV, err := attributevalue.MarshalMap(record)
	if err != nil {
		return false, fmt.Errorf("failed to marshal payment record: %w", err)
	}

	// 3. Build the invoice update.
	updateExpr := "SET paid = paid + :amount, balance = balance - :amount, version = version + :inc, updated_at = :now"
	if closeInvoice {
		updateExpr += ", #open = :false, closed_at = :now REMOVE customer_open"
	}
	values := map[string]types.AttributeValue{
		":amount":  amountAV,
		":version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", cmd.ExpectedVersion)},
		":balance": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", cmd.ExpectedBalance)},
		":inc":     &types.AttributeValueMemberN{Value: "1"},
		":now":     nowAV,
		":true":    &types.AttributeValueMemberBOOL{Value: true},
	}
	if closeInvoice {
		values[":false"] = &types.AttributeValueMemberBOOL{Value: false}
	}

	// 4. Construct the TransactWriteItems input.
	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				// Operation 1: Update the invoice balance.
				Update: &types.Update{
					TableName:                 aws.String(s.InvoicesTableName),
					Key:                       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: cmd.InvoiceID}},
					UpdateExpression:          aws.String(updateExpr),
					ConditionExpression:       aws.String("version = :version AND balance = :balance AND balance >= :amount AND #open = :true"),
					ExpressionAttributeNames:  map[string]string{"#open": "open"},
					ExpressionAttributeValues: values,
				},
			},
			{
				// Operation 2: Create the payment record.
				Put: &types.Put{
					TableName:           aws.String(s.PaymentsTableName),
					Item:                recordAV,
					ConditionExpression: aws.String("attribute_not_exists(entry_id)"),
				},
			},
		},
	}

	// 5. Execute the transaction.
	if _, err := s.Client.TransactWriteItems(ctx, input); err != nil {
		var txc *types.TransactionCanceledException
		if errors.As(err, &txc) {
			// Reasons are listed in TransactItems order: invoice update, then payment record.
			if conditionFailed(txc, 1) {
				return false, fmt.Errorf("invoice %s in run %s: %w", cmd.InvoiceID, cmd.RunID, storage.ErrAlreadyApplied)
			}
			if conditionFailed(txc, 0) {
				return false, fmt.Errorf("payment to invoice %s rejected: %w", cmd.InvoiceID, storage.ErrInvoiceChanged)
			}
		}
		return false, fmt.Errorf("failed to execute payment transaction: %w", err)
	}

	return closeInvoice, nil
}

func conditionFailed(txc *types.TransactionCanceledException, item int) bool {
	if item >= len(txc.CancellationReasons) {
		return false
	}
	code := txc.CancellationReasons[item].Code
	return code != nil && *code == "ConditionalCheckFailed"
}

// MarkClosedIfFullyPaid closes an open invoice whose balance is zero.
// A failed condition means the invoice is already closed or still owes money, which is not an error.
func (s *Store) MarkClosedIfFullyPaid(ctx context.Context, invoiceID string) error {
	nowAV, err := attributevalue.Marshal(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal timestamp for close: %w", err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.InvoicesTableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: invoiceID},
		},
		UpdateExpression:    aws.String("SET #open = :false, closed_at = :now, updated_at = :now, version = version + :inc REMOVE customer_open"),
		ConditionExpression: aws.String("#open = :true AND balance = :zero"),
		ExpressionAttributeNames: map[string]string{
			"#open": "open",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":true":  &types.AttributeValueMemberBOOL{Value: true},
			":zero":  &types.AttributeValueMemberN{Value: "0"},
			":inc":   &types.AttributeValueMemberN{Value: "1"},
			":now":   nowAV,
		},
	}

	if _, err := s.Client.UpdateItem(ctx, input); err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return nil
		}
		return fmt.Errorf("failed to close invoice %s: %w", invoiceID, err)
	}

	return nil
}
