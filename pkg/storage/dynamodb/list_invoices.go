package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/storage"
)

// openInvoicesGSI is a sparse index: only open invoices carry the customer_open attribute.
const openInvoicesGSI = "customer_open-created_at-index"

// runPaymentsGSI indexes payment records by run id.
const runPaymentsGSI = "run_id-index"

// QueryOpenInvoices returns one page of a customer's open invoices ordered by creation time.
// DynamoDB pages by cursor, so the start key of each page is remembered when the previous
// page is read. A page that was not reached before is found by walking from the first page.
func (s *Store) QueryOpenInvoices(ctx context.Context, customerID string, req storage.PageRequest) (*storage.Page, error) {
	if req.Size <= 0 {
		return nil, fmt.Errorf("invalid page size %d", req.Size)
	}
	if req.Page < 0 {
		return nil, fmt.Errorf("invalid page index %d", req.Page)
	}

	key := cursorKey{customerID: customerID, page: req.Page, size: req.Size, ascending: req.Ascending}
	if _, ok := s.cursor(key); !ok && req.Page > 0 {
		// Walk the earlier pages to find where this one starts.
		for p := 0; p < req.Page; p++ {
			following := key
			following.page = p + 1
			if _, known := s.cursor(following); known {
				continue
			}
			prev := key
			prev.page = p
			if _, err := s.queryPage(ctx, prev); err != nil {
				return nil, err
			}
		}
	}

	return s.queryPage(ctx, key)
}

func (s *Store) queryPage(ctx context.Context, key cursorKey) (*storage.Page, error) {
	next := key
	next.page++

	startKey, _ := s.cursor(key)
	if key.page > 0 && startKey == nil {
		// The previous page was the last one.
		s.rememberCursor(next, nil)
		return &storage.Page{Invoices: []models.Invoice{}}, nil
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.InvoicesTableName),
		IndexName:              aws.String(openInvoicesGSI),
		KeyConditionExpression: aws.String("customer_open = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: models.CustomerOpenKey(key.customerID)},
		},
		ScanIndexForward:  aws.Bool(key.ascending),
		Limit:             aws.Int32(int32(key.size)),
		ExclusiveStartKey: startKey,
	}

	result, err := s.Client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query open invoices: %w", err)
	}

	invoices := []models.Invoice{}
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &invoices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invoices: %w", err)
	}

	s.rememberCursor(next, result.LastEvaluatedKey)

	return &storage.Page{
		Invoices: invoices,
		HasMore:  len(result.LastEvaluatedKey) > 0,
	}, nil
}

// ListPaidOpenInvoices scans for invoices whose balance reached zero but which were never closed.
func (s *Store) ListPaidOpenInvoices(ctx context.Context, limit int32) ([]models.Invoice, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.InvoicesTableName),
		FilterExpression: aws.String("#open = :true AND balance = :zero"),
		ExpressionAttributeNames: map[string]string{
			"#open": "open",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	result, err := s.Client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for paid open invoices: %w", err)
	}

	var invoices []models.Invoice
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &invoices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal paid open invoices: %w", err)
	}

	return invoices, nil
}

// ListRunPayments returns the payments written by a run, using the payments table's run index.
func (s *Store) ListRunPayments(ctx context.Context, runID string) ([]models.PaymentRecord, error) {
	var payments []models.PaymentRecord
	var startKey map[string]types.AttributeValue
	for {
		result, err := s.Client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.PaymentsTableName),
			IndexName:              aws.String(runPaymentsGSI),
			KeyConditionExpression: aws.String("run_id = :run"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":run": &types.AttributeValueMemberS{Value: runID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query run payments: %w", err)
		}

		var page []models.PaymentRecord
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run payments: %w", err)
		}
		payments = append(payments, page...)

		if len(result.LastEvaluatedKey) == 0 {
			return payments, nil
		}
		startKey = result.LastEvaluatedKey
	}
}
