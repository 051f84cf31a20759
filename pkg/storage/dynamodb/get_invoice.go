package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/storage"
)

// GetInvoice retrieves an invoice from DynamoDB by its ID.
func (s *Store) GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"id": invoiceID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoice ID: %w", err)
	}

	input := &dynamodb.GetItemInput{
		TableName:      &s.InvoicesTableName,
		Key:            key,
		ConsistentRead: boolPtr(true),
	}

	result, err := s.Client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("invoice with ID %s: %w", invoiceID, storage.ErrInvoiceNotFound)
	}

	var inv models.Invoice
	if err := attributevalue.UnmarshalMap(result.Item, &inv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	return &inv, nil
}

func boolPtr(b bool) *bool { return &b }
