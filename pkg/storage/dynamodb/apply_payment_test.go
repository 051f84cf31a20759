package dynamodb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/invoice-settlement/pkg/storage"
	"github.com/chris/invoice-settlement/pkg/storage/dynamodb/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestApplyPayment(t *testing.T) {
	cmd := storage.PaymentCommand{
		RunID:           "run-1",
		InvoiceID:       "inv-1",
		CustomerID:      "cust-1",
		Amount:          20000,
		ExpectedVersion: 4,
		ExpectedBalance: 100000,
	}

	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, InvoicesTableName: "invoices", PaymentsTableName: "payments"}

		mockClient.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
			update := in.TransactItems[0].Update
			put := in.TransactItems[1].Put
			return len(in.TransactItems) == 2 &&
				*update.TableName == "invoices" &&
				!strings.Contains(*update.UpdateExpression, "REMOVE customer_open") &&
				update.ExpressionAttributeValues[":version"].(*types.AttributeValueMemberN).Value == "4" &&
				*put.TableName == "payments"
		})).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()

		err := store.ApplyPayment(context.Background(), cmd)

		assert.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Stale Version Is Rejected", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, InvoicesTableName: "invoices", PaymentsTableName: "payments"}

		reasons := []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}, {Code: aws.String("None")}}
		mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, &types.TransactionCanceledException{CancellationReasons: reasons})

		err := store.ApplyPayment(context.Background(), cmd)

		assert.ErrorIs(t, err, storage.ErrInvoiceChanged)
		mockClient.AssertExpectations(t)
	})

	t.Run("Replayed Run Is Rejected", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, InvoicesTableName: "invoices", PaymentsTableName: "payments"}

		mockClient.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
			entry := in.TransactItems[1].Put.Item["entry_id"].(*types.AttributeValueMemberS)
			return entry.Value == "run-1#inv-1"
		})).Return(nil, &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
			{Code: aws.String("ConditionalCheckFailed")},
			{Code: aws.String("ConditionalCheckFailed")},
		}}).Once()

		err := store.ApplyPayment(context.Background(), cmd)

		assert.ErrorIs(t, err, storage.ErrAlreadyApplied)
		assert.NotErrorIs(t, err, storage.ErrInvoiceChanged)
		mockClient.AssertExpectations(t)
	})

	t.Run("Transaction Fails", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, InvoicesTableName: "invoices", PaymentsTableName: "payments"}

		mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, errors.New("transaction failed"))

		err := store.ApplyPayment(context.Background(), cmd)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to execute payment transaction")
		mockClient.AssertExpectations(t)
	})

	t.Run("Non Positive Amount", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient}

		bad := cmd
		bad.Amount = 0
		err := store.ApplyPayment(context.Background(), bad)

		assert.ErrorIs(t, err, storage.ErrInvalidAmount)
		mockClient.AssertNotCalled(t, "TransactWriteItems", mock.Anything, mock.Anything)
	})
}

func TestSettleInvoice(t *testing.T) {
	t.Run("Full Payment Closes In The Same Write", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, InvoicesTableName: "invoices", PaymentsTableName: "payments"}

		mockClient.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
			return strings.Contains(*in.TransactItems[0].Update.UpdateExpression, "REMOVE customer_open")
		})).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()

		closed, err := store.SettleInvoice(context.Background(), storage.PaymentCommand{
			InvoiceID: "inv-1", Amount: 50000, ExpectedVersion: 1, ExpectedBalance: 50000,
		})

		assert.NoError(t, err)
		assert.True(t, closed)
		mockClient.AssertExpectations(t)
	})

	t.Run("Partial Payment Leaves Invoice Open", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, InvoicesTableName: "invoices", PaymentsTableName: "payments"}

		mockClient.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
			return !strings.Contains(*in.TransactItems[0].Update.UpdateExpression, "REMOVE customer_open")
		})).Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()

		closed, err := store.SettleInvoice(context.Background(), storage.PaymentCommand{
			InvoiceID: "inv-1", Amount: 20000, ExpectedVersion: 1, ExpectedBalance: 100000,
		})

		assert.NoError(t, err)
		assert.False(t, closed)
		mockClient.AssertExpectations(t)
	})
}

func TestMarkClosedIfFullyPaid(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, InvoicesTableName: "invoices"}

		mockClient.On("UpdateItem", mock.Anything, mock.AnythingOfType("*dynamodb.UpdateItemInput")).Return(&dynamodb.UpdateItemOutput{}, nil).Once()

		err := store.MarkClosedIfFullyPaid(context.Background(), "inv-1")

		assert.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Already Closed Or Unpaid Is A No-op", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, InvoicesTableName: "invoices"}

		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{}).Once()

		err := store.MarkClosedIfFullyPaid(context.Background(), "inv-1")

		assert.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Update Fails", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := &Store{Client: mockClient, InvoicesTableName: "invoices"}

		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()

		err := store.MarkClosedIfFullyPaid(context.Background(), "inv-1")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to close invoice inv-1")
		mockClient.AssertExpectations(t)
	})
}
