package dynamodb

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/invoice-settlement/pkg/storage"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store implements the Storage interface using AWS DynamoDB.
type Store struct {
	Client                        DynamoDBAPI
	InvoicesTableName             string
	PaymentsTableName             string
	WebsocketConnectionsTableName string

	// Query start keys per customer page, so that page N+1 continues where page N stopped.
	mu      sync.Mutex
	cursors map[cursorKey]map[string]types.AttributeValue
}

type cursorKey struct {
	customerID string
	page       int
	size       int
	ascending  bool
}

// maxCachedCursors bounds the cursor cache; it is reset when full.
const maxCachedCursors = 4096

// New creates a new Store.
func New(client DynamoDBAPI, invoicesTable, paymentsTable, connectionsTable string) *Store {
	return &Store{
		Client:                        client,
		InvoicesTableName:             invoicesTable,
		PaymentsTableName:             paymentsTable,
		WebsocketConnectionsTableName: connectionsTable,
	}
}

// Make sure we conform to the interfaces
var (
	_ storage.Storage           = (*Store)(nil)
	_ storage.InvoiceSettler    = (*Store)(nil)
	_ storage.RunPaymentsReader = (*Store)(nil)
	_ storage.ConnectionStore   = (*Store)(nil)
)

func (s *Store) cursor(key cursorKey) (map[string]types.AttributeValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	startKey, ok := s.cursors[key]
	return startKey, ok
}

func (s *Store) rememberCursor(key cursorKey, startKey map[string]types.AttributeValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursors == nil || len(s.cursors) >= maxCachedCursors {
		s.cursors = make(map[cursorKey]map[string]types.AttributeValue)
	}
	s.cursors[key] = startKey
}
