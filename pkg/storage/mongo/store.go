package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chris/invoice-settlement/pkg/models"
	"github.com/chris/invoice-settlement/pkg/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const opTimeout = 5 * time.Second

// Store implements the invoice store on MongoDB. Payments are applied inside a
// multi-document transaction, so the deployment must be a replica set.
type Store struct {
	client   *mongo.Client
	invoices *mongo.Collection
	payments *mongo.Collection
}

// New creates a Store on the given database.
func New(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		client:   client,
		invoices: db.Collection("invoices"),
		payments: db.Collection("payments"),
	}
}

var (
	_ storage.Storage           = (*Store)(nil)
	_ storage.InvoiceSettler    = (*Store)(nil)
	_ storage.RunPaymentsReader = (*Store)(nil)
)

// EnsureIndexes creates the indexes used by paging and reconciliation.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.invoices.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "open", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "open", Value: 1}, {Key: "balance", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create invoice indexes: %w", err)
	}

	_, err = s.payments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "invoice_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "run_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var inv models.Invoice
	err := s.invoices.FindOne(ctx, bson.M{"_id": invoiceID}).Decode(&inv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("invoice with ID %s: %w", invoiceID, storage.ErrInvoiceNotFound)
		}
		return nil, fmt.Errorf("failed to get invoice from MongoDB: %w", err)
	}
	return &inv, nil
}

func (s *Store) QueryOpenInvoices(ctx context.Context, customerID string, req storage.PageRequest) (*storage.Page, error) {
	if req.Size <= 0 {
		return nil, fmt.Errorf("invalid page size %d", req.Size)
	}
	if req.Page < 0 {
		return nil, fmt.Errorf("invalid page index %d", req.Page)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := s.invoices.Find(ctx, openInvoicesFilter(customerID), pageOptions(req))
	if err != nil {
		return nil, fmt.Errorf("failed to query open invoices: %w", err)
	}
	defer cursor.Close(ctx)

	invoices := []models.Invoice{}
	if err := cursor.All(ctx, &invoices); err != nil {
		return nil, fmt.Errorf("failed to decode invoices: %w", err)
	}

	// One extra document is requested to learn whether another page exists.
	hasMore := len(invoices) > req.Size
	if hasMore {
		invoices = invoices[:req.Size]
	}
	return &storage.Page{Invoices: invoices, HasMore: hasMore}, nil
}

func (s *Store) ApplyPayment(ctx context.Context, cmd storage.PaymentCommand) error {
	_, err := s.executePayment(ctx, cmd, false)
	return err
}

func (s *Store) SettleInvoice(ctx context.Context, cmd storage.PaymentCommand) (bool, error) {
	return s.executePayment(ctx, cmd, cmd.PaysInFull())
}

func (s *Store) executePayment(ctx context.Context, cmd storage.PaymentCommand, closeInvoice bool) (bool, error) {
	if cmd.Amount <= 0 {
		return false, storage.ErrInvalidAmount
	}
	if cmd.Amount > cmd.ExpectedBalance {
		return false, fmt.Errorf("payment of %d exceeds balance %d: %w", cmd.Amount, cmd.ExpectedBalance, storage.ErrInvalidAmount)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	session, err := s.client.StartSession()
	if err != nil {
		return false, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	now := time.Now().UTC()
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// The record goes first: its _id is unique per run and invoice, so a replay stops here.
		record := models.PaymentRecord{
			EntryID:    models.PaymentEntryID(cmd.RunID, cmd.InvoiceID),
			RunID:      cmd.RunID,
			InvoiceID:  cmd.InvoiceID,
			CustomerID: cmd.CustomerID,
			Amount:     cmd.Amount,
			Closed:     closeInvoice,
			Timestamp:  now,
		}
		if _, err := s.payments.InsertOne(sc, record); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, fmt.Errorf("invoice %s in run %s: %w", cmd.InvoiceID, cmd.RunID, storage.ErrAlreadyApplied)
			}
			return nil, fmt.Errorf("failed to insert payment record: %w", err)
		}

		res, err := s.invoices.UpdateOne(sc, paymentFilter(cmd), paymentUpdate(cmd, closeInvoice, now))
		if err != nil {
			return nil, fmt.Errorf("failed to update invoice: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, fmt.Errorf("payment to invoice %s rejected: %w", cmd.InvoiceID, storage.ErrInvoiceChanged)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvoiceChanged) || errors.Is(err, storage.ErrAlreadyApplied) {
			return false, err
		}
		return false, fmt.Errorf("failed to execute payment transaction: %w", err)
	}

	return closeInvoice, nil
}

func (s *Store) MarkClosedIfFullyPaid(ctx context.Context, invoiceID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	_, err := s.invoices.UpdateOne(ctx,
		bson.M{"_id": invoiceID, "open": true, "balance": int64(0)},
		bson.M{
			"$set": bson.M{"open": false, "closed_at": now, "updated_at": now},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to close invoice %s: %w", invoiceID, err)
	}
	return nil
}

func (s *Store) ListPaidOpenInvoices(ctx context.Context, limit int32) ([]models.Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.invoices.Find(ctx, bson.M{"open": true, "balance": int64(0)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query paid open invoices: %w", err)
	}
	defer cursor.Close(ctx)

	var invoices []models.Invoice
	if err := cursor.All(ctx, &invoices); err != nil {
		return nil, fmt.Errorf("failed to decode paid open invoices: %w", err)
	}
	return invoices, nil
}

// ListRunPayments returns the payments written by a run.
func (s *Store) ListRunPayments(ctx context.Context, runID string) ([]models.PaymentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := s.payments.Find(ctx, bson.M{"run_id": runID}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query run payments: %w", err)
	}
	defer cursor.Close(ctx)

	var payments []models.PaymentRecord
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("failed to decode run payments: %w", err)
	}
	return payments, nil
}

func openInvoicesFilter(customerID string) bson.M {
	return bson.M{"customer_id": customerID, "open": true}
}

func pageOptions(req storage.PageRequest) *options.FindOptions {
	order := -1
	if req.Ascending {
		order = 1
	}
	return options.Find().
		SetSort(bson.D{{Key: "created_at", Value: order}, {Key: "_id", Value: 1}}).
		SetSkip(int64(req.Page * req.Size)).
		SetLimit(int64(req.Size + 1))
}

func paymentFilter(cmd storage.PaymentCommand) bson.M {
	return bson.M{
		"_id":     cmd.InvoiceID,
		"open":    true,
		"version": cmd.ExpectedVersion,
		"balance": cmd.ExpectedBalance,
	}
}

func paymentUpdate(cmd storage.PaymentCommand, closeInvoice bool, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if closeInvoice {
		set["open"] = false
		set["closed_at"] = now
	}
	return bson.M{
		"$inc": bson.M{"paid": cmd.Amount, "balance": -cmd.Amount, "version": 1},
		"$set": set,
	}
}
