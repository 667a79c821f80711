package firestore

import (
	"context"
	"strings"
	"time"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type transactionDoc struct {
	PaymentIntentID string    `firestore:"paymentIntentId"`
	AccountLabel    string    `firestore:"stripeAccount"`
	AmountCents     int64     `firestore:"amount"`
	Currency        string    `firestore:"currency"`
	Status          string    `firestore:"status"`
	Email           string    `firestore:"customerEmail"`
	CustomerName    string    `firestore:"customerName"`
	OrderID         string    `firestore:"orderId"`
	OrderNumber     string    `firestore:"orderNumber"`
	SessionID       string    `firestore:"sessionId"`
	Date            string    `firestore:"date"`
	CreatedAt       time.Time `firestore:"createdTimestamp"`
}

type TransactionStore struct {
	client *gcfirestore.Client
}

func NewTransactionStore(client *gcfirestore.Client) *TransactionStore {
	return &TransactionStore{client: client}
}

// Append creates transactions/{paymentIntentId}; a second record for the same intent is reported as a duplicate.
func (s *TransactionStore) Append(ctx context.Context, txn *entity.Transaction) error {
	collection := s.client.Collection(transactionCollection)
	ref := collection.NewDoc()
	if id := transactionDocID(txn); id != "" {
		ref = collection.Doc(id)
	}

	_, err := ref.Create(ctx, transactionToDoc(txn))
	if status.Code(err) == codes.AlreadyExists {
		return repository.ErrTransactionAlreadyExists
	}
	if err != nil {
		return err
	}
	txn.ID = ref.ID
	return nil
}

func transactionDocID(txn *entity.Transaction) string {
	if id := strings.TrimSpace(txn.PaymentIntentID); id != "" {
		return id
	}
	return txn.ID
}

func (s *TransactionStore) ListByDate(ctx context.Context, date string, limit int32) ([]*entity.Transaction, error) {
	snaps, err := s.client.Collection(transactionCollection).
		Where("date", "==", date).
		OrderBy("createdTimestamp", gcfirestore.Desc).
		Limit(int(limit)).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, err
	}

	txns := make([]*entity.Transaction, 0, len(snaps))
	for _, snap := range snaps {
		var doc transactionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		txn := transactionFromDoc(doc)
		txn.ID = snap.Ref.ID
		txns = append(txns, txn)
	}
	return txns, nil
}

func transactionToDoc(txn *entity.Transaction) transactionDoc {
	return transactionDoc{
		PaymentIntentID: txn.PaymentIntentID,
		AccountLabel:    txn.AccountLabel,
		AmountCents:     txn.AmountCents,
		Currency:        txn.Currency,
		Status:          txn.Status,
		Email:           txn.Email,
		CustomerName:    txn.CustomerName,
		OrderID:         txn.OrderID,
		OrderNumber:     txn.OrderNumber,
		SessionID:       txn.SessionID,
		Date:            txn.Date,
		CreatedAt:       txn.CreatedAt,
	}
}

func transactionFromDoc(doc transactionDoc) *entity.Transaction {
	return &entity.Transaction{
		PaymentIntentID: doc.PaymentIntentID,
		AccountLabel:    doc.AccountLabel,
		AmountCents:     doc.AmountCents,
		Currency:        doc.Currency,
		Status:          doc.Status,
		Email:           doc.Email,
		CustomerName:    doc.CustomerName,
		OrderID:         doc.OrderID,
		OrderNumber:     doc.OrderNumber,
		SessionID:       doc.SessionID,
		Date:            doc.Date,
		CreatedAt:       doc.CreatedAt,
	}
}
