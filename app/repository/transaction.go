package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

var ErrTransactionAlreadyExists = errors.New("transaction already exists")

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Append(ctx context.Context, txn *entity.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, payment_intent_id, account_label, amount_cents, currency, status,
			email, customer_name, order_id, order_number, session_id, date, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		txn.ID,
		txn.PaymentIntentID,
		txn.AccountLabel,
		txn.AmountCents,
		txn.Currency,
		txn.Status,
		nullableString(txn.Email),
		nullableString(txn.CustomerName),
		nullableString(txn.OrderID),
		nullableString(txn.OrderNumber),
		txn.SessionID,
		txn.Date,
		txn.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrTransactionAlreadyExists
		}
		return err
	}
	return nil
}

// ListByDate returns the transactions of one UTC day (YYYY-MM-DD), newest first.
func (r *TransactionRepository) ListByDate(ctx context.Context, date string, limit int32) ([]*entity.Transaction, error) {
	query := `
		SELECT id, payment_intent_id, account_label, amount_cents, currency, status,
			email, customer_name, order_id, order_number, session_id, date, created_at
		FROM transactions
		WHERE date = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, date, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := make([]*entity.Transaction, 0)
	for rows.Next() {
		item, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return txns, nil
}

func scanTransaction(scan rowScanner) (*entity.Transaction, error) {
	var email, customerName, orderID, orderNumber sql.NullString

	txn := &entity.Transaction{}
	err := scan.Scan(
		&txn.ID,
		&txn.PaymentIntentID,
		&txn.AccountLabel,
		&txn.AmountCents,
		&txn.Currency,
		&txn.Status,
		&email,
		&customerName,
		&orderID,
		&orderNumber,
		&txn.SessionID,
		&txn.Date,
		&txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Email = email.String
	txn.CustomerName = customerName.String
	txn.OrderID = orderID.String
	txn.OrderNumber = orderNumber.String
	return txn, nil
}
