package entity

import "time"

type Transaction struct {
	ID string

	PaymentIntentID string
	AccountLabel    string

	AmountCents int64
	Currency    string
	Status      string

	Email        string
	CustomerName string

	OrderID     string
	OrderNumber string
	SessionID   string

	Date      string
	CreatedAt time.Time
}
