package provider

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

const (
	EventPaymentIntentSucceeded     = "payment_intent.succeeded"
	EventPaymentIntentPaymentFailed = "payment_intent.payment_failed"
)

var ErrSignatureMismatch = errors.New("webhook signature does not match")

type Address struct {
	Line1      string
	Line2      string
	City       string
	PostalCode string
	State      string
	Country    string
}

type CustomerInput struct {
	Email          string
	Name           string
	Phone          string
	Address        *Address
	Metadata       map[string]string
	IdempotencyKey string
}

type Shipping struct {
	Name    string
	Phone   string
	Address Address
}

type PaymentIntentInput struct {
	AmountCents               int64
	Currency                  string
	CustomerID                string
	Description               string
	ReceiptEmail              string
	StatementDescriptorSuffix string
	RequestThreeDSecure       string
	Shipping                  *Shipping
	Metadata                  map[string]string
}

type PaymentIntentOutput struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Currency     string
}

type PaymentIntentEvent struct {
	ID           string
	AmountCents  int64
	Currency     string
	ReceiptEmail string
	CustomerID   string
	Metadata     map[string]string
}

type WebhookEvent struct {
	ID            string
	Type          string
	PaymentIntent *PaymentIntentEvent
}

// PaymentClient is bound to a single account's secret key.
type PaymentClient interface {
	FindCustomerByEmail(ctx context.Context, email string) (string, error)
	CreateCustomer(ctx context.Context, input *CustomerInput) (string, error)
	CreatePaymentIntent(ctx context.Context, input *PaymentIntentInput) (*PaymentIntentOutput, error)
}

type ClientFactory interface {
	ForAccount(account entity.Account) PaymentClient
}

type WebhookVerifier interface {
	Verify(payload []byte, signature string, secret string) (*WebhookEvent, error)
}
