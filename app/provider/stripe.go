package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

type StripeConfig struct {
	APIBaseURL                string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

// StripeFactory builds per-account API clients that share one HTTP backend.
type StripeFactory struct {
	backends *stripe.Backends
}

func NewStripeFactory(cfg StripeConfig) *StripeFactory {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	backendCfg := &stripe.BackendConfig{HTTPClient: httpClient}
	if base := strings.TrimSpace(cfg.APIBaseURL); base != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(base, "/"))
	}

	return &StripeFactory{backends: stripe.NewBackendsWithConfig(backendCfg)}
}

func (f *StripeFactory) ForAccount(account entity.Account) PaymentClient {
	api := &client.API{}
	api.Init(account.SecretKey, f.backends)
	return &stripeClient{api: api}
}

type stripeClient struct {
	api *client.API
}

func (c *stripeClient) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := c.api.Customers.List(params)
	for iter.Next() {
		if cust := iter.Customer(); cust != nil && cust.ID != "" {
			return cust.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("stripe list customers: %w", err)
	}
	return "", nil
}

func (c *stripeClient) CreateCustomer(ctx context.Context, input *CustomerInput) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(input.Email),
	}
	params.Context = ctx
	if input.Name != "" {
		params.Name = stripe.String(input.Name)
	}
	if input.Phone != "" {
		params.Phone = stripe.String(input.Phone)
	}
	if input.Address != nil {
		params.Address = addressParams(input.Address)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}

	cust, err := c.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return cust.ID, nil
}

func (c *stripeClient) CreatePaymentIntent(ctx context.Context, input *PaymentIntentInput) (*PaymentIntentOutput, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(input.AmountCents),
		Currency:           stripe.String(strings.ToLower(input.Currency)),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if input.CustomerID != "" {
		params.Customer = stripe.String(input.CustomerID)
	}
	if input.Description != "" {
		params.Description = stripe.String(input.Description)
	}
	if input.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(input.ReceiptEmail)
	}
	if input.StatementDescriptorSuffix != "" {
		params.StatementDescriptorSuffix = stripe.String(input.StatementDescriptorSuffix)
	}
	if input.RequestThreeDSecure != "" {
		params.PaymentMethodOptions = &stripe.PaymentIntentPaymentMethodOptionsParams{
			Card: &stripe.PaymentIntentPaymentMethodOptionsCardParams{
				RequestThreeDSecure: stripe.String(input.RequestThreeDSecure),
			},
		}
	}
	if input.Shipping != nil {
		params.Shipping = &stripe.ShippingDetailsParams{
			Name:    stripe.String(input.Shipping.Name),
			Address: addressParams(&input.Shipping.Address),
		}
		if input.Shipping.Phone != "" {
			params.Shipping.Phone = stripe.String(input.Shipping.Phone)
		}
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}

	return &PaymentIntentOutput{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

func addressParams(a *Address) *stripe.AddressParams {
	params := &stripe.AddressParams{Line1: stripe.String(a.Line1)}
	if a.Line2 != "" {
		params.Line2 = stripe.String(a.Line2)
	}
	if a.City != "" {
		params.City = stripe.String(a.City)
	}
	if a.PostalCode != "" {
		params.PostalCode = stripe.String(a.PostalCode)
	}
	if a.State != "" {
		params.State = stripe.String(a.State)
	}
	if a.Country != "" {
		params.Country = stripe.String(a.Country)
	}
	return params
}

// CustomerIdempotencyKey is stable per (account, email) so concurrent creations collapse into one customer.
func CustomerIdempotencyKey(accountLabel, email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(accountLabel)) + "|" + strings.ToLower(strings.TrimSpace(email))))
	return "customer-" + hex.EncodeToString(sum[:16])
}

type StripeVerifier struct {
	tolerance time.Duration
}

func NewStripeVerifier(toleranceSeconds int64) *StripeVerifier {
	if toleranceSeconds <= 0 {
		toleranceSeconds = 300
	}
	return &StripeVerifier{tolerance: time.Duration(toleranceSeconds) * time.Second}
}

func (v *StripeVerifier) Verify(payload []byte, signature string, secret string) (*WebhookEvent, error) {
	if strings.TrimSpace(signature) == "" || strings.TrimSpace(secret) == "" {
		return nil, ErrSignatureMismatch
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, signature, secret, v.tolerance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode stripe event: %w", err)
	}

	result := &WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		if event.Data == nil || len(event.Data.Raw) == 0 {
			return result, nil
		}
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		item := &PaymentIntentEvent{
			ID:           pi.ID,
			AmountCents:  pi.Amount,
			Currency:     strings.ToUpper(string(pi.Currency)),
			ReceiptEmail: pi.ReceiptEmail,
			Metadata:     pi.Metadata,
		}
		if pi.Customer != nil {
			item.CustomerID = pi.Customer.ID
		}
		result.PaymentIntent = item
	}

	return result, nil
}
