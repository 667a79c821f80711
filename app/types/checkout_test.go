package types

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestNewCreatePaymentIntentRequestFromContextNormalizes(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/payment-intent", bytes.NewBufferString(`{"sessionId":"  sess_1 ","amountCents":5090,"customer":{"fullName":" Mario Rossi ","email":" Mario@Example.COM ","countryCode":"it"}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewCreatePaymentIntentRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetSessionId() != "sess_1" {
		t.Fatalf("expected trimmed session id, got %q", parsed.GetSessionId())
	}
	if parsed.GetCustomer().Email != "mario@example.com" {
		t.Fatalf("expected lower-cased email, got %q", parsed.GetCustomer().Email)
	}
	if parsed.GetCustomer().CountryCode != "IT" {
		t.Fatalf("expected upper-cased country, got %q", parsed.GetCustomer().CountryCode)
	}
	if parsed.GetCustomer().FullName != "Mario Rossi" {
		t.Fatalf("expected trimmed name, got %q", parsed.GetCustomer().FullName)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestCreatePaymentIntentValidate(t *testing.T) {
	req := &CreatePaymentIntentRequest{AmountCents: 100}
	if err := req.Validate(); err == nil {
		t.Fatal("expected sessionId validation error")
	}

	req = &CreatePaymentIntentRequest{SessionId: "sess_1"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected amountCents validation error")
	}

	var nilReq *CreatePaymentIntentRequest
	if nilReq.GetSessionId() != "" || nilReq.GetCustomer() != nil {
		t.Fatal("expected nil-safe getters")
	}
}

func TestNewStripeWebhookRequestFromContextKeepsRawBody(t *testing.T) {
	e := echo.New()
	raw := `{"id":"evt_1",  "type":"payment_intent.succeeded"}`
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewBufferString(raw))
	req.Header.Set("Stripe-Signature", " t=1,v1=abc ")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewStripeWebhookRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(parsed.GetPayload()) != raw {
		t.Fatalf("expected untouched payload, got %q", parsed.GetPayload())
	}
	if parsed.GetSignature() != "t=1,v1=abc" {
		t.Fatalf("unexpected signature %q", parsed.GetSignature())
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestStripeWebhookRequestValidateRequiresSignature(t *testing.T) {
	req := &StripeWebhookRequest{Payload: []byte(`{}`)}
	if err := req.Validate(); err == nil {
		t.Fatal("expected signature validation error")
	}

	req = &StripeWebhookRequest{Signature: "t=1,v1=abc"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected payload validation error")
	}
}

func TestNewSaveConfigRequestFromContextFlatPayload(t *testing.T) {
	e := echo.New()
	body := `{
		"shopifyDomain":" shop.myshopify.com ",
		"shopifyAdminToken":"shpat_1",
		"defaultCurrency":"EUR",
		"stripeAccounts":[
			{"label":" A ","secret":" sk_a ","webhook":"whsec_a","publishableKey":"pk_a","active":true},
			{"secretKey":"sk_b"},
			{"secretKey":"sk_c"},
			{"secretKey":"sk_d"},
			{"secretKey":"sk_e"}
		]
	}`
	req := httptest.NewRequest("PUT", "/internal/config", bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderOrigin, "https://checkout.example.com")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewSaveConfigRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(parsed.GetStripeAccounts()) != 4 {
		t.Fatalf("expected accounts capped at 4, got %d", len(parsed.GetStripeAccounts()))
	}
	first := parsed.GetStripeAccounts()[0]
	if first.Label != "A" || first.SecretKey != "sk_a" || first.WebhookSecret != "whsec_a" {
		t.Fatalf("unexpected first account: %+v", first)
	}
	if parsed.GetDefaultCurrency() != "eur" {
		t.Fatalf("expected lower-cased currency, got %q", parsed.GetDefaultCurrency())
	}
	if parsed.GetCheckoutDomain() != "https://checkout.example.com" {
		t.Fatalf("expected origin fallback, got %q", parsed.GetCheckoutDomain())
	}
	shop := parsed.GetShopify()
	if shop.ShopDomain != "shop.myshopify.com" || shop.APIVersion != "2024-10" {
		t.Fatalf("unexpected shopify settings: %+v", shop)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestSaveConfigValidateRequiresShopify(t *testing.T) {
	req := &SaveConfigRequest{DefaultCurrency: "eur", Shopify: &ShopifyPayload{ShopDomain: "shop"}}
	if err := req.Validate(); err == nil {
		t.Fatal("expected shopify validation error")
	}
}
