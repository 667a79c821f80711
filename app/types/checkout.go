package types

import (
	"errors"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	stripeSignatureHeader    = "Stripe-Signature"
	providerSignatureHeader  = "X-Provider-Signature"
	defaultShopifyAPIVersion = "2024-10"
	maxAccounts              = 4
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type CustomerPayload struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	PostalCode  string `json:"postalCode"`
	Province    string `json:"province"`
	CountryCode string `json:"countryCode"`
}

type CreatePaymentIntentRequest struct {
	SessionId   string           `json:"sessionId"`
	AmountCents int64            `json:"amountCents"`
	Customer    *CustomerPayload `json:"customer"`
}

func (r *CreatePaymentIntentRequest) GetSessionId() string {
	if r == nil {
		return ""
	}
	return r.SessionId
}

func (r *CreatePaymentIntentRequest) GetAmountCents() int64 {
	if r == nil {
		return 0
	}
	return r.AmountCents
}

func (r *CreatePaymentIntentRequest) GetCustomer() *CustomerPayload {
	if r == nil {
		return nil
	}
	return r.Customer
}

type CreatePaymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PublishableKey  string `json:"publishableKey"`
	AccountUsed     string `json:"accountUsed"`
	PaymentIntentId string `json:"paymentIntentId"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency"`
}

func NewCreatePaymentIntentRequestFromContext(ctx echo.Context) (*CreatePaymentIntentRequest, error) {
	var body CreatePaymentIntentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.SessionId = strings.TrimSpace(body.SessionId)
	if c := body.Customer; c != nil {
		c.FullName = strings.TrimSpace(c.FullName)
		c.Email = strings.ToLower(strings.TrimSpace(c.Email))
		c.Phone = strings.TrimSpace(c.Phone)
		c.Address1 = strings.TrimSpace(c.Address1)
		c.Address2 = strings.TrimSpace(c.Address2)
		c.City = strings.TrimSpace(c.City)
		c.PostalCode = strings.TrimSpace(c.PostalCode)
		c.Province = strings.TrimSpace(c.Province)
		c.CountryCode = strings.ToUpper(strings.TrimSpace(c.CountryCode))
	}

	return &body, nil
}

func (r *CreatePaymentIntentRequest) Validate() error {
	if r.GetSessionId() == "" {
		return errors.New("sessionId is required")
	}
	if r.GetAmountCents() <= 0 {
		return errors.New("amountCents must be > 0")
	}
	return nil
}

type StripeWebhookRequest struct {
	Payload   []byte
	Signature string
}

func (r *StripeWebhookRequest) GetPayload() []byte {
	if r == nil {
		return nil
	}
	return r.Payload
}

func (r *StripeWebhookRequest) GetSignature() string {
	if r == nil {
		return ""
	}
	return r.Signature
}

// NewStripeWebhookRequestFromContext keeps the body byte-for-byte; signatures are computed over it.
func NewStripeWebhookRequestFromContext(ctx echo.Context) (*StripeWebhookRequest, error) {
	signature := strings.TrimSpace(ctx.Request().Header.Get(stripeSignatureHeader))
	if signature == "" {
		signature = strings.TrimSpace(ctx.Request().Header.Get(providerSignatureHeader))
	}

	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &StripeWebhookRequest{
		Payload:   rawBody,
		Signature: signature,
	}, nil
}

func (r *StripeWebhookRequest) Validate() error {
	if r.GetSignature() == "" {
		return errors.New("missing Stripe-Signature header")
	}
	if len(r.GetPayload()) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
	Account  string `json:"account,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

type RotationStatusResponse struct {
	Account        string `json:"account"`
	AccountOrder   int    `json:"accountOrder"`
	Slot           int    `json:"slot"`
	TotalSlots     int    `json:"totalSlots"`
	NextRotation   string `json:"nextRotation"`
	NextRotationMs int64  `json:"nextRotationMs"`
	WindowSeconds  int64  `json:"windowSeconds"`
}

type AccountStats struct {
	TotalEur         float64 `json:"totalEur"`
	TotalCents       int64   `json:"totalCents"`
	TransactionCount int     `json:"transactionCount"`
	Currency         string  `json:"currency"`
}

type AccountStatsEntry struct {
	Label             string       `json:"label"`
	Order             int          `json:"order"`
	Active            bool         `json:"active"`
	IsCurrentlyActive bool         `json:"isCurrentlyActive"`
	Stats             AccountStats `json:"stats"`
}

type StatsRotation struct {
	CurrentAccount string `json:"currentAccount"`
	SlotNumber     int    `json:"slotNumber"`
	TotalSlots     int    `json:"totalSlots"`
	NextRotation   string `json:"nextRotation"`
}

type StatsTotals struct {
	TotalEur         float64 `json:"totalEur"`
	TotalCents       int64   `json:"totalCents"`
	TransactionCount int     `json:"transactionCount"`
	Currency         string  `json:"currency"`
}

type TransactionSummary struct {
	Id           string `json:"id"`
	AmountCents  int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	Created      int64  `json:"created"`
	Email        string `json:"email"`
	CustomerName string `json:"customerName"`
	OrderNumber  string `json:"orderNumber"`
	Account      string `json:"account"`
}

type StatsResponse struct {
	Date         string               `json:"date"`
	Rotation     StatsRotation        `json:"rotation"`
	Accounts     []AccountStatsEntry  `json:"accounts"`
	Totals       StatsTotals          `json:"totals"`
	Transactions []TransactionSummary `json:"transactions"`
}

type AccountPayload struct {
	Label          string   `json:"label"`
	SecretKey      string   `json:"secretKey"`
	Secret         string   `json:"secret,omitempty"`
	PublishableKey string   `json:"publishableKey"`
	WebhookSecret  string   `json:"webhookSecret"`
	Webhook        string   `json:"webhook,omitempty"`
	Active         bool     `json:"active"`
	Order          int      `json:"order"`
	LastUsedAt     int64    `json:"lastUsedAt,omitempty"`
	MerchantSite   string   `json:"merchantSite"`
	ProductTitles  []string `json:"productTitles,omitempty"`
}

type ShopifyPayload struct {
	ShopDomain      string `json:"shopDomain"`
	AdminToken      string `json:"adminToken"`
	StorefrontToken string `json:"storefrontToken"`
	APIVersion      string `json:"apiVersion"`
}

type ConfigResponse struct {
	CheckoutDomain  string           `json:"checkoutDomain"`
	DefaultCurrency string           `json:"defaultCurrency"`
	Shopify         ShopifyPayload   `json:"shopify"`
	StripeAccounts  []AccountPayload `json:"stripeAccounts"`
	UpdatedAt       int64            `json:"updatedAt,omitempty"`
}

// SaveConfigRequest accepts both the flat onboarding payload and the nested shopify object.
type SaveConfigRequest struct {
	CheckoutDomain         string           `json:"checkoutDomain"`
	DefaultCurrency        string           `json:"defaultCurrency"`
	ShopifyDomain          string           `json:"shopifyDomain"`
	ShopifyAdminToken      string           `json:"shopifyAdminToken"`
	ShopifyStorefrontToken string           `json:"shopifyStorefrontToken"`
	Shopify                *ShopifyPayload  `json:"shopify,omitempty"`
	StripeAccounts         []AccountPayload `json:"stripeAccounts"`
}

func (r *SaveConfigRequest) GetCheckoutDomain() string {
	if r == nil {
		return ""
	}
	return r.CheckoutDomain
}

func (r *SaveConfigRequest) GetDefaultCurrency() string {
	if r == nil {
		return ""
	}
	return r.DefaultCurrency
}

func (r *SaveConfigRequest) GetShopify() *ShopifyPayload {
	if r == nil {
		return nil
	}
	return r.Shopify
}

func (r *SaveConfigRequest) GetStripeAccounts() []AccountPayload {
	if r == nil {
		return nil
	}
	return r.StripeAccounts
}

type SaveConfigResponse struct {
	Success             bool   `json:"success"`
	CheckoutDomain      string `json:"checkoutDomain"`
	DefaultCurrency     string `json:"defaultCurrency"`
	ShopDomain          string `json:"shopDomain"`
	APIVersion          string `json:"apiVersion"`
	HasAdminToken       bool   `json:"hasAdminToken"`
	HasStorefrontToken  bool   `json:"hasStorefrontToken"`
	StripeAccountsCount int    `json:"stripeAccountsCount"`
}

func NewSaveConfigRequestFromContext(ctx echo.Context) (*SaveConfigRequest, error) {
	var body SaveConfigRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	shop := ShopifyPayload{}
	if strings.TrimSpace(body.ShopifyDomain) != "" || strings.TrimSpace(body.ShopifyAdminToken) != "" {
		shop.ShopDomain = body.ShopifyDomain
		shop.AdminToken = body.ShopifyAdminToken
		shop.StorefrontToken = body.ShopifyStorefrontToken
	} else if body.Shopify != nil {
		shop = *body.Shopify
	}
	shop.ShopDomain = strings.TrimSpace(shop.ShopDomain)
	shop.AdminToken = strings.TrimSpace(shop.AdminToken)
	shop.StorefrontToken = strings.TrimSpace(shop.StorefrontToken)
	shop.APIVersion = strings.TrimSpace(shop.APIVersion)
	if shop.APIVersion == "" {
		shop.APIVersion = defaultShopifyAPIVersion
	}
	body.Shopify = &shop

	body.CheckoutDomain = strings.TrimSpace(body.CheckoutDomain)
	if body.CheckoutDomain == "" {
		body.CheckoutDomain = strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderOrigin))
	}
	body.DefaultCurrency = strings.ToLower(strings.TrimSpace(body.DefaultCurrency))
	if body.DefaultCurrency == "" {
		body.DefaultCurrency = "eur"
	}

	if len(body.StripeAccounts) > maxAccounts {
		body.StripeAccounts = body.StripeAccounts[:maxAccounts]
	}
	for i := range body.StripeAccounts {
		acc := &body.StripeAccounts[i]
		acc.Label = strings.TrimSpace(acc.Label)
		acc.SecretKey = strings.TrimSpace(firstNonEmpty(acc.SecretKey, acc.Secret))
		acc.WebhookSecret = strings.TrimSpace(firstNonEmpty(acc.WebhookSecret, acc.Webhook))
		acc.PublishableKey = strings.TrimSpace(acc.PublishableKey)
		acc.MerchantSite = strings.TrimSpace(acc.MerchantSite)
		acc.Secret = ""
		acc.Webhook = ""
	}

	return &body, nil
}

func (r *SaveConfigRequest) Validate() error {
	shop := r.GetShopify()
	if shop == nil || shop.ShopDomain == "" || shop.AdminToken == "" {
		return errors.New("shopifyDomain and shopifyAdminToken are required")
	}
	if len(r.GetDefaultCurrency()) != 3 {
		return errors.New("defaultCurrency must be 3 letters")
	}
	for _, acc := range r.GetStripeAccounts() {
		if len(acc.ProductTitles) > 10 {
			return errors.New("productTitles accepts at most 10 entries")
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
