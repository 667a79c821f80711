package entity

import "strings"

const (
	MaxAccounts      = 4
	MaxProductTitles = 10
)

type Account struct {
	Label          string
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	Active         bool
	Order          int
	LastUsedAt     int64
	MerchantSite   string
	ProductTitles  []string
}

// Eligible reports whether the account may be selected by the rotator.
func (a Account) Eligible() bool {
	return a.Active && strings.TrimSpace(a.SecretKey) != "" && strings.TrimSpace(a.PublishableKey) != ""
}

// WebhookEligible reports whether the account may be tried for webhook signature verification.
func (a Account) WebhookEligible() bool {
	return a.Eligible() && strings.TrimSpace(a.WebhookSecret) != ""
}

type ShopifySettings struct {
	ShopDomain      string
	AdminToken      string
	StorefrontToken string
	APIVersion      string
}

type CheckoutConfig struct {
	Accounts        []Account
	DefaultCurrency string
	CheckoutDomain  string
	Shopify         ShopifySettings
	UpdatedAt       int64
}

// ConfigPatch carries a merge write: nil fields are left untouched.
type ConfigPatch struct {
	Accounts        []Account
	DefaultCurrency *string
	CheckoutDomain  *string
	Shopify         *ShopifySettings
}

// Apply merges the patch into cfg.
func (p *ConfigPatch) Apply(cfg *CheckoutConfig) {
	if p == nil || cfg == nil {
		return
	}
	if p.Accounts != nil {
		cfg.Accounts = CloneAccounts(p.Accounts)
	}
	if p.DefaultCurrency != nil {
		cfg.DefaultCurrency = *p.DefaultCurrency
	}
	if p.CheckoutDomain != nil {
		cfg.CheckoutDomain = *p.CheckoutDomain
	}
	if p.Shopify != nil {
		cfg.Shopify = *p.Shopify
	}
}

func CloneAccounts(src []Account) []Account {
	if src == nil {
		return nil
	}
	dst := make([]Account, len(src))
	for i, a := range src {
		dst[i] = a
		if a.ProductTitles != nil {
			dst[i].ProductTitles = append([]string(nil), a.ProductTitles...)
		}
	}
	return dst
}
