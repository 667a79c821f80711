package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
)

type saveConfigRequest interface {
	GetCheckoutDomain() string
	GetDefaultCurrency() string
	GetShopify() *types.ShopifyPayload
	GetStripeAccounts() []types.AccountPayload
}

func (s *CheckoutService) GetConfig(ctx context.Context) (*entity.CheckoutConfig, error) {
	return s.loadConfig(ctx)
}

// SaveConfig replaces the account list and the storefront settings. Secrets left blank keep the
// stored value of the account with the same label, so a masked read can be written back.
func (s *CheckoutService) SaveConfig(ctx context.Context, req saveConfigRequest) (*entity.CheckoutConfig, error) {
	shop := req.GetShopify()
	if shop == nil || strings.TrimSpace(shop.ShopDomain) == "" || strings.TrimSpace(shop.AdminToken) == "" {
		return nil, fmt.Errorf("%w: shopify domain and admin token are required", ErrInvalidRequest)
	}

	current, err := s.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]entity.Account, len(current.Accounts))
	for _, acc := range current.Accounts {
		existing[acc.Label] = acc
	}

	payloads := req.GetStripeAccounts()
	if len(payloads) > entity.MaxAccounts {
		payloads = payloads[:entity.MaxAccounts]
	}
	accounts := make([]entity.Account, 0, len(payloads))
	for idx, payload := range payloads {
		label := strings.TrimSpace(payload.Label)
		if label == "" {
			label = fmt.Sprintf("Account %d", idx+1)
		}
		titles := payload.ProductTitles
		if len(titles) > entity.MaxProductTitles {
			titles = titles[:entity.MaxProductTitles]
		}

		account := entity.Account{
			Label:          label,
			SecretKey:      strings.TrimSpace(payload.SecretKey),
			PublishableKey: strings.TrimSpace(payload.PublishableKey),
			WebhookSecret:  strings.TrimSpace(payload.WebhookSecret),
			Active:         payload.Active,
			Order:          payload.Order,
			MerchantSite:   strings.TrimSpace(payload.MerchantSite),
			ProductTitles:  trimTitles(titles),
		}
		if prev, ok := existing[label]; ok {
			account.LastUsedAt = prev.LastUsedAt
			if account.SecretKey == "" {
				account.SecretKey = prev.SecretKey
			}
			if account.WebhookSecret == "" {
				account.WebhookSecret = prev.WebhookSecret
			}
		}
		accounts = append(accounts, account)
	}

	currency := strings.ToLower(firstNonEmpty(req.GetDefaultCurrency(), defaultCurrency))
	domain := strings.TrimSpace(req.GetCheckoutDomain())
	patch := &entity.ConfigPatch{
		Accounts:        accounts,
		DefaultCurrency: &currency,
		CheckoutDomain:  &domain,
		Shopify: &entity.ShopifySettings{
			ShopDomain:      strings.TrimSpace(shop.ShopDomain),
			AdminToken:      strings.TrimSpace(shop.AdminToken),
			StorefrontToken: strings.TrimSpace(shop.StorefrontToken),
			APIVersion:      strings.TrimSpace(shop.APIVersion),
		},
	}
	if err := s.configs.Save(ctx, patch); err != nil {
		return nil, err
	}

	patch.Apply(current)
	s.logger.WithField("accounts", len(accounts)).Info("checkout config saved")
	return current, nil
}

func trimTitles(titles []string) []string {
	out := make([]string, 0, len(titles))
	for _, title := range titles {
		if title = strings.TrimSpace(title); title != "" {
			out = append(out, title)
		}
	}
	return out
}
