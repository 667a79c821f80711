package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/rotation"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
)

const statsCurrency = "EUR"

func PaymentIntentToResponse(item *entity.PaymentIntentResult) *types.CreatePaymentIntentResponse {
	if item == nil {
		return nil
	}

	return &types.CreatePaymentIntentResponse{
		ClientSecret:    item.ClientSecret,
		PublishableKey:  item.PublishableKey,
		AccountUsed:     item.AccountLabel,
		PaymentIntentId: item.PaymentIntentID,
		AmountCents:     item.AmountCents,
		Currency:        item.Currency,
	}
}

func WebhookResultToResponse(item *entity.WebhookResult) *types.WebhookResponse {
	if item == nil {
		return &types.WebhookResponse{Received: true}
	}

	return &types.WebhookResponse{
		Received: true,
		Outcome:  string(item.Outcome),
		Account:  item.AccountLabel,
		Message:  item.Message,
	}
}

func RotationStatusToResponse(status *rotation.Status, window time.Duration) *types.RotationStatusResponse {
	if status == nil {
		return nil
	}

	return &types.RotationStatusResponse{
		Account:        status.Account.Label,
		AccountOrder:   status.Account.Order,
		Slot:           status.Slot,
		TotalSlots:     status.TotalSlots,
		NextRotation:   status.NextRotation.UTC().Format(time.RFC3339),
		NextRotationMs: status.NextRotation.UnixMilli(),
		WindowSeconds:  int64(window / time.Second),
	}
}

func StatsToResponse(stats *entity.DailyStats) *types.StatsResponse {
	if stats == nil {
		return nil
	}

	accounts := make([]types.AccountStatsEntry, 0, len(stats.Accounts))
	for _, item := range stats.Accounts {
		accounts = append(accounts, types.AccountStatsEntry{
			Label:             item.Account.Label,
			Order:             item.Account.Order,
			Active:            item.Account.Active,
			IsCurrentlyActive: item.IsCurrent,
			Stats: types.AccountStats{
				TotalEur:         centsToUnits(item.TotalCents),
				TotalCents:       item.TotalCents,
				TransactionCount: item.TransactionCount,
				Currency:         statsCurrency,
			},
		})
	}

	return &types.StatsResponse{
		Date: stats.GeneratedAt.UTC().Format(time.RFC3339),
		Rotation: types.StatsRotation{
			CurrentAccount: stats.CurrentAccount,
			SlotNumber:     stats.Slot,
			TotalSlots:     stats.TotalSlots,
			NextRotation:   stats.NextRotation.UTC().Format(time.RFC3339),
		},
		Accounts: accounts,
		Totals: types.StatsTotals{
			TotalEur:         centsToUnits(stats.TotalCents),
			TotalCents:       stats.TotalCents,
			TransactionCount: stats.TransactionCount,
			Currency:         statsCurrency,
		},
		Transactions: TransactionsToSummary(stats.Transactions),
	}
}

func TransactionsToSummary(items []*entity.Transaction) []types.TransactionSummary {
	result := make([]types.TransactionSummary, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		result = append(result, types.TransactionSummary{
			Id:           item.PaymentIntentID,
			AmountCents:  item.AmountCents,
			Currency:     item.Currency,
			Status:       item.Status,
			Created:      item.CreatedAt.UnixMilli(),
			Email:        item.Email,
			CustomerName: item.CustomerName,
			OrderNumber:  item.OrderNumber,
			Account:      item.AccountLabel,
		})
	}
	return result
}

// ConfigToResponse never returns account secrets.
func ConfigToResponse(cfg *entity.CheckoutConfig) *types.ConfigResponse {
	if cfg == nil {
		return &types.ConfigResponse{StripeAccounts: []types.AccountPayload{}}
	}

	accounts := make([]types.AccountPayload, 0, len(cfg.Accounts))
	for _, acc := range cfg.Accounts {
		accounts = append(accounts, types.AccountPayload{
			Label:          acc.Label,
			PublishableKey: acc.PublishableKey,
			Active:         acc.Active,
			Order:          acc.Order,
			LastUsedAt:     acc.LastUsedAt,
			MerchantSite:   acc.MerchantSite,
			ProductTitles:  cloneStrings(acc.ProductTitles),
		})
	}

	return &types.ConfigResponse{
		CheckoutDomain:  cfg.CheckoutDomain,
		DefaultCurrency: cfg.DefaultCurrency,
		Shopify: types.ShopifyPayload{
			ShopDomain: cfg.Shopify.ShopDomain,
			APIVersion: cfg.Shopify.APIVersion,
		},
		StripeAccounts: accounts,
		UpdatedAt:      cfg.UpdatedAt,
	}
}

func SavedConfigToResponse(cfg *entity.CheckoutConfig) *types.SaveConfigResponse {
	if cfg == nil {
		return &types.SaveConfigResponse{Success: true}
	}

	return &types.SaveConfigResponse{
		Success:             true,
		CheckoutDomain:      cfg.CheckoutDomain,
		DefaultCurrency:     cfg.DefaultCurrency,
		ShopDomain:          cfg.Shopify.ShopDomain,
		APIVersion:          cfg.Shopify.APIVersion,
		HasAdminToken:       cfg.Shopify.AdminToken != "",
		HasStorefrontToken:  cfg.Shopify.StorefrontToken != "",
		StripeAccountsCount: len(cfg.Accounts),
	}
}

func centsToUnits(cents int64) float64 {
	return float64(cents) / 100
}

func cloneStrings(src []string) []string {
	if len(src) == 0 {
		return nil
	}
	return append([]string(nil), src...)
}
