package service

import (
	"context"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/rotation"
)

func (s *CheckoutService) RotationStatus(ctx context.Context) (*rotation.Status, error) {
	status, err := s.rotator.Status(ctx)
	if err != nil {
		if errors.Is(err, rotation.ErrNoActiveAccount) {
			return nil, ErrNoActiveAccount
		}
		return nil, err
	}
	return status, nil
}

func (s *CheckoutService) RotationWindow() time.Duration {
	return s.rotator.Window()
}

// Stats aggregates the transactions of the UTC day containing now per eligible account.
func (s *CheckoutService) Stats(ctx context.Context, now time.Time) (*entity.DailyStats, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	stats := &entity.DailyStats{GeneratedAt: now.UTC()}
	status, err := s.rotator.Status(ctx)
	switch {
	case err == nil:
		stats.CurrentAccount = status.Account.Label
		stats.Slot = status.Slot
		stats.TotalSlots = status.TotalSlots
		stats.NextRotation = status.NextRotation
	case errors.Is(err, rotation.ErrNoActiveAccount):
		stats.NextRotation = rotation.NextRotation(now, s.rotator.Window())
	default:
		return nil, err
	}

	txns, err := s.transactions.ListByDate(ctx, now.UTC().Format(transactionDateFmt), statsTransactionLimit)
	if err != nil {
		return nil, err
	}
	stats.Transactions = txns

	byAccount := make(map[string]*entity.AccountDailyStats)
	for _, account := range rotation.EligibleAccounts(cfg.Accounts) {
		stats.Accounts = append(stats.Accounts, entity.AccountDailyStats{
			Account:   account,
			IsCurrent: account.Label == stats.CurrentAccount,
		})
	}
	for i := range stats.Accounts {
		byAccount[stats.Accounts[i].Account.Label] = &stats.Accounts[i]
	}

	for _, txn := range txns {
		entry, ok := byAccount[txn.AccountLabel]
		if !ok {
			continue
		}
		entry.TotalCents += txn.AmountCents
		entry.TransactionCount++
		stats.TotalCents += txn.AmountCents
		stats.TransactionCount++
	}

	return stats, nil
}
