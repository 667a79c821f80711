package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

// RunReconcileOrdersBatch retries order materialization for paid sessions that have no order linked
// and whose claim is absent or expired.
func (s *CheckoutService) RunReconcileOrdersBatch(ctx context.Context) error {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	items, err := s.sessions.ListUnlinkedPaid(ctx, now.Add(-s.orderClaimTTL()), s.batchSize)
	if err != nil {
		return err
	}

	var firstErr error
	for _, session := range items {
		if session == nil || strings.TrimSpace(session.PaymentIntentID) == "" {
			continue
		}

		claimed, err := s.claimOrder(ctx, session.ID, now)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if !claimed {
			continue
		}

		amount := session.TotalCents
		if amount <= 0 {
			amount = session.ComputedTotal()
		}
		facts := paymentFacts{
			PaymentIntentID: session.PaymentIntentID,
			AmountCents:     amount,
			Currency:        strings.ToUpper(session.Currency),
			AccountLabel:    session.StripeAccountUsed,
		}

		result := &entity.WebhookResult{SessionID: session.ID, AccountLabel: session.StripeAccountUsed}
		if err := s.materialize(ctx, cfg.Shopify, session, facts, now, result); err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if result.Outcome == entity.WebhookOutcomeOrderFailed {
			firstErr = keepFirstErr(firstErr, fmt.Errorf("session %s: %s", session.ID, result.Message))
			continue
		}

		s.logger.WithField("session_id", session.ID).WithField("order_id", result.OrderID).Info("order reconciled")
	}

	return firstErr
}
