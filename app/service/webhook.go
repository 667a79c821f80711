package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/metrics"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
	"github.com/vibast-solutions/ms-go-checkout/app/rotation"
	"github.com/vibast-solutions/ms-go-checkout/app/storefront"
	"github.com/vibast-solutions/ms-go-checkout/app/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var capturedPaymentStatuses = []string{
	entity.PaymentStatusSucceeded,
	entity.PaymentStatusOrderFailed,
	entity.PaymentStatusPaid,
}

func isCaptured(status string) bool {
	for _, captured := range capturedPaymentStatuses {
		if status == captured {
			return true
		}
	}
	return false
}

const (
	sessionIDMetadataKey = "session_id"
	transactionDateFmt   = "2006-01-02"
)

type webhookRequest interface {
	GetPayload() []byte
	GetSignature() string
}

// paymentFacts is what order materialization needs to know about the captured payment.
type paymentFacts struct {
	PaymentIntentID string
	AmountCents     int64
	Currency        string
	AccountLabel    string
	Email           string
}

func (s *CheckoutService) HandleWebhook(ctx context.Context, req webhookRequest) (*entity.WebhookResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "checkout.HandleWebhook")
	defer span.End()

	result, err := s.handleWebhook(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrWebhookRejected) {
			metrics.RecordWebhookOutcome("rejected")
		} else {
			metrics.RecordWebhookOutcome("error")
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("checkout.webhook.outcome", string(result.Outcome)),
		attribute.String("checkout.webhook.event_type", result.EventType),
		attribute.String("checkout.account", result.AccountLabel),
	)
	metrics.RecordWebhookOutcome(string(result.Outcome))
	return result, nil
}

func (s *CheckoutService) handleWebhook(ctx context.Context, req webhookRequest) (*entity.WebhookResult, error) {
	payload := req.GetPayload()
	signature := strings.TrimSpace(req.GetSignature())
	if len(payload) == 0 || signature == "" {
		return nil, fmt.Errorf("%w: payload and signature are required", ErrInvalidRequest)
	}

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	event, account, err := s.authenticate(payload, signature, rotation.WebhookAccounts(cfg.Accounts))
	if err != nil {
		return nil, err
	}

	result := &entity.WebhookResult{
		EventID:      event.ID,
		EventType:    event.Type,
		AccountLabel: account.Label,
	}
	logger := s.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"account":    account.Label,
	})

	switch event.Type {
	case provider.EventPaymentIntentSucceeded:
		err = s.handlePaymentSucceeded(ctx, cfg, event, result)
	case provider.EventPaymentIntentPaymentFailed:
		err = s.handlePaymentFailed(ctx, event, result)
	default:
		result.Outcome = entity.WebhookOutcomeIgnored
	}
	if err != nil {
		logger.WithError(err).Error("webhook processing failed")
		return nil, err
	}

	entry := logger.WithField("outcome", result.Outcome).WithField("session_id", result.SessionID)
	switch result.Outcome {
	case entity.WebhookOutcomeSessionMissing, entity.WebhookOutcomeAlreadyProcessed:
		entry.Warn(firstNonEmpty(result.Message, "webhook acknowledged without action"))
	case entity.WebhookOutcomeOrderFailed:
		entry.Error(result.Message)
	default:
		entry.Info("webhook handled")
	}

	return result, nil
}

// authenticate tries each secret in pool order and stops at the first match.
func (s *CheckoutService) authenticate(payload []byte, signature string, accounts []entity.Account) (*provider.WebhookEvent, entity.Account, error) {
	for _, account := range accounts {
		event, err := s.verifier.Verify(payload, signature, account.WebhookSecret)
		if err != nil {
			continue
		}
		return event, account, nil
	}
	return nil, entity.Account{}, ErrWebhookRejected
}

func (s *CheckoutService) handlePaymentSucceeded(ctx context.Context, cfg *entity.CheckoutConfig, event *provider.WebhookEvent, result *entity.WebhookResult) error {
	intent := event.PaymentIntent
	if intent == nil {
		result.Outcome = entity.WebhookOutcomeSessionMissing
		result.Message = "event carries no payment intent"
		return nil
	}

	sessionID := strings.TrimSpace(intent.Metadata[sessionIDMetadataKey])
	if sessionID == "" {
		result.Outcome = entity.WebhookOutcomeSessionMissing
		result.Message = "payment intent has no session_id metadata"
		return nil
	}
	result.SessionID = sessionID

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		result.Outcome = entity.WebhookOutcomeSessionMissing
		result.Message = "session not found"
		return nil
	}
	facts := paymentFacts{
		PaymentIntentID: intent.ID,
		AmountCents:     intent.AmountCents,
		Currency:        strings.ToUpper(intent.Currency),
		AccountLabel:    result.AccountLabel,
		Email:           intent.ReceiptEmail,
	}

	if session.HasOrder() {
		result.Outcome = entity.WebhookOutcomeAlreadyProcessed
		result.OrderID = session.OrderID
		result.Message = "order already linked"
		return s.backfillTransaction(ctx, session, facts)
	}

	now := s.now().UTC()
	claimed, err := s.claimOrder(ctx, sessionID, now)
	if err != nil {
		return err
	}
	if !claimed {
		result.Outcome = entity.WebhookOutcomeAlreadyProcessed
		result.Message = "order materialization already claimed"
		return nil
	}

	return s.materialize(ctx, cfg.Shopify, session, facts, now, result)
}

// backfillTransaction records the payment of a linked session when an earlier delivery failed to.
// Appends are keyed by payment intent, so an existing record makes this a no-op.
func (s *CheckoutService) backfillTransaction(ctx context.Context, session *entity.Session, facts paymentFacts) error {
	if facts.PaymentIntentID == "" || session.PaymentIntentID != facts.PaymentIntentID {
		return nil
	}

	at := s.now().UTC()
	if session.ProcessedAt != nil {
		at = session.ProcessedAt.UTC()
	}
	txn := newTransaction(session, facts, session.OrderID, session.OrderNumber, at)
	if err := s.transactions.Append(ctx, txn); err != nil && !errors.Is(err, repository.ErrTransactionAlreadyExists) {
		return fmt.Errorf("backfill transaction: %w", err)
	}
	return nil
}

func newTransaction(session *entity.Session, facts paymentFacts, orderID, orderNumber string, at time.Time) *entity.Transaction {
	txn := &entity.Transaction{
		ID:              uuid.NewString(),
		PaymentIntentID: facts.PaymentIntentID,
		AccountLabel:    facts.AccountLabel,
		AmountCents:     facts.AmountCents,
		Currency:        facts.Currency,
		Status:          entity.TransactionStatusSucceeded,
		Email:           facts.Email,
		OrderID:         orderID,
		OrderNumber:     orderNumber,
		SessionID:       session.ID,
		Date:            at.UTC().Format(transactionDateFmt),
		CreatedAt:       at,
	}
	if session.Customer != nil {
		txn.Email = firstNonEmpty(session.Customer.Email, facts.Email)
		txn.CustomerName = session.Customer.FullName
	}
	return txn
}

func (s *CheckoutService) handlePaymentFailed(ctx context.Context, event *provider.WebhookEvent, result *entity.WebhookResult) error {
	result.Outcome = entity.WebhookOutcomePaymentFailed
	if event.PaymentIntent == nil {
		return nil
	}

	sessionID := strings.TrimSpace(event.PaymentIntent.Metadata[sessionIDMetadataKey])
	if sessionID == "" {
		result.Message = "payment intent has no session_id metadata"
		return nil
	}
	result.SessionID = sessionID

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		result.Outcome = entity.WebhookOutcomeSessionMissing
		result.Message = "session not found"
		return nil
	}
	if session.HasOrder() {
		result.Message = "order already linked"
		return nil
	}

	// a late decline never overwrites a captured payment.
	written, err := s.sessions.CompareAndUpdate(ctx, sessionID,
		entity.SessionGuard{
			OrderUnlinked: true,
			StatusNotIn:   capturedPaymentStatuses,
		},
		&entity.SessionPatch{
			PaymentStatus: stringPtr(entity.PaymentStatusFailed),
			UpdatedAt:     s.now().UTC(),
		},
	)
	if err != nil {
		return err
	}
	if !written {
		result.Message = "payment already captured"
	}
	return nil
}

// claimOrder marks the session as being materialized. It fails when an order is linked or a fresh claim is held.
func (s *CheckoutService) claimOrder(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	claimFreeBefore := now.Add(-s.orderClaimTTL())
	return s.sessions.CompareAndUpdate(ctx, sessionID,
		entity.SessionGuard{OrderUnlinked: true, ClaimFreeBefore: &claimFreeBefore},
		&entity.SessionPatch{
			OrderClaimedAt: &now,
			PaymentStatus:  stringPtr(entity.PaymentStatusSucceeded),
			UpdatedAt:      now,
		},
	)
}

// materialize runs with the claim held: order, session linkage, transaction record, event, cart clear.
func (s *CheckoutService) materialize(
	ctx context.Context,
	shop entity.ShopifySettings,
	session *entity.Session,
	facts paymentFacts,
	now time.Time,
	result *entity.WebhookResult,
) error {
	logger := s.logger.WithField("session_id", session.ID).WithField("account", facts.AccountLabel)

	order, err := s.orders.CreateOrder(ctx, storefront.OrderInput{
		Shop:             shop,
		Session:          session,
		AmountCents:      facts.AmountCents,
		Currency:         facts.Currency,
		PaymentReference: facts.PaymentIntentID,
		AccountLabel:     facts.AccountLabel,
	})
	if err != nil || order == nil || order.OrderID == "" {
		message := "order creation returned no order"
		if err != nil {
			message = truncate(err.Error(), maxOrderErrorLength)
		}
		if updateErr := s.sessions.Update(ctx, session.ID, &entity.SessionPatch{
			ClearOrderClaim: true,
			PaymentStatus:   stringPtr(entity.PaymentStatusOrderFailed),
			OrderError:      stringPtr(message),
			UpdatedAt:       now,
		}); updateErr != nil {
			logger.WithError(updateErr).Error("failed to record order failure")
		}
		result.Outcome = entity.WebhookOutcomeOrderFailed
		result.Message = message
		return nil
	}

	if err := s.sessions.Update(ctx, session.ID, &entity.SessionPatch{
		OrderID:         stringPtr(order.OrderID),
		OrderNumber:     stringPtr(order.OrderNumber),
		ClearOrderClaim: true,
		PaymentStatus:   stringPtr(entity.PaymentStatusPaid),
		OrderError:      stringPtr(""),
		ProcessedAt:     &now,
		UpdatedAt:       now,
	}); err != nil {
		logger.WithError(err).WithField("order_id", order.OrderID).Error("order created but session linkage failed")
		return err
	}
	result.OrderID = order.OrderID

	txn := newTransaction(session, facts, order.OrderID, order.OrderNumber, now)
	appendErr := s.transactions.Append(ctx, txn)
	if errors.Is(appendErr, repository.ErrTransactionAlreadyExists) {
		appendErr = nil
	}
	if appendErr != nil {
		logger.WithError(appendErr).WithField("order_id", order.OrderID).Error("transaction record failed")
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOrderMaterialized(ctx, txn); err != nil {
			logger.WithError(err).Warn("order event publish failed")
		}
	}

	s.clearCart(ctx, shop, session.ShopifyCartID, logger)

	// the order stays linked; a redelivery backfills the record.
	if appendErr != nil {
		return fmt.Errorf("record transaction: %w", appendErr)
	}

	result.Outcome = entity.WebhookOutcomeProcessed
	return nil
}

func (s *CheckoutService) clearCart(ctx context.Context, shop entity.ShopifySettings, cartID string, logger logrus.FieldLogger) {
	if strings.TrimSpace(cartID) == "" {
		return
	}

	clearCtx, cancel := context.WithTimeout(ctx, s.cartClearTimeout())
	defer cancel()

	if err := s.orders.ClearCart(clearCtx, shop, cartID); err != nil {
		logger.WithError(err).Warn("cart clear failed")
	}
}
