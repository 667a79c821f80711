package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/metrics"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/rotation"
	"github.com/vibast-solutions/ms-go-checkout/app/tracing"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	threeDSecureAutomatic = "automatic"
	threeDSecureAny       = "any"
	checkoutType          = "custom"
	guestName             = "Guest"
)

type createPaymentIntentRequest interface {
	GetSessionId() string
	GetAmountCents() int64
	GetCustomer() *types.CustomerPayload
}

func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, req createPaymentIntentRequest) (*entity.PaymentIntentResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "checkout.CreatePaymentIntent")
	defer span.End()

	result, err := s.createPaymentIntent(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("checkout.account", result.AccountLabel),
		attribute.Int64("checkout.amount_cents", result.AmountCents),
	)
	return result, nil
}

func (s *CheckoutService) createPaymentIntent(ctx context.Context, req createPaymentIntentRequest) (*entity.PaymentIntentResult, error) {
	sessionID := strings.TrimSpace(req.GetSessionId())
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrInvalidRequest)
	}
	if req.GetAmountCents() < s.minimumAmount() {
		return nil, ErrAmountTooLow
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.HasOrder() || isCaptured(session.PaymentStatus) {
		return nil, ErrSessionPaid
	}

	amount := req.GetAmountCents()
	if session.SubtotalCents > 0 {
		if total := session.ComputedTotal(); total != amount {
			return nil, fmt.Errorf("%w: expected %d, got %d", ErrAmountMismatch, total, amount)
		}
	}
	if amount < s.minimumAmount() {
		return nil, ErrAmountTooLow
	}

	active, err := s.rotator.Active(ctx)
	if err != nil {
		if errors.Is(err, rotation.ErrNoActiveAccount) {
			return nil, ErrNoActiveAccount
		}
		return nil, err
	}
	account := active.Account

	customer := mergeCustomer(session.Customer, req.GetCustomer())
	customer.CountryCode = firstNonEmpty(customer.CountryCode, s.checkoutCfg.DefaultCountry, defaultCountry)
	currency := strings.ToUpper(firstNonEmpty(session.Currency, active.DefaultCurrency, s.checkoutCfg.DefaultCurrency, defaultCurrency))
	orderRef := firstNonEmpty(session.OrderRef, sessionID)
	now := s.now().UTC()

	customerID := s.resolveCustomer(ctx, active, session, customer)
	decoy := provider.PickDecoyTitle(account, s.random, firstNonEmpty(s.checkoutCfg.DefaultDecoyTitle, defaultDecoyTitle))

	input := &provider.PaymentIntentInput{
		AmountCents:               amount,
		Currency:                  currency,
		CustomerID:                customerID,
		Description:               fmt.Sprintf("%s | %s", orderRef, firstNonEmpty(customer.FullName, guestName)),
		ReceiptEmail:              customer.Email,
		StatementDescriptorSuffix: provider.StatementDescriptorSuffix(account.Label, firstNonEmpty(s.checkoutCfg.DescriptorFallback, defaultDescriptorFallback)),
		RequestThreeDSecure:       threeDSecureAutomatic,
		Shipping:                  shippingFor(customer),
		Metadata: map[string]string{
			"session_id":           sessionID,
			"merchant_site":        account.MerchantSite,
			"customer_email":       customer.Email,
			"customer_name":        customer.FullName,
			"customer_phone":       customer.Phone,
			"shipping_address":     customer.Address1,
			"shipping_city":        customer.City,
			"shipping_postal_code": customer.PostalCode,
			"shipping_country":     customer.CountryCode,
			"order_id":             orderRef,
			"first_item_title":     decoy,
			"stripe_account":       account.Label,
			"stripe_account_order": strconv.Itoa(account.Order),
			"checkout_type":        checkoutType,
			"created_at":           now.Format(time.RFC3339),
		},
	}
	if s.checkoutCfg.Require3DS {
		input.RequestThreeDSecure = threeDSecureAny
	}

	intent, err := active.Client.CreatePaymentIntent(ctx, input)
	if err != nil {
		metrics.RecordPaymentIntent(account.Label, "error")
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	patch := &entity.SessionPatch{
		Customer:          &customer,
		Items:             session.Items,
		Currency:          stringPtr(currency),
		SubtotalCents:     int64Ptr(session.SubtotalCents),
		ShippingCents:     int64Ptr(session.ShippingCents),
		DiscountCents:     int64Ptr(session.DiscountCents),
		TotalCents:        int64Ptr(amount),
		PaymentIntentID:   stringPtr(intent.ID),
		StripeAccountUsed: stringPtr(account.Label),
		OrderRef:          stringPtr(orderRef),
		UpdatedAt:         now,
	}
	if patch.Items == nil {
		patch.Items = []entity.SessionItem{}
	}
	if customerID != "" {
		patch.StripeCustomerID = stringPtr(customerID)
	}
	if !session.HasOrder() && (session.PaymentStatus == "" || session.PaymentStatus == entity.PaymentStatusFailed) {
		patch.PaymentStatus = stringPtr(entity.PaymentStatusPending)
	}
	if err := s.sessions.Update(ctx, sessionID, patch); err != nil {
		metrics.RecordPaymentIntent(account.Label, "error")
		return nil, err
	}

	metrics.RecordPaymentIntent(account.Label, "created")
	s.logger.WithFields(logrus.Fields{
		"session_id":        sessionID,
		"payment_intent_id": intent.ID,
		"account":           account.Label,
		"amount_cents":      amount,
	}).Info("payment intent created")

	return &entity.PaymentIntentResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		PublishableKey:  account.PublishableKey,
		AccountLabel:    account.Label,
		AmountCents:     amount,
		Currency:        currency,
	}, nil
}

// resolveCustomer returns an empty id when no customer can be bound; lookup failures never fail the intent.
func (s *CheckoutService) resolveCustomer(ctx context.Context, active *rotation.ActiveAccount, session *entity.Session, customer entity.Customer) string {
	label := active.Account.Label
	if session.StripeCustomerID != "" && session.StripeAccountUsed == label {
		return session.StripeCustomerID
	}

	email := strings.ToLower(strings.TrimSpace(customer.Email))
	if email == "" {
		return ""
	}
	logger := s.logger.WithField("account", label).WithField("session_id", session.ID)

	if s.customers != nil {
		id, err := s.customers.Get(ctx, label, email)
		if err != nil {
			logger.WithError(err).Warn("customer cache read failed")
		}
		if id != "" {
			return id
		}
	}

	id, err := active.Client.FindCustomerByEmail(ctx, email)
	if err != nil {
		logger.WithError(err).Warn("customer lookup failed")
		return ""
	}

	if id == "" {
		input := &provider.CustomerInput{
			Email: email,
			Name:  customer.FullName,
			Phone: customer.Phone,
			Metadata: map[string]string{
				"merchant_site":  active.Account.MerchantSite,
				"session_id":     session.ID,
				"stripe_account": label,
			},
			IdempotencyKey: provider.CustomerIdempotencyKey(label, email),
		}
		if customer.Address1 != "" {
			input.Address = &provider.Address{
				Line1:      customer.Address1,
				Line2:      customer.Address2,
				City:       customer.City,
				PostalCode: customer.PostalCode,
				State:      customer.Province,
				Country:    customer.CountryCode,
			}
		}

		id, err = active.Client.CreateCustomer(ctx, input)
		if err != nil {
			logger.WithError(err).Warn("customer creation failed")
			return ""
		}
	}

	if s.customers != nil {
		if err := s.customers.Set(ctx, label, email, id); err != nil {
			logger.WithError(err).Warn("customer cache write failed")
		}
	}
	return id
}

func mergeCustomer(stored *entity.Customer, payload *types.CustomerPayload) entity.Customer {
	var out entity.Customer
	if stored != nil {
		out = *stored
	}
	if payload == nil {
		return out
	}

	out.FullName = firstNonEmpty(payload.FullName, out.FullName)
	out.Email = firstNonEmpty(payload.Email, out.Email)
	out.Phone = firstNonEmpty(payload.Phone, out.Phone)
	out.Address1 = firstNonEmpty(payload.Address1, out.Address1)
	out.Address2 = firstNonEmpty(payload.Address2, out.Address2)
	out.City = firstNonEmpty(payload.City, out.City)
	out.PostalCode = firstNonEmpty(payload.PostalCode, out.PostalCode)
	out.Province = firstNonEmpty(payload.Province, out.Province)
	out.CountryCode = strings.ToUpper(firstNonEmpty(payload.CountryCode, out.CountryCode))
	return out
}

// shippingFor returns nil unless name, street, city and postal code are all known.
func shippingFor(customer entity.Customer) *provider.Shipping {
	if customer.FullName == "" || customer.Address1 == "" || customer.City == "" || customer.PostalCode == "" {
		return nil
	}

	return &provider.Shipping{
		Name:  customer.FullName,
		Phone: customer.Phone,
		Address: provider.Address{
			Line1:      customer.Address1,
			Line2:      customer.Address2,
			City:       customer.City,
			PostalCode: customer.PostalCode,
			State:      customer.Province,
			Country:    customer.CountryCode,
		},
	}
}
