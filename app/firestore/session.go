package firestore

import (
	"context"
	"errors"
	"time"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errGuardFailed = errors.New("session guard does not hold")

type sessionItemDoc struct {
	ProductID      string `firestore:"productId"`
	VariantID      string `firestore:"variantId"`
	Title          string `firestore:"title"`
	Quantity       int64  `firestore:"quantity"`
	UnitPriceCents int64  `firestore:"unitPriceCents"`
	LineTotalCents int64  `firestore:"lineTotalCents"`
	Image          string `firestore:"image,omitempty"`
}

type customerDoc struct {
	FullName    string `firestore:"fullName"`
	Email       string `firestore:"email"`
	Phone       string `firestore:"phone"`
	Address1    string `firestore:"address1"`
	Address2    string `firestore:"address2"`
	City        string `firestore:"city"`
	PostalCode  string `firestore:"postalCode"`
	Province    string `firestore:"province"`
	CountryCode string `firestore:"countryCode"`
}

type sessionDoc struct {
	Currency          string           `firestore:"currency"`
	Items             []sessionItemDoc `firestore:"items"`
	SubtotalCents     int64            `firestore:"subtotalCents"`
	ShippingCents     int64            `firestore:"shippingCents"`
	DiscountCents     int64            `firestore:"discountCents"`
	TotalCents        int64            `firestore:"totalCents"`
	Customer          *customerDoc     `firestore:"customer"`
	PaymentIntentID   string           `firestore:"paymentIntentId"`
	StripeCustomerID  string           `firestore:"stripeCustomerId"`
	StripeAccountUsed string           `firestore:"stripeAccountUsed"`
	PaymentStatus     string           `firestore:"paymentStatus"`
	OrderRef          string           `firestore:"orderNumberRef"`
	ShopifyCartID     string           `firestore:"shopifyCartId"`
	OrderID           string           `firestore:"orderId"`
	OrderNumber       string           `firestore:"orderNumber"`
	OrderClaimedAt    *time.Time       `firestore:"orderClaimedAt"`
	OrderError        string           `firestore:"orderError"`
	ProcessedAt       *time.Time       `firestore:"processedAt"`
	CreatedAt         time.Time        `firestore:"createdAt"`
	UpdatedAt         time.Time        `firestore:"updatedAt"`
}

type SessionStore struct {
	client *gcfirestore.Client
}

func NewSessionStore(client *gcfirestore.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) Get(ctx context.Context, id string) (*entity.Session, error) {
	snap, err := s.client.Collection(sessionCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sessionFromSnapshot(snap)
}

func (s *SessionStore) Update(ctx context.Context, id string, patch *entity.SessionPatch) error {
	updates := sessionUpdates(patch)
	if len(updates) == 0 {
		return nil
	}

	_, err := s.client.Collection(sessionCollection).Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return repository.ErrSessionNotFound
	}
	return err
}

// CompareAndUpdate evaluates the guard and writes the patch inside one Firestore transaction.
func (s *SessionStore) CompareAndUpdate(ctx context.Context, id string, guard entity.SessionGuard, patch *entity.SessionPatch) (bool, error) {
	updates := sessionUpdates(patch)
	if len(updates) == 0 {
		return false, nil
	}

	ref := s.client.Collection(sessionCollection).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *gcfirestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return errGuardFailed
		}
		if err != nil {
			return err
		}

		session, err := sessionFromSnapshot(snap)
		if err != nil {
			return err
		}
		if !guard.Holds(session) {
			return errGuardFailed
		}
		return tx.Update(ref, updates)
	})
	if errors.Is(err, errGuardFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SessionStore) ListUnlinkedPaid(ctx context.Context, claimFreeBefore time.Time, limit int32) ([]*entity.Session, error) {
	// order linkage and claim age are filtered client side; null and missing fields do not index alike.
	snaps, err := s.client.Collection(sessionCollection).
		Where("paymentStatus", "in", []string{entity.PaymentStatusSucceeded, entity.PaymentStatusOrderFailed}).
		OrderBy("updatedAt", gcfirestore.Asc).
		Limit(int(limit) * 4).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, err
	}

	guard := entity.SessionGuard{OrderUnlinked: true, ClaimFreeBefore: &claimFreeBefore}
	sessions := make([]*entity.Session, 0, limit)
	for _, snap := range snaps {
		session, err := sessionFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		if session.PaymentIntentID == "" || !guard.Holds(session) {
			continue
		}
		sessions = append(sessions, session)
		if int32(len(sessions)) >= limit {
			break
		}
	}
	return sessions, nil
}

func sessionFromSnapshot(snap *gcfirestore.DocumentSnapshot) (*entity.Session, error) {
	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}

	session := &entity.Session{
		ID:                snap.Ref.ID,
		Currency:          doc.Currency,
		SubtotalCents:     doc.SubtotalCents,
		ShippingCents:     doc.ShippingCents,
		DiscountCents:     doc.DiscountCents,
		TotalCents:        doc.TotalCents,
		PaymentIntentID:   doc.PaymentIntentID,
		StripeCustomerID:  doc.StripeCustomerID,
		StripeAccountUsed: doc.StripeAccountUsed,
		PaymentStatus:     doc.PaymentStatus,
		OrderRef:          doc.OrderRef,
		ShopifyCartID:     doc.ShopifyCartID,
		OrderID:           doc.OrderID,
		OrderNumber:       doc.OrderNumber,
		OrderClaimedAt:    doc.OrderClaimedAt,
		OrderError:        doc.OrderError,
		ProcessedAt:       doc.ProcessedAt,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		session.Items = append(session.Items, entity.SessionItem(item))
	}
	if doc.Customer != nil {
		c := entity.Customer(*doc.Customer)
		session.Customer = &c
	}
	return session, nil
}

func sessionUpdates(patch *entity.SessionPatch) []gcfirestore.Update {
	if patch == nil {
		return nil
	}

	updates := make([]gcfirestore.Update, 0, 16)
	set := func(path string, value interface{}) {
		updates = append(updates, gcfirestore.Update{Path: path, Value: value})
	}

	if patch.Customer != nil {
		c := customerDoc(*patch.Customer)
		set("customer", c)
	}
	if patch.Items != nil {
		items := make([]sessionItemDoc, 0, len(patch.Items))
		for _, item := range patch.Items {
			items = append(items, sessionItemDoc(item))
		}
		set("items", items)
	}
	if patch.Currency != nil {
		set("currency", *patch.Currency)
	}
	if patch.SubtotalCents != nil {
		set("subtotalCents", *patch.SubtotalCents)
	}
	if patch.ShippingCents != nil {
		set("shippingCents", *patch.ShippingCents)
	}
	if patch.DiscountCents != nil {
		set("discountCents", *patch.DiscountCents)
	}
	if patch.TotalCents != nil {
		set("totalCents", *patch.TotalCents)
	}
	if patch.PaymentIntentID != nil {
		set("paymentIntentId", *patch.PaymentIntentID)
	}
	if patch.StripeCustomerID != nil {
		set("stripeCustomerId", *patch.StripeCustomerID)
	}
	if patch.StripeAccountUsed != nil {
		set("stripeAccountUsed", *patch.StripeAccountUsed)
	}
	if patch.PaymentStatus != nil {
		set("paymentStatus", *patch.PaymentStatus)
	}
	if patch.OrderRef != nil {
		set("orderNumberRef", *patch.OrderRef)
	}
	if patch.OrderID != nil {
		set("orderId", *patch.OrderID)
	}
	if patch.OrderNumber != nil {
		set("orderNumber", *patch.OrderNumber)
	}
	if patch.ClearOrderClaim {
		set("orderClaimedAt", nil)
	} else if patch.OrderClaimedAt != nil {
		set("orderClaimedAt", *patch.OrderClaimedAt)
	}
	if patch.OrderError != nil {
		set("orderError", *patch.OrderError)
	}
	if patch.ProcessedAt != nil {
		set("processedAt", *patch.ProcessedAt)
	}
	if !patch.UpdatedAt.IsZero() {
		set("updatedAt", patch.UpdatedAt)
	}

	return updates
}
