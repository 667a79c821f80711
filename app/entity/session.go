package entity

import "time"

const (
	PaymentStatusPending       = "pending"
	PaymentStatusSucceeded     = "succeeded"
	PaymentStatusFailed        = "failed"
	PaymentStatusPaid          = "paid"
	PaymentStatusOrderFailed   = "order_failed"
	TransactionStatusSucceeded = "succeeded"
)

type SessionItem struct {
	ProductID      string `json:"productId"`
	VariantID      string `json:"variantId"`
	Title          string `json:"title"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LineTotalCents int64  `json:"lineTotalCents"`
	Image          string `json:"image,omitempty"`
}

type Customer struct {
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

type Session struct {
	ID string

	Currency string
	Items    []SessionItem

	SubtotalCents int64
	ShippingCents int64
	DiscountCents int64
	TotalCents    int64

	Customer *Customer

	PaymentIntentID   string
	StripeCustomerID  string
	StripeAccountUsed string
	PaymentStatus     string

	OrderRef      string
	ShopifyCartID string

	OrderID        string
	OrderNumber    string
	OrderClaimedAt *time.Time
	OrderError     string
	ProcessedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ComputedTotal is subtotal minus discount plus shipping, in minor units.
func (s *Session) ComputedTotal() int64 {
	return s.SubtotalCents - s.DiscountCents + s.ShippingCents
}

func (s *Session) HasOrder() bool {
	return s.OrderID != ""
}

// SessionPatch is a partial session write. Nil fields are left untouched.
type SessionPatch struct {
	Customer          *Customer
	Items             []SessionItem
	Currency          *string
	SubtotalCents     *int64
	ShippingCents     *int64
	DiscountCents     *int64
	TotalCents        *int64
	PaymentIntentID   *string
	StripeCustomerID  *string
	StripeAccountUsed *string
	PaymentStatus     *string
	OrderRef          *string
	OrderID           *string
	OrderNumber       *string
	OrderClaimedAt    *time.Time
	ClearOrderClaim   bool
	OrderError        *string
	ProcessedAt       *time.Time
	UpdatedAt         time.Time
}

// Apply merges the patch into s.
func (p *SessionPatch) Apply(s *Session) {
	if p.Customer != nil {
		c := *p.Customer
		s.Customer = &c
	}
	if p.Items != nil {
		s.Items = append([]SessionItem(nil), p.Items...)
	}
	setString(&s.Currency, p.Currency)
	setInt64(&s.SubtotalCents, p.SubtotalCents)
	setInt64(&s.ShippingCents, p.ShippingCents)
	setInt64(&s.DiscountCents, p.DiscountCents)
	setInt64(&s.TotalCents, p.TotalCents)
	setString(&s.PaymentIntentID, p.PaymentIntentID)
	setString(&s.StripeCustomerID, p.StripeCustomerID)
	setString(&s.StripeAccountUsed, p.StripeAccountUsed)
	setString(&s.PaymentStatus, p.PaymentStatus)
	setString(&s.OrderRef, p.OrderRef)
	setString(&s.OrderID, p.OrderID)
	setString(&s.OrderNumber, p.OrderNumber)
	if p.ClearOrderClaim {
		s.OrderClaimedAt = nil
	} else if p.OrderClaimedAt != nil {
		t := *p.OrderClaimedAt
		s.OrderClaimedAt = &t
	}
	setString(&s.OrderError, p.OrderError)
	if p.ProcessedAt != nil {
		t := *p.ProcessedAt
		s.ProcessedAt = &t
	}
	if !p.UpdatedAt.IsZero() {
		s.UpdatedAt = p.UpdatedAt
	}
}

// SessionGuard is the condition of a compare-and-update write.
type SessionGuard struct {
	// OrderUnlinked requires the session to carry no order id.
	OrderUnlinked bool
	// ClaimFreeBefore requires the order claim to be absent or older than this instant.
	ClaimFreeBefore *time.Time
	// StatusNotIn refuses the write while the payment status is one of these.
	StatusNotIn []string
}

// Holds reports whether s satisfies the guard.
func (g SessionGuard) Holds(s *Session) bool {
	if s == nil {
		return false
	}
	if g.OrderUnlinked && s.OrderID != "" {
		return false
	}
	if g.ClaimFreeBefore != nil && s.OrderClaimedAt != nil && !s.OrderClaimedAt.Before(*g.ClaimFreeBefore) {
		return false
	}
	for _, status := range g.StatusNotIn {
		if s.PaymentStatus == status {
			return false
		}
	}
	return true
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}
