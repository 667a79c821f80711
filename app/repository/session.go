package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionColumns = `id, currency, items_json, subtotal_cents, shipping_cents, discount_cents, total_cents,
			customer_json, payment_intent_id, stripe_customer_id, stripe_account_used, payment_status,
			order_ref, shopify_cart_id, order_id, order_number, order_claimed_at, order_error, processed_at,
			created_at, updated_at`

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*entity.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM cart_sessions
		WHERE id = ?
	`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *SessionRepository) Update(ctx context.Context, id string, patch *entity.SessionPatch) error {
	assignments, args, err := sessionAssignments(patch)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return nil
	}

	query := "UPDATE cart_sessions SET " + strings.Join(assignments, ", ") + " WHERE id = ?"
	args = append(args, id)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// CompareAndUpdate applies the patch only while the guard holds and reports whether the row was written.
func (r *SessionRepository) CompareAndUpdate(ctx context.Context, id string, guard entity.SessionGuard, patch *entity.SessionPatch) (bool, error) {
	assignments, args, err := sessionAssignments(patch)
	if err != nil {
		return false, err
	}
	if len(assignments) == 0 {
		return false, nil
	}

	conditions := []string{"id = ?"}
	args = append(args, id)
	if guard.OrderUnlinked {
		conditions = append(conditions, "order_id IS NULL")
	}
	if guard.ClaimFreeBefore != nil {
		conditions = append(conditions, "(order_claimed_at IS NULL OR order_claimed_at < ?)")
		args = append(args, *guard.ClaimFreeBefore)
	}
	if len(guard.StatusNotIn) > 0 {
		placeholders := make([]string, len(guard.StatusNotIn))
		for i, status := range guard.StatusNotIn {
			placeholders[i] = "?"
			args = append(args, status)
		}
		conditions = append(conditions, "(payment_status IS NULL OR payment_status NOT IN ("+strings.Join(placeholders, ", ")+"))")
	}

	query := "UPDATE cart_sessions SET " + strings.Join(assignments, ", ") + " WHERE " + strings.Join(conditions, " AND ")

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ListUnlinkedPaid returns paid sessions without an order whose claim is absent or older than claimFreeBefore.
func (r *SessionRepository) ListUnlinkedPaid(ctx context.Context, claimFreeBefore time.Time, limit int32) ([]*entity.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM cart_sessions
		WHERE payment_status IN (?, ?)
		  AND order_id IS NULL
		  AND payment_intent_id IS NOT NULL
		  AND (order_claimed_at IS NULL OR order_claimed_at < ?)
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query,
		entity.PaymentStatusSucceeded,
		entity.PaymentStatusOrderFailed,
		claimFreeBefore,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]*entity.Session, 0)
	for rows.Next() {
		item, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func sessionAssignments(patch *entity.SessionPatch) ([]string, []interface{}, error) {
	if patch == nil {
		return nil, nil, nil
	}

	assignments := make([]string, 0, 16)
	args := make([]interface{}, 0, 16)
	set := func(column string, value interface{}) {
		assignments = append(assignments, column+" = ?")
		args = append(args, value)
	}

	if patch.Customer != nil {
		payload, err := marshalJSON(patch.Customer)
		if err != nil {
			return nil, nil, err
		}
		set("customer_json", payload)
	}
	if patch.Items != nil {
		payload, err := marshalJSON(patch.Items)
		if err != nil {
			return nil, nil, err
		}
		set("items_json", payload)
	}
	if patch.Currency != nil {
		set("currency", *patch.Currency)
	}
	if patch.SubtotalCents != nil {
		set("subtotal_cents", *patch.SubtotalCents)
	}
	if patch.ShippingCents != nil {
		set("shipping_cents", *patch.ShippingCents)
	}
	if patch.DiscountCents != nil {
		set("discount_cents", *patch.DiscountCents)
	}
	if patch.TotalCents != nil {
		set("total_cents", *patch.TotalCents)
	}
	if patch.PaymentIntentID != nil {
		set("payment_intent_id", nullableString(*patch.PaymentIntentID))
	}
	if patch.StripeCustomerID != nil {
		set("stripe_customer_id", nullableString(*patch.StripeCustomerID))
	}
	if patch.StripeAccountUsed != nil {
		set("stripe_account_used", nullableString(*patch.StripeAccountUsed))
	}
	if patch.PaymentStatus != nil {
		set("payment_status", nullableString(*patch.PaymentStatus))
	}
	if patch.OrderRef != nil {
		set("order_ref", nullableString(*patch.OrderRef))
	}
	if patch.OrderID != nil {
		set("order_id", nullableString(*patch.OrderID))
	}
	if patch.OrderNumber != nil {
		set("order_number", nullableString(*patch.OrderNumber))
	}
	if patch.ClearOrderClaim {
		set("order_claimed_at", nil)
	} else if patch.OrderClaimedAt != nil {
		set("order_claimed_at", *patch.OrderClaimedAt)
	}
	if patch.OrderError != nil {
		set("order_error", nullableString(*patch.OrderError))
	}
	if patch.ProcessedAt != nil {
		set("processed_at", *patch.ProcessedAt)
	}
	if !patch.UpdatedAt.IsZero() {
		set("updated_at", patch.UpdatedAt)
	}

	return assignments, args, nil
}

func scanSession(scan rowScanner) (*entity.Session, error) {
	var (
		currency          sql.NullString
		itemsJSON         sql.NullString
		customerJSON      sql.NullString
		paymentIntentID   sql.NullString
		stripeCustomerID  sql.NullString
		stripeAccountUsed sql.NullString
		paymentStatus     sql.NullString
		orderRef          sql.NullString
		shopifyCartID     sql.NullString
		orderID           sql.NullString
		orderNumber       sql.NullString
		orderClaimedAt    sql.NullTime
		orderError        sql.NullString
		processedAt       sql.NullTime
	)

	session := &entity.Session{}
	err := scan.Scan(
		&session.ID,
		&currency,
		&itemsJSON,
		&session.SubtotalCents,
		&session.ShippingCents,
		&session.DiscountCents,
		&session.TotalCents,
		&customerJSON,
		&paymentIntentID,
		&stripeCustomerID,
		&stripeAccountUsed,
		&paymentStatus,
		&orderRef,
		&shopifyCartID,
		&orderID,
		&orderNumber,
		&orderClaimedAt,
		&orderError,
		&processedAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(itemsJSON, &session.Items); err != nil {
		return nil, err
	}
	if customerJSON.Valid && customerJSON.String != "" && customerJSON.String != "null" {
		session.Customer = &entity.Customer{}
		if err := unmarshalJSON(customerJSON, session.Customer); err != nil {
			return nil, err
		}
	}

	session.Currency = currency.String
	session.PaymentIntentID = paymentIntentID.String
	session.StripeCustomerID = stripeCustomerID.String
	session.StripeAccountUsed = stripeAccountUsed.String
	session.PaymentStatus = paymentStatus.String
	session.OrderRef = orderRef.String
	session.ShopifyCartID = shopifyCartID.String
	session.OrderID = orderID.String
	session.OrderNumber = orderNumber.String
	session.OrderClaimedAt = timePtrFromNull(orderClaimedAt)
	session.OrderError = orderError.String
	session.ProcessedAt = timePtrFromNull(processedAt)

	return session, nil
}
