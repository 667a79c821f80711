package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var sessionColumnNames = []string{
	"id", "currency", "items_json", "subtotal_cents", "shipping_cents", "discount_cents", "total_cents",
	"customer_json", "payment_intent_id", "stripe_customer_id", "stripe_account_used", "payment_status",
	"order_ref", "shopify_cart_id", "order_id", "order_number", "order_claimed_at", "order_error", "processed_at",
	"created_at", "updated_at",
}

func TestSessionRepositoryGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(sessionColumnNames).AddRow(
		"S1", "EUR", `[{"title":"Mug","quantity":2,"unitPriceCents":2500,"lineTotalCents":5000}]`,
		5000, 590, 500, 5090,
		`{"fullName":"Ada","email":"ada@example.com"}`, "pi_1", nil, "A", "pending",
		"#1001", nil, nil, nil, nil, nil, nil,
		now, now,
	)
	mock.ExpectQuery(`SELECT .* FROM cart_sessions\s+WHERE id = \?`).WithArgs("S1").WillReturnRows(rows)

	session, err := repo.Get(context.Background(), "S1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session == nil {
		t.Fatal("expected session")
	}
	if session.ComputedTotal() != 5090 {
		t.Fatalf("expected computed total 5090, got %d", session.ComputedTotal())
	}
	if len(session.Items) != 1 || session.Items[0].Title != "Mug" {
		t.Fatalf("unexpected items: %+v", session.Items)
	}
	if session.Customer == nil || session.Customer.Email != "ada@example.com" {
		t.Fatalf("unexpected customer: %+v", session.Customer)
	}
	if session.StripeCustomerID != "" || session.HasOrder() {
		t.Fatal("expected null columns to map to empty values")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepositoryGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	mock.ExpectQuery(`SELECT .* FROM cart_sessions`).WithArgs("missing").WillReturnRows(sqlmock.NewRows(sessionColumnNames))

	session, err := repo.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil {
		t.Fatal("expected nil session")
	}
}

func TestSessionRepositoryUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	now := time.Now().UTC()
	intentID := "pi_1"
	label := "A"

	mock.ExpectExec(`UPDATE cart_sessions SET payment_intent_id = \?, stripe_account_used = \?, updated_at = \? WHERE id = \?`).
		WithArgs("pi_1", "A", now, "S1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "S1", &entity.SessionPatch{
		PaymentIntentID:   &intentID,
		StripeAccountUsed: &label,
		UpdatedAt:         now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepositoryUpdateNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	mock.ExpectExec(`UPDATE cart_sessions SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), "S404", &entity.SessionPatch{UpdatedAt: time.Now()})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionRepositoryCompareAndUpdateClaims(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	now := time.Now().UTC()
	cutoff := now.Add(-2 * time.Minute)

	mock.ExpectExec(`UPDATE cart_sessions SET order_claimed_at = \?, updated_at = \? WHERE id = \? AND order_id IS NULL AND \(order_claimed_at IS NULL OR order_claimed_at < \?\)`).
		WithArgs(now, now, "S1", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.CompareAndUpdate(context.Background(), "S1",
		entity.SessionGuard{OrderUnlinked: true, ClaimFreeBefore: &cutoff},
		&entity.SessionPatch{OrderClaimedAt: &now, UpdatedAt: now},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected claim to succeed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepositoryCompareAndUpdateLosesRace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE cart_sessions SET .* WHERE id = \? AND order_id IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.CompareAndUpdate(context.Background(), "S1",
		entity.SessionGuard{OrderUnlinked: true},
		&entity.SessionPatch{OrderClaimedAt: &now, UpdatedAt: now},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected claim to fail when the guard does not hold")
	}
}

func TestSessionRepositoryCompareAndUpdateRefusesCapturedStatuses(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	now := time.Now().UTC()
	failed := entity.PaymentStatusFailed

	mock.ExpectExec(`UPDATE cart_sessions SET payment_status = \?, updated_at = \? WHERE id = \? AND order_id IS NULL AND \(payment_status IS NULL OR payment_status NOT IN \(\?, \?\)\)`).
		WithArgs(failed, now, "S1", entity.PaymentStatusSucceeded, entity.PaymentStatusOrderFailed).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.CompareAndUpdate(context.Background(), "S1",
		entity.SessionGuard{
			OrderUnlinked: true,
			StatusNotIn:   []string{entity.PaymentStatusSucceeded, entity.PaymentStatusOrderFailed},
		},
		&entity.SessionPatch{PaymentStatus: &failed, UpdatedAt: now},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected write to be refused")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepositoryClearOrderClaimWritesNull(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	orderID := "gid://shopify/Order/1"

	mock.ExpectExec(`UPDATE cart_sessions SET order_id = \?, order_claimed_at = \? WHERE id = \?`).
		WithArgs(orderID, nil, "S1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "S1", &entity.SessionPatch{OrderID: &orderID, ClearOrderClaim: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepositoryListUnlinkedPaid(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(sessionColumnNames).AddRow(
		"S2", "EUR", nil, 1000, 0, 0, 1000,
		nil, "pi_2", "cus_2", "B", "succeeded",
		nil, "cart_1", nil, nil, nil, nil, nil,
		now, now,
	)
	mock.ExpectQuery(`FROM cart_sessions\s+WHERE payment_status IN \(\?, \?\)`).
		WithArgs(entity.PaymentStatusSucceeded, entity.PaymentStatusOrderFailed, now, int32(25)).
		WillReturnRows(rows)

	sessions, err := repo.ListUnlinkedPaid(context.Background(), now, 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "S2" || sessions[0].ShopifyCartID != "cart_1" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
	if sessions[0].Customer != nil {
		t.Fatal("expected nil customer for null column")
	}
}
