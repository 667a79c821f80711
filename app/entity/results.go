package entity

import "time"

type WebhookOutcome string

const (
	WebhookOutcomeProcessed        WebhookOutcome = "processed"
	WebhookOutcomeIgnored          WebhookOutcome = "ignored"
	WebhookOutcomeSessionMissing   WebhookOutcome = "session_missing"
	WebhookOutcomeAlreadyProcessed WebhookOutcome = "already_processed"
	WebhookOutcomeOrderFailed      WebhookOutcome = "order_failed"
	WebhookOutcomePaymentFailed    WebhookOutcome = "payment_failed"
)

type PaymentIntentResult struct {
	PaymentIntentID string
	ClientSecret    string
	PublishableKey  string
	AccountLabel    string
	AmountCents     int64
	Currency        string
}

type WebhookResult struct {
	Outcome      WebhookOutcome
	EventID      string
	EventType    string
	AccountLabel string
	SessionID    string
	OrderID      string
	Message      string
}

type AccountDailyStats struct {
	Account          Account
	IsCurrent        bool
	TotalCents       int64
	TransactionCount int
}

// DailyStats aggregates one UTC day of transactions per eligible account.
type DailyStats struct {
	GeneratedAt      time.Time
	CurrentAccount   string
	Slot             int
	TotalSlots       int
	NextRotation     time.Time
	Accounts         []AccountDailyStats
	TotalCents       int64
	TransactionCount int
	Transactions     []*Transaction
}
