package service

import "errors"

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrAmountTooLow    = errors.New("amount is below the minimum payable amount")
	ErrAmountMismatch  = errors.New("amount does not match the session total")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionPaid     = errors.New("session is already paid")
	ErrNoActiveAccount = errors.New("no active payment account configured")
	ErrProviderFailure = errors.New("payment provider request failed")
	ErrWebhookRejected = errors.New("webhook signature did not match any account")
)
