package domain

import (
	"context"
	"errors"
)

// Store is the single writer of donation records.
type Store interface {
	LogDonationTransaction(ctx context.Context, tx DonationTransaction) (*DonationTransaction, error)
	UpdateTransactionStatus(ctx context.Context, lookup TransactionLookup, status TransactionStatus, metadata map[string]any) (*DonationTransaction, error)
	GetDonationTransaction(ctx context.Context, lookup TransactionLookup) (*DonationTransaction, error)
	// RecordPaymentOutcome applies a terminal PaymentIntent result exactly once:
	// a pending row for the intent is transitioned, a row already in the
	// outcome status is returned untouched, otherwise tx is appended.
	RecordPaymentOutcome(ctx context.Context, tx DonationTransaction) (*DonationTransaction, error)
	ListTransactions(ctx context.Context) ([]DonationTransaction, error)

	LogSubscriptionRecord(ctx context.Context, rec SubscriptionRecord) (*SubscriptionRecord, error)
	UpdateSubscriptionRecord(ctx context.Context, stripeSubscriptionID string, update SubscriptionUpdate) (*SubscriptionRecord, error)
	GetSubscriptionRecord(ctx context.Context, stripeSubscriptionID string) (*SubscriptionRecord, error)
	ListSubscriptions(ctx context.Context) ([]SubscriptionRecord, error)

	LogWebhookEventData(ctx context.Context, ev WebhookEvent) error
	ListWebhookEvents(ctx context.Context, limit int) ([]WebhookEvent, error)
}

var (
	ErrInvalidTransaction      = errors.New("transaction must reference exactly one of payment intent or subscription")
	ErrInvalidStatus           = errors.New("invalid transaction status")
	ErrInvalidStatusTransition = errors.New("invalid transaction status transition")
	ErrEmptyLookup             = errors.New("transaction lookup requires id, payment intent or session")
	ErrInvalidSubscription     = errors.New("subscription record requires a stripe subscription id")
	ErrTransactionNotFound     = errors.New("donation transaction not found")
	ErrSubscriptionNotFound    = errors.New("subscription record not found")
	ErrCorruptStore            = errors.New("donation store file is corrupt")
	ErrStoreLocked             = errors.New("donation store is locked by another writer")
)
