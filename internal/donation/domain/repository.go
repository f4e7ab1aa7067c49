package domain

import "context"

// Repository persists donations. Writers go through Atomic so a
// read-modify-write cycle is never interleaved with another writer.
type Repository interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	ListTransactions(ctx context.Context) ([]DonationTransaction, error)
	ListSubscriptions(ctx context.Context) ([]SubscriptionRecord, error)
	ListWebhookEvents(ctx context.Context) ([]WebhookEvent, error)

	// Driver names the backend for logs and metrics.
	Driver() string
}

// Tx is the view of the store inside a unit of work. Lookups return nil, nil
// when nothing matches.
type Tx interface {
	FindTransaction(lookup TransactionLookup) (*DonationTransaction, error)
	FindTransactionsByPaymentIntent(paymentIntentID string) ([]DonationTransaction, error)
	InsertTransaction(tx *DonationTransaction) error
	UpdateTransaction(tx *DonationTransaction) error

	FindSubscription(stripeSubscriptionID string) (*SubscriptionRecord, error)
	InsertSubscription(rec *SubscriptionRecord) error
	UpdateSubscription(rec *SubscriptionRecord) error

	// AppendWebhookEvent appends ev and trims the log to the newest keep entries.
	AppendWebhookEvent(ev *WebhookEvent, keep int) error
}
