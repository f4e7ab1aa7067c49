package domain

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v81"
)

// Service verifies Stripe deliveries and applies them to the donation store.
type Service interface {
	Verify(payload []byte, signature string) (stripe.Event, error)
	Dispatch(ctx context.Context, event stripe.Event) error
}

const (
	EventPaymentIntentSucceeded  = "payment_intent.succeeded"
	EventPaymentIntentFailed     = "payment_intent.payment_failed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// Outcomes reported on givingdesk_webhook_events_total.
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

const DefaultCategory = "Offerings"

var (
	ErrWebhookSecretMissing = errors.New("stripe webhook secret is not configured")
	ErrInvalidSignature     = errors.New("invalid stripe signature")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
)
