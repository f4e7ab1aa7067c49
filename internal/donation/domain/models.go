package domain

import (
	"encoding/json"
	"time"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether a stored record may move from s to next.
// Re-applying the current status is allowed and changes nothing but metadata.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	if s == next {
		return true
	}
	return s == StatusPending && (next == StatusCompleted || next == StatusFailed)
}

type DonationType string

const (
	TypeOneOff    DonationType = "oneoff"
	TypeRecurring DonationType = "recurring"
)

type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionUnpaid    SubscriptionStatus = "unpaid"
)

// DonationTransaction is one attempted one-time or recurring payment.
type DonationTransaction struct {
	ID                    string            `json:"id"`
	StripeSessionID       string            `json:"stripeSessionId"`
	StripePaymentIntentID string            `json:"stripePaymentIntentId,omitempty"`
	StripeSubscriptionID  string            `json:"stripeSubscriptionId,omitempty"`
	Amount                float64           `json:"amount"`
	Currency              string            `json:"currency"`
	Category              string            `json:"category"`
	Type                  DonationType      `json:"type"`
	Frequency             Frequency         `json:"frequency,omitempty"`
	Status                TransactionStatus `json:"status"`
	CustomerEmail         string            `json:"customerEmail,omitempty"`
	Metadata              map[string]any    `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

// TransactionLookup selects a transaction by any of its identifiers.
// Empty fields never match.
type TransactionLookup struct {
	ID                    string `json:"id,omitempty"`
	StripePaymentIntentID string `json:"stripePaymentIntentId,omitempty"`
	StripeSessionID       string `json:"stripeSessionId,omitempty"`
}

func (l TransactionLookup) Empty() bool {
	return l.ID == "" && l.StripePaymentIntentID == "" && l.StripeSessionID == ""
}

func (l TransactionLookup) Matches(tx DonationTransaction) bool {
	return (l.ID != "" && tx.ID == l.ID) ||
		(l.StripePaymentIntentID != "" && tx.StripePaymentIntentID == l.StripePaymentIntentID) ||
		(l.StripeSessionID != "" && tx.StripeSessionID == l.StripeSessionID)
}

// SubscriptionRecord mirrors a Stripe subscription for the admin console.
type SubscriptionRecord struct {
	ID                   string             `json:"id"`
	StripeSubscriptionID string             `json:"stripeSubscriptionId"`
	StripeCustomerID     string             `json:"stripeCustomerId"`
	Amount               float64            `json:"amount"`
	Currency             string             `json:"currency"`
	Category             string             `json:"category"`
	Frequency            Frequency          `json:"frequency"`
	Status               SubscriptionStatus `json:"status"`
	CustomerEmail        string             `json:"customerEmail,omitempty"`
	NextPaymentDate      *time.Time         `json:"nextPaymentDate,omitempty"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

// SubscriptionUpdate carries the fields a webhook may change. Nil means unchanged.
type SubscriptionUpdate struct {
	Amount          *float64
	Currency        *string
	Status          *SubscriptionStatus
	NextPaymentDate *time.Time
}

func (u SubscriptionUpdate) Apply(rec *SubscriptionRecord) {
	if u.Amount != nil {
		rec.Amount = *u.Amount
	}
	if u.Currency != nil {
		rec.Currency = *u.Currency
	}
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.NextPaymentDate != nil {
		next := *u.NextPaymentDate
		rec.NextPaymentDate = &next
	}
}

// WebhookEvent is one entry of the capped webhook audit log.
type WebhookEvent struct {
	ID        string          `json:"id"`
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Processed bool            `json:"processed"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// MaxWebhookEvents caps the audit log. Older entries are trimmed first.
const MaxWebhookEvents = 1000
