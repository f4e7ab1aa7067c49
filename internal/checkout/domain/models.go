package domain

import (
	"time"

	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
)

// CheckoutRequest starts a hosted Stripe Checkout for a one-off or recurring gift.
type CheckoutRequest struct {
	Amount    float64                     `json:"amount"`
	Category  string                      `json:"category" validate:"required"`
	Type      donationdomain.DonationType `json:"type" validate:"required,oneof=oneoff recurring"`
	Frequency donationdomain.Frequency    `json:"frequency,omitempty" validate:"omitempty,oneof=weekly monthly yearly"`
	Email     string                      `json:"email,omitempty" validate:"omitempty,email"`
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// SubscriptionRequest creates a recurring gift directly against the Stripe API.
type SubscriptionRequest struct {
	Amount     float64                  `json:"amount"`
	Category   string                   `json:"category" validate:"required"`
	Frequency  donationdomain.Frequency `json:"frequency" validate:"required,oneof=weekly monthly yearly"`
	Email      string                   `json:"email,omitempty" validate:"omitempty,email"`
	CustomerID string                   `json:"customerId,omitempty"`
}

type SubscriptionResult struct {
	SubscriptionID   string     `json:"subscriptionId"`
	CustomerID       string     `json:"customerId"`
	Status           string     `json:"status"`
	ClientSecret     string     `json:"clientSecret,omitempty"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
}

type UpdateSubscriptionRequest struct {
	SubscriptionID    string            `json:"subscriptionId"`
	CancelAtPeriodEnd *bool             `json:"cancelAtPeriodEnd,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Amount            *float64          `json:"amount,omitempty"`
}

// Subscription is the gateway-neutral view of a Stripe subscription.
type Subscription struct {
	ID                string            `json:"id"`
	CustomerID        string            `json:"customerId"`
	Status            string            `json:"status"`
	ItemID            string            `json:"itemId,omitempty"`
	PriceID           string            `json:"priceId,omitempty"`
	Amount            float64           `json:"amount"`
	Currency          string            `json:"currency"`
	Interval          string            `json:"interval,omitempty"`
	CancelAtPeriodEnd bool              `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  *time.Time        `json:"currentPeriodEnd,omitempty"`
	ClientSecret      string            `json:"clientSecret,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type Customer struct {
	ID      string
	Email   string
	Deleted bool
}

type Price struct {
	ID         string
	LookupKey  string
	UnitAmount int64
	Currency   string
	Interval   string
}

// SessionParams describe a Checkout Session with inline price data.
type SessionParams struct {
	Mode          string
	AmountCents   int64
	Currency      string
	ProductName   string
	Interval      string
	CustomerEmail string
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
}

type PriceParams struct {
	LookupKey   string
	AmountCents int64
	Currency    string
	Interval    string
	ProductName string
}

type SubscriptionParams struct {
	CustomerID string
	PriceID    string
	Metadata   map[string]string
}

type SubscriptionUpdateParams struct {
	CancelAtPeriodEnd *bool
	Metadata          map[string]string
	ItemID            string
	PriceID           string
}

const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)
