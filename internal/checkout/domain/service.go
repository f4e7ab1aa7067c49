package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Service interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	UpdateSubscription(ctx context.Context, id string, req UpdateSubscriptionRequest) (*Subscription, error)
	CancelSubscription(ctx context.Context, id string, immediately bool) (*Subscription, error)
}

var (
	ErrCustomerDeleted        = errors.New("stripe customer has been deleted")
	ErrSubscriptionIDRequired = errors.New("subscriptionId is required")
	ErrGatewayNotConfigured   = errors.New("stripe is not configured")
)

// ValidationError maps request fields to human-readable messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// GatewayError wraps a failure reported by Stripe.
type GatewayError struct {
	Type       string
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe %s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("stripe %s: %s", e.Type, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsClientError reports failures caused by the request rather than Stripe.
func (e *GatewayError) IsClientError() bool {
	return e.Type == "invalid_request_error" || e.Type == "card_error"
}
