package domain

import "context"

// Gateway is the subset of the Stripe API the initiator uses.
// Finders return nil, nil when nothing matches.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params SessionParams) (*CheckoutResult, error)

	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*Customer, error)

	FindPriceByLookupKey(ctx context.Context, lookupKey string) (*Price, error)
	CreatePrice(ctx context.Context, params PriceParams) (*Price, error)

	CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params SubscriptionUpdateParams) (*Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*Subscription, error)
}
