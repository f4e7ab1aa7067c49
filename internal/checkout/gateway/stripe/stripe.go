package stripe

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/givingdesk/internal/checkout/domain"
	"github.com/smallbiznis/givingdesk/internal/config"
	stripeapi "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"
)

const expandClientSecret = "latest_invoice.payment_intent"

// Gateway talks to the Stripe API. A gateway built without a secret key
// rejects every call with domain.ErrGatewayNotConfigured.
type Gateway struct {
	api *client.API
	log *zap.Logger
}

func NewGateway(cfg config.Config, log *zap.Logger) domain.Gateway {
	log = log.Named("checkout.stripe")
	if cfg.Stripe.SecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY not set; checkout endpoints are disabled")
		return &Gateway{log: log}
	}
	return &Gateway{api: client.New(cfg.Stripe.SecretKey, nil), log: log}
}

func newGatewayWithBackends(key string, backends *stripeapi.Backends, log *zap.Logger) *Gateway {
	return &Gateway{api: client.New(key, backends), log: log}
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, p domain.SessionParams) (*domain.CheckoutResult, error) {
	if g.api == nil {
		return nil, domain.ErrGatewayNotConfigured
	}

	priceData := &stripeapi.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripeapi.String(p.Currency),
		UnitAmount: stripeapi.Int64(p.AmountCents),
		ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripeapi.String(p.ProductName),
		},
	}
	params := &stripeapi.CheckoutSessionParams{
		Mode:       stripeapi.String(p.Mode),
		SuccessURL: stripeapi.String(p.SuccessURL),
		CancelURL:  stripeapi.String(p.CancelURL),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{PriceData: priceData, Quantity: stripeapi.Int64(1)},
		},
		Metadata: p.Metadata,
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripeapi.String(p.CustomerEmail)
	}
	if p.Mode == domain.ModeSubscription {
		priceData.Recurring = &stripeapi.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripeapi.String(p.Interval),
		}
		params.SubscriptionData = &stripeapi.CheckoutSessionSubscriptionDataParams{Metadata: p.Metadata}
	} else {
		params.PaymentIntentData = &stripeapi.CheckoutSessionPaymentIntentDataParams{Metadata: p.Metadata}
	}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, translateError(err)
	}
	return &domain.CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

func (g *Gateway) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	if g.api == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	params := &stripeapi.CustomerListParams{Email: stripeapi.String(email)}
	params.Context = ctx
	params.Limit = stripeapi.Int64(1)

	it := g.api.Customers.List(params)
	for it.Next() {
		c := it.Customer()
		if c.Deleted {
			continue
		}
		return customerFromStripe(c), nil
	}
	if err := it.Err(); err != nil {
		return nil, translateError(err)
	}
	return nil, nil
}

func (g *Gateway) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	if g.api == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	params := &stripeapi.CustomerParams{}
	params.Context = ctx
	c, err := g.api.Customers.Get(id, params)
	if err != nil {
		return nil, translateError(err)
	}
	return customerFromStripe(c), nil
}

func (g *Gateway) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*domain.Customer, error) {
	if g.api == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	params := &stripeapi.CustomerParams{
		Email:    stripeapi.String(email),
		Metadata: metadata,
	}
	params.Context = ctx
	c, err := g.api.Customers.New(params)
	if err != nil {
		return nil, translateError(err)
	}
	g.log.Info("stripe customer created", zap.String("customer_id", c.ID))
	return customerFromStripe(c), nil
}

func (g *Gateway) FindPriceByLookupKey(ctx context.Context, lookupKey string) (*domain.Price, error) {
	if g.api == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	params := &stripeapi.PriceListParams{
		LookupKeys: stripeapi.StringSlice([]string{lookupKey}),
		Active:     stripeapi.Bool(true),
	}
	params.Context = ctx
	params.Limit = stripeapi.Int64(1)

	it := g.api.Prices.List(params)
	if it.Next() {
		return priceFromStripe(it.Price()), nil
	}
	if err := it.Err(); err != nil {
		return nil, translateError(err)
	}
	return nil, nil
}

func (g *Gateway) CreatePrice(ctx context.Context, p domain.PriceParams) (*domain.Price, error) {
	if g.api == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	params := &stripeapi.PriceParams{
		Currency:   stripeapi.String(p.Currency),
		UnitAmount: stripeapi.Int64(p.AmountCents),
		LookupKey:  stripeapi.String(p.LookupKey),
		Recurring: &stripeapi.PriceRecurringParams{
			Interval: stripeapi.String(p.Interval),
		},
		ProductData: &stripeapi.PriceProductDataParams{
			Name: stripeapi.String(p.ProductName),
		},
	}
	params.Context = ctx
	price, err := g.api.Prices.New(params)
	if err != nil {
		return nil, translateError(err)
	}
	g.log.Info("stripe price created",
		zap.String("price_id", price.ID),
		zap.String("lookup_key", p.LookupKey),
	)
	return priceFromStripe(price), nil
}

func (g *Gateway) CreateSubscription(ctx context.Context, p domain.SubscriptionParams) (*domain.Subscription, error) {
	if g.api == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	params := &stripeapi.SubscriptionParams{
		Customer:        stripeapi.String(p.CustomerID),
		Items:           []*stripeapi.SubscriptionItemsParams{{Price: stripeapi.String(p.PriceID)}},
		PaymentBehavior: stripeapi.String("default_incomplete"),
		PaymentSettings: &stripeapi.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripeapi.String("on_subscription"),
		},
		Metadata: p.Metadata,
	}
	params.Context = ctx
	params.AddExpand(expandClientSecret)

	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return nil, translateError(err)
	}
	return subscriptionFromStripe(sub), nil
}

func (g *Gateway) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	if g.api == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	params := &stripeapi.SubscriptionParams{}
	params.Context = ctx
	sub, err := g.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, translateError(err)
	}
	out := subscriptionFromStripe(sub)
	// Only the creating request receives the client secret.
	out.ClientSecret = ""
	return out, nil
}

func (g *Gateway) UpdateSubscription(ctx context.Context, id string, p domain.SubscriptionUpdateParams) (*domain.Subscription, error) {
	if g.api == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	params := &stripeapi.SubscriptionParams{Metadata: p.Metadata}
	if p.CancelAtPeriodEnd != nil {
		params.CancelAtPeriodEnd = stripeapi.Bool(*p.CancelAtPeriodEnd)
	}
	if p.PriceID != "" {
		item := &stripeapi.SubscriptionItemsParams{Price: stripeapi.String(p.PriceID)}
		if p.ItemID != "" {
			item.ID = stripeapi.String(p.ItemID)
		}
		params.Items = []*stripeapi.SubscriptionItemsParams{item}
		params.ProrationBehavior = stripeapi.String("create_prorations")
	}
	params.Context = ctx

	sub, err := g.api.Subscriptions.Update(id, params)
	if err != nil {
		return nil, translateError(err)
	}
	return subscriptionFromStripe(sub), nil
}

func (g *Gateway) CancelSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	if g.api == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	params := &stripeapi.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := g.api.Subscriptions.Cancel(id, params)
	if err != nil {
		return nil, translateError(err)
	}
	return subscriptionFromStripe(sub), nil
}

func translateError(err error) error {
	var serr *stripeapi.Error
	if !errors.As(err, &serr) {
		return &domain.GatewayError{Type: "api_error", Message: err.Error(), Err: err}
	}
	return &domain.GatewayError{
		Type:       string(serr.Type),
		Code:       string(serr.Code),
		Message:    serr.Msg,
		StatusCode: serr.HTTPStatusCode,
		Err:        err,
	}
}

func customerFromStripe(c *stripeapi.Customer) *domain.Customer {
	return &domain.Customer{ID: c.ID, Email: c.Email, Deleted: c.Deleted}
}

func priceFromStripe(p *stripeapi.Price) *domain.Price {
	out := &domain.Price{
		ID:         p.ID,
		LookupKey:  p.LookupKey,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
	}
	if p.Recurring != nil {
		out.Interval = string(p.Recurring.Interval)
	}
	return out
}

func subscriptionFromStripe(s *stripeapi.Subscription) *domain.Subscription {
	out := &domain.Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.CurrentPeriodEnd > 0 {
		end := time.Unix(s.CurrentPeriodEnd, 0).UTC()
		out.CurrentPeriodEnd = &end
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.ItemID = item.ID
		if item.Price != nil {
			out.PriceID = item.Price.ID
			out.Amount = float64(item.Price.UnitAmount) / 100
			out.Currency = string(item.Price.Currency)
			if item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
		}
	}
	if s.LatestInvoice != nil && s.LatestInvoice.PaymentIntent != nil {
		out.ClientSecret = s.LatestInvoice.PaymentIntent.ClientSecret
	}
	return out
}
