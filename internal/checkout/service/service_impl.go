package service

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/givingdesk/internal/checkout/domain"
	"github.com/smallbiznis/givingdesk/internal/clock"
	"github.com/smallbiznis/givingdesk/internal/config"
	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
	obslogger "github.com/smallbiznis/givingdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/givingdesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Gateway domain.Gateway
	Cfg     config.Config
	Giving  *config.GivingConfigHolder
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	gateway   domain.Gateway
	stripe    config.StripeConfig
	giving    *config.GivingConfigHolder
	validator *requestValidator
	clock     clock.Clock
	log       *zap.Logger
	metrics   *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		gateway:   p.Gateway,
		stripe:    p.Cfg.Stripe,
		giving:    p.Giving,
		validator: newRequestValidator(p.Giving),
		clock:     p.Clock,
		log:       p.Log.Named("checkout.service"),
		metrics:   p.Metrics,
	}
}

func (s *Service) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	if err := s.validator.checkout(&req); err != nil {
		return nil, err
	}

	params := domain.SessionParams{
		Mode:          domain.ModePayment,
		AmountCents:   toCents(req.Amount),
		Currency:      s.currency(),
		ProductName:   req.Category + " Donation",
		CustomerEmail: req.Email,
		Metadata:      s.metadata(req.Category, req.Type, req.Frequency, req.Email),
		SuccessURL:    s.stripe.SuccessURL,
		CancelURL:     s.stripe.CancelURL,
	}
	if req.Type == donationdomain.TypeRecurring {
		params.Mode = domain.ModeSubscription
		params.Interval = intervalFor(req.Frequency)
		params.ProductName = fmt.Sprintf("%s Donation (%s)", req.Category, req.Frequency)
	}

	result, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Error("create checkout session failed",
			zap.String("mode", params.Mode),
			zap.String("category", req.Category),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordCheckoutSession(ctx, params.Mode)
	obslogger.WithContext(ctx, s.log).Info("checkout session created",
		zap.String("session_id", result.SessionID),
		zap.String("mode", params.Mode),
		zap.Int64("amount_cents", params.AmountCents),
	)
	return result, nil
}

func (s *Service) CreateSubscription(ctx context.Context, req domain.SubscriptionRequest) (*domain.SubscriptionResult, error) {
	if err := s.validator.subscription(&req); err != nil {
		return nil, err
	}

	customer, err := s.resolveCustomer(ctx, req.CustomerID, req.Email)
	if err != nil {
		return nil, err
	}
	price, err := s.resolvePrice(ctx, req.Category, req.Frequency, req.Amount)
	if err != nil {
		return nil, err
	}

	email := req.Email
	if email == "" {
		email = customer.Email
	}
	sub, err := s.gateway.CreateSubscription(ctx, domain.SubscriptionParams{
		CustomerID: customer.ID,
		PriceID:    price.ID,
		Metadata:   s.metadata(req.Category, donationdomain.TypeRecurring, req.Frequency, email),
	})
	if err != nil {
		return nil, err
	}

	result := &domain.SubscriptionResult{
		SubscriptionID:   sub.ID,
		CustomerID:       customer.ID,
		Status:           sub.Status,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
	}
	if sub.Status == "incomplete" {
		result.ClientSecret = sub.ClientSecret
	}

	obslogger.WithContext(ctx, s.log).Info("subscription created",
		zap.String("subscription_id", sub.ID),
		zap.String("customer_id", customer.ID),
		zap.String("price_lookup_key", price.LookupKey),
		zap.String("status", sub.Status),
	)
	return result, nil
}

func (s *Service) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrSubscriptionIDRequired
	}
	return s.gateway.GetSubscription(ctx, id)
}

func (s *Service) UpdateSubscription(ctx context.Context, id string, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrSubscriptionIDRequired
	}

	params := domain.SubscriptionUpdateParams{
		CancelAtPeriodEnd: req.CancelAtPeriodEnd,
		Metadata:          maps.Clone(req.Metadata),
	}

	if req.Amount != nil {
		if err := s.validator.amount(*req.Amount); err != nil {
			return nil, err
		}
		current, err := s.gateway.GetSubscription(ctx, id)
		if err != nil {
			return nil, err
		}
		category := current.Metadata["category"]
		if category == "" {
			category = s.giving.Get().DefaultCategory
		}
		frequency := donationdomain.Frequency(current.Metadata["frequency"])
		if frequency == "" {
			frequency = FrequencyForInterval(current.Interval)
		}
		price, err := s.resolvePrice(ctx, category, frequency, *req.Amount)
		if err != nil {
			return nil, err
		}
		params.ItemID = current.ItemID
		params.PriceID = price.ID
	}

	sub, err := s.gateway.UpdateSubscription(ctx, id, params)
	if err != nil {
		return nil, err
	}
	obslogger.WithContext(ctx, s.log).Info("subscription updated",
		zap.String("subscription_id", id),
		zap.Bool("price_changed", params.PriceID != ""),
	)
	return sub, nil
}

func (s *Service) CancelSubscription(ctx context.Context, id string, immediately bool) (*domain.Subscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrSubscriptionIDRequired
	}

	var (
		sub *domain.Subscription
		err error
	)
	if immediately {
		sub, err = s.gateway.CancelSubscription(ctx, id)
	} else {
		cancelAtPeriodEnd := true
		sub, err = s.gateway.UpdateSubscription(ctx, id, domain.SubscriptionUpdateParams{CancelAtPeriodEnd: &cancelAtPeriodEnd})
	}
	if err != nil {
		return nil, err
	}
	obslogger.WithContext(ctx, s.log).Info("subscription cancelled",
		zap.String("subscription_id", id),
		zap.Bool("immediately", immediately),
	)
	return sub, nil
}

func (s *Service) resolveCustomer(ctx context.Context, customerID, email string) (*domain.Customer, error) {
	if customerID != "" {
		customer, err := s.gateway.GetCustomer(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if customer.Deleted {
			return nil, domain.ErrCustomerDeleted
		}
		return customer, nil
	}

	existing, err := s.gateway.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.gateway.CreateCustomer(ctx, email, map[string]string{"source": "website"})
}

func (s *Service) resolvePrice(ctx context.Context, category string, frequency donationdomain.Frequency, amount float64) (*domain.Price, error) {
	key := LookupKey(category, frequency, amount)
	price, err := s.gateway.FindPriceByLookupKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if price != nil {
		return price, nil
	}
	return s.gateway.CreatePrice(ctx, domain.PriceParams{
		LookupKey:   key,
		AmountCents: toCents(amount),
		Currency:    s.currency(),
		Interval:    intervalFor(frequency),
		ProductName: fmt.Sprintf("%s - %s giving", category, frequency),
	})
}

func (s *Service) metadata(category string, donationType donationdomain.DonationType, frequency donationdomain.Frequency, email string) map[string]string {
	md := map[string]string{
		"category":  category,
		"type":      string(donationType),
		"source":    "website",
		"timestamp": s.clock.Now().Format(time.RFC3339),
	}
	if frequency != "" {
		md["frequency"] = string(frequency)
	}
	if email != "" {
		md["email"] = email
	}
	return md
}

func (s *Service) currency() string {
	if s.stripe.Currency == "" {
		return "usd"
	}
	return s.stripe.Currency
}

// LookupKey names the reusable Stripe price for a category, frequency and amount,
// e.g. "building_fund_monthly_25.5".
func LookupKey(category string, frequency donationdomain.Frequency, amount float64) string {
	raw := fmt.Sprintf("%s_%s_%s", category, frequency, strconv.FormatFloat(amount, 'f', -1, 64))
	return strings.ToLower(strings.ReplaceAll(raw, " ", "_"))
}

func intervalFor(frequency donationdomain.Frequency) string {
	switch frequency {
	case donationdomain.FrequencyWeekly:
		return "week"
	case donationdomain.FrequencyYearly:
		return "year"
	default:
		return "month"
	}
}

// FrequencyForInterval maps a Stripe recurring interval back to a giving frequency.
func FrequencyForInterval(interval string) donationdomain.Frequency {
	switch interval {
	case "week":
		return donationdomain.FrequencyWeekly
	case "year":
		return donationdomain.FrequencyYearly
	case "month":
		return donationdomain.FrequencyMonthly
	default:
		return ""
	}
}
