package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
	obslogger "github.com/smallbiznis/givingdesk/internal/observability/logger"
	"github.com/smallbiznis/givingdesk/internal/webhook/domain"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
)

func (s *Service) HandleSubscriptionCreated(ctx context.Context, event stripe.Event) error {
	sub, err := decodeSubscription(event)
	if err != nil {
		return err
	}
	rec := recordFromSubscription(sub)
	saved, err := s.store.LogSubscriptionRecord(ctx, rec)
	if err != nil {
		return fmt.Errorf("record subscription %s: %w", sub.ID, err)
	}
	obslogger.WithContext(ctx, s.log).Info("subscription recorded",
		zap.String("subscription_id", saved.StripeSubscriptionID),
		zap.String("status", string(saved.Status)),
		zap.Float64("amount", saved.Amount),
	)
	return nil
}

func (s *Service) HandleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	sub, err := decodeSubscription(event)
	if err != nil {
		return err
	}
	status := MapSubscriptionStatus(sub.Status)
	update := donationdomain.SubscriptionUpdate{
		Status:          &status,
		NextPaymentDate: periodEnd(sub),
	}
	if price := firstPrice(sub); price != nil {
		amount := float64(price.UnitAmount) / 100
		update.Amount = &amount
	}
	return s.applySubscriptionUpdate(ctx, sub.ID, update)
}

func (s *Service) HandleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	sub, err := decodeSubscription(event)
	if err != nil {
		return err
	}
	status := donationdomain.SubscriptionCancelled
	return s.applySubscriptionUpdate(ctx, sub.ID, donationdomain.SubscriptionUpdate{Status: &status})
}

func (s *Service) applySubscriptionUpdate(ctx context.Context, id string, update donationdomain.SubscriptionUpdate) error {
	saved, err := s.store.UpdateSubscriptionRecord(ctx, id, update)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("update subscription %s: %w", id, err)
	}
	// The store answers (nil, nil) when no record matches.
	if saved == nil {
		obslogger.WithContext(ctx, s.log).Warn("subscription update for unknown record",
			zap.String("subscription_id", id),
		)
		return nil
	}
	obslogger.WithContext(ctx, s.log).Info("subscription updated",
		zap.String("subscription_id", id),
		zap.String("status", string(saved.Status)),
	)
	return nil
}

// MapSubscriptionStatus folds Stripe's subscription states into the local set.
func MapSubscriptionStatus(status stripe.SubscriptionStatus) donationdomain.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return donationdomain.SubscriptionActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusPaused:
		return donationdomain.SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return donationdomain.SubscriptionCancelled
	default:
		return donationdomain.SubscriptionUnpaid
	}
}

func decodeSubscription(event stripe.Event) (*stripe.Subscription, error) {
	if event.Data == nil {
		return nil, domain.ErrInvalidPayload
	}
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("%w: subscription without id", domain.ErrInvalidPayload)
	}
	return &sub, nil
}

func recordFromSubscription(sub *stripe.Subscription) donationdomain.SubscriptionRecord {
	rec := donationdomain.SubscriptionRecord{
		StripeSubscriptionID: sub.ID,
		Category:             sub.Metadata["category"],
		Frequency:            donationdomain.Frequency(sub.Metadata["frequency"]),
		Status:               MapSubscriptionStatus(sub.Status),
		CustomerEmail:        sub.Metadata["email"],
		NextPaymentDate:      periodEnd(sub),
	}
	if sub.Customer != nil {
		rec.StripeCustomerID = sub.Customer.ID
		if rec.CustomerEmail == "" {
			rec.CustomerEmail = sub.Customer.Email
		}
	}
	if rec.Category == "" {
		rec.Category = domain.DefaultCategory
	}
	if price := firstPrice(sub); price != nil {
		rec.Amount = float64(price.UnitAmount) / 100
		rec.Currency = strings.ToUpper(string(price.Currency))
		if rec.Frequency == "" && price.Recurring != nil {
			rec.Frequency = frequencyFromInterval(price.Recurring.Interval)
		}
	}
	return rec
}

func firstPrice(sub *stripe.Subscription) *stripe.Price {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0].Price
}

func periodEnd(sub *stripe.Subscription) *time.Time {
	if sub.CurrentPeriodEnd <= 0 {
		return nil
	}
	t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	return &t
}

func frequencyFromInterval(interval stripe.PriceRecurringInterval) donationdomain.Frequency {
	switch interval {
	case stripe.PriceRecurringIntervalWeek:
		return donationdomain.FrequencyWeekly
	case stripe.PriceRecurringIntervalYear:
		return donationdomain.FrequencyYearly
	default:
		return donationdomain.FrequencyMonthly
	}
}
