package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
	obslogger "github.com/smallbiznis/givingdesk/internal/observability/logger"
	"github.com/smallbiznis/givingdesk/internal/webhook/domain"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
)

func (s *Service) HandlePaymentSucceeded(ctx context.Context, event stripe.Event) error {
	pi, err := decodePaymentIntent(event)
	if err != nil {
		return err
	}
	tx := transactionFromPaymentIntent(pi, donationdomain.StatusCompleted)
	return s.recordPayment(ctx, tx)
}

func (s *Service) HandlePaymentFailed(ctx context.Context, event stripe.Event) error {
	pi, err := decodePaymentIntent(event)
	if err != nil {
		return err
	}
	tx := transactionFromPaymentIntent(pi, donationdomain.StatusFailed)
	if pi.LastPaymentError != nil {
		tx.Metadata["failureReason"] = pi.LastPaymentError.Msg
		tx.Metadata["failureCode"] = string(pi.LastPaymentError.Code)
	}
	return s.recordPayment(ctx, tx)
}

func (s *Service) recordPayment(ctx context.Context, tx donationdomain.DonationTransaction) error {
	saved, err := s.store.RecordPaymentOutcome(ctx, tx)
	if err != nil {
		return fmt.Errorf("record payment %s: %w", tx.StripePaymentIntentID, err)
	}
	obslogger.WithContext(ctx, s.log).Debug("payment applied",
		zap.String("transaction_id", saved.ID),
		zap.String("payment_intent_id", saved.StripePaymentIntentID),
	)
	return nil
}

func decodePaymentIntent(event stripe.Event) (*stripe.PaymentIntent, error) {
	if event.Data == nil {
		return nil, domain.ErrInvalidPayload
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if pi.ID == "" {
		return nil, fmt.Errorf("%w: payment intent without id", domain.ErrInvalidPayload)
	}
	return &pi, nil
}

func transactionFromPaymentIntent(pi *stripe.PaymentIntent, status donationdomain.TransactionStatus) donationdomain.DonationTransaction {
	cents := pi.AmountReceived
	if cents == 0 {
		cents = pi.Amount
	}
	category := pi.Metadata["category"]
	if category == "" {
		category = domain.DefaultCategory
	}
	email := pi.Metadata["email"]
	if email == "" {
		email = pi.ReceiptEmail
	}

	metadata := make(map[string]any, len(pi.Metadata))
	for k, v := range pi.Metadata {
		metadata[k] = v
	}

	return donationdomain.DonationTransaction{
		StripePaymentIntentID: pi.ID,
		Amount:                float64(cents) / 100,
		Currency:              strings.ToUpper(string(pi.Currency)),
		Category:              category,
		Type:                  donationdomain.TypeOneOff,
		Status:                status,
		CustomerEmail:         email,
		Metadata:              metadata,
	}
}
