package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/givingdesk/internal/clock"
	"github.com/smallbiznis/givingdesk/internal/donation/domain"
	obslogger "github.com/smallbiznis/givingdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/givingdesk/internal/observability/metrics"
	"github.com/smallbiznis/givingdesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Repo         domain.Repository
	Clock        clock.Clock
	Log          *zap.Logger
	GenID        *snowflake.Node
	Metrics      *obsmetrics.Metrics      `optional:"true"`
	StoreMetrics *obsmetrics.StoreMetrics `optional:"true"`
}

type Service struct {
	repo         domain.Repository
	clock        clock.Clock
	log          *zap.Logger
	genID        *snowflake.Node
	metrics      *obsmetrics.Metrics
	storeMetrics *obsmetrics.StoreMetrics
}

func NewService(p Params) domain.Store {
	return &Service{
		repo:         p.Repo,
		clock:        p.Clock,
		log:          p.Log.Named("donation.store"),
		genID:        p.GenID,
		metrics:      p.Metrics,
		storeMetrics: p.StoreMetrics,
	}
}

func (s *Service) LogDonationTransaction(ctx context.Context, tx domain.DonationTransaction) (result *domain.DonationTransaction, err error) {
	defer s.observe("log_transaction", time.Now(), &err)

	if err := validateTransaction(&tx); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return nil, fmt.Errorf("generate transaction id: %w", err)
	}
	tx.ID = id.String()
	tx.Metadata = maps.Clone(tx.Metadata)
	tx.CreatedAt = now
	tx.UpdatedAt = now

	if err := s.repo.Atomic(ctx, func(repoTx domain.Tx) error {
		return repoTx.InsertTransaction(&tx)
	}); err != nil {
		return nil, err
	}

	s.metrics.RecordDonation(ctx, tx.Category, string(tx.Type), string(tx.Status), tx.Amount)
	obslogger.WithContext(ctx, s.log).Info("donation transaction logged",
		zap.String("transaction_id", tx.ID),
		zap.String("status", string(tx.Status)),
		zap.String("category", tx.Category),
		zap.Float64("amount", tx.Amount),
	)
	return &tx, nil
}

func (s *Service) UpdateTransactionStatus(ctx context.Context, lookup domain.TransactionLookup, status domain.TransactionStatus, metadata map[string]any) (result *domain.DonationTransaction, err error) {
	defer s.observe("update_transaction_status", time.Now(), &err)

	if lookup.Empty() {
		return nil, domain.ErrEmptyLookup
	}
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	var updated *domain.DonationTransaction
	err = s.repo.Atomic(ctx, func(repoTx domain.Tx) error {
		current, err := repoTx.FindTransaction(lookup)
		if err != nil || current == nil {
			return err
		}
		if err := s.transition(current, status, metadata); err != nil {
			return err
		}
		if err := repoTx.UpdateTransaction(current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := obslogger.WithContext(ctx, s.log)
	if updated == nil {
		log.Debug("no transaction matched status update",
			zap.String("id", lookup.ID),
			zap.String("payment_intent_id", lookup.StripePaymentIntentID),
			zap.String("session_id", lookup.StripeSessionID),
		)
		return nil, nil
	}
	log.Info("donation transaction status updated",
		zap.String("transaction_id", updated.ID),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

func (s *Service) RecordPaymentOutcome(ctx context.Context, tx domain.DonationTransaction) (result *domain.DonationTransaction, err error) {
	defer s.observe("record_payment_outcome", time.Now(), &err)

	if tx.StripePaymentIntentID == "" {
		return nil, domain.ErrInvalidTransaction
	}
	if err := validateTransaction(&tx); err != nil {
		return nil, err
	}

	var (
		out     domain.DonationTransaction
		changed bool
	)
	err = s.repo.Atomic(ctx, func(repoTx domain.Tx) error {
		existing, err := repoTx.FindTransactionsByPaymentIntent(tx.StripePaymentIntentID)
		if err != nil {
			return err
		}
		for _, row := range existing {
			if row.Status == tx.Status {
				out = row
				return nil
			}
		}
		for _, row := range existing {
			if row.Status != domain.StatusPending {
				continue
			}
			if err := s.transition(&row, tx.Status, tx.Metadata); err != nil {
				return err
			}
			if err := repoTx.UpdateTransaction(&row); err != nil {
				return err
			}
			out, changed = row, true
			return nil
		}

		now := s.clock.Now()
		id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
		if err != nil {
			return fmt.Errorf("generate transaction id: %w", err)
		}
		tx.ID = id.String()
		tx.Metadata = maps.Clone(tx.Metadata)
		tx.CreatedAt = now
		tx.UpdatedAt = now
		if err := repoTx.InsertTransaction(&tx); err != nil {
			return err
		}
		out, changed = tx, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("transaction_id", out.ID),
		zap.String("payment_intent_id", out.StripePaymentIntentID),
		zap.String("status", string(out.Status)),
	)
	if !changed {
		log.Info("payment outcome already recorded")
		return &out, nil
	}
	s.metrics.RecordDonation(ctx, out.Category, string(out.Type), string(out.Status), out.Amount)
	log.Info("payment outcome recorded", zap.Float64("amount", out.Amount))
	return &out, nil
}

func (s *Service) GetDonationTransaction(ctx context.Context, lookup domain.TransactionLookup) (*domain.DonationTransaction, error) {
	if lookup.Empty() {
		return nil, domain.ErrEmptyLookup
	}
	items, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if lookup.Matches(item) {
			return &item, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (s *Service) ListTransactions(ctx context.Context) ([]domain.DonationTransaction, error) {
	return s.repo.ListTransactions(ctx)
}

func (s *Service) LogSubscriptionRecord(ctx context.Context, rec domain.SubscriptionRecord) (result *domain.SubscriptionRecord, err error) {
	defer s.observe("log_subscription", time.Now(), &err)

	rec.StripeSubscriptionID = strings.TrimSpace(rec.StripeSubscriptionID)
	if rec.StripeSubscriptionID == "" {
		return nil, domain.ErrInvalidSubscription
	}
	rec.Currency = strings.ToUpper(rec.Currency)

	saved, err := s.upsertSubscription(ctx, rec)
	if db.IsDuplicateKeyErr(err) {
		// a concurrent writer inserted the same subscription first
		saved, err = s.upsertSubscription(ctx, rec)
	}
	if err != nil {
		return nil, err
	}

	obslogger.WithContext(ctx, s.log).Info("subscription record saved",
		zap.String("subscription_id", saved.StripeSubscriptionID),
		zap.String("status", string(saved.Status)),
	)
	return saved, nil
}

func (s *Service) upsertSubscription(ctx context.Context, rec domain.SubscriptionRecord) (*domain.SubscriptionRecord, error) {
	var saved domain.SubscriptionRecord
	err := s.repo.Atomic(ctx, func(repoTx domain.Tx) error {
		existing, err := repoTx.FindSubscription(rec.StripeSubscriptionID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if existing == nil {
			rec.ID = s.genID.Generate().String()
			rec.CreatedAt = now
			rec.UpdatedAt = now
			saved = rec
			return repoTx.InsertSubscription(&saved)
		}

		mergeSubscription(existing, rec)
		existing.UpdatedAt = now
		saved = *existing
		return repoTx.UpdateSubscription(&saved)
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Service) UpdateSubscriptionRecord(ctx context.Context, stripeSubscriptionID string, update domain.SubscriptionUpdate) (result *domain.SubscriptionRecord, err error) {
	defer s.observe("update_subscription", time.Now(), &err)

	var saved *domain.SubscriptionRecord
	err = s.repo.Atomic(ctx, func(repoTx domain.Tx) error {
		existing, err := repoTx.FindSubscription(stripeSubscriptionID)
		if err != nil || existing == nil {
			return err
		}
		update.Apply(existing)
		existing.UpdatedAt = s.clock.Now()
		if err := repoTx.UpdateSubscription(existing); err != nil {
			return err
		}
		saved = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Service) GetSubscriptionRecord(ctx context.Context, stripeSubscriptionID string) (*domain.SubscriptionRecord, error) {
	items, err := s.repo.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.StripeSubscriptionID == stripeSubscriptionID {
			return &item, nil
		}
	}
	return nil, domain.ErrSubscriptionNotFound
}

func (s *Service) ListSubscriptions(ctx context.Context) ([]domain.SubscriptionRecord, error) {
	return s.repo.ListSubscriptions(ctx)
}

func (s *Service) LogWebhookEventData(ctx context.Context, ev domain.WebhookEvent) (err error) {
	defer s.observe("log_webhook_event", time.Now(), &err)

	ev.ID = s.genID.Generate().String()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.clock.Now()
	}
	return s.repo.Atomic(ctx, func(repoTx domain.Tx) error {
		return repoTx.AppendWebhookEvent(&ev, domain.MaxWebhookEvents)
	})
}

// ListWebhookEvents returns the audit log newest first. limit <= 0 means all.
func (s *Service) ListWebhookEvents(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	items, err := s.repo.ListWebhookEvents(ctx)
	if err != nil {
		return nil, err
	}
	slices.Reverse(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Service) transition(tx *domain.DonationTransaction, status domain.TransactionStatus, metadata map[string]any) error {
	if !tx.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, tx.Status, status)
	}
	if len(metadata) > 0 {
		merged := maps.Clone(tx.Metadata)
		if merged == nil {
			merged = make(map[string]any, len(metadata))
		}
		maps.Copy(merged, metadata)
		tx.Metadata = merged
	}
	tx.Status = status
	tx.UpdatedAt = s.clock.Now()
	return nil
}

func (s *Service) observe(operation string, start time.Time, err *error) {
	var opErr error
	if err != nil {
		opErr = *err
	}
	s.storeMetrics.ObserveOperation(s.repo.Driver(), operation, time.Since(start), opErr)
}

func validateTransaction(tx *domain.DonationTransaction) error {
	hasIntent := strings.TrimSpace(tx.StripePaymentIntentID) != ""
	hasSubscription := strings.TrimSpace(tx.StripeSubscriptionID) != ""
	if hasIntent == hasSubscription {
		return domain.ErrInvalidTransaction
	}
	if tx.Status == "" {
		tx.Status = domain.StatusPending
	}
	if !tx.Status.Valid() {
		return domain.ErrInvalidStatus
	}
	if tx.Type != domain.TypeOneOff && tx.Type != domain.TypeRecurring {
		return errors.Join(domain.ErrInvalidTransaction, fmt.Errorf("unknown donation type %q", tx.Type))
	}
	tx.Currency = strings.ToUpper(tx.Currency)
	return nil
}

// mergeSubscription overlays the non-zero fields of incoming on existing.
func mergeSubscription(existing *domain.SubscriptionRecord, incoming domain.SubscriptionRecord) {
	if incoming.StripeCustomerID != "" {
		existing.StripeCustomerID = incoming.StripeCustomerID
	}
	if incoming.Amount != 0 {
		existing.Amount = incoming.Amount
	}
	if incoming.Currency != "" {
		existing.Currency = incoming.Currency
	}
	if incoming.Category != "" {
		existing.Category = incoming.Category
	}
	if incoming.Frequency != "" {
		existing.Frequency = incoming.Frequency
	}
	if incoming.Status != "" {
		existing.Status = incoming.Status
	}
	if incoming.CustomerEmail != "" {
		existing.CustomerEmail = incoming.CustomerEmail
	}
	if incoming.NextPaymentDate != nil {
		next := *incoming.NextPaymentDate
		existing.NextPaymentDate = &next
	}
}
