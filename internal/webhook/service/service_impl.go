package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/givingdesk/internal/clock"
	"github.com/smallbiznis/givingdesk/internal/config"
	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
	obscontext "github.com/smallbiznis/givingdesk/internal/observability/context"
	obslogger "github.com/smallbiznis/givingdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/givingdesk/internal/observability/metrics"
	"github.com/smallbiznis/givingdesk/internal/observability/tracing"
	"github.com/smallbiznis/givingdesk/internal/webhook/domain"
	"github.com/smallbiznis/givingdesk/internal/webhook/masking"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Store   donationdomain.Store
	Cfg     config.Config
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	store   donationdomain.Store
	secret  string
	clock   clock.Clock
	log     *zap.Logger
	metrics *obsmetrics.Metrics
	tracer  trace.Tracer
}

type handlerFunc func(ctx context.Context, event stripe.Event) error

func NewService(p Params) domain.Service {
	return &Service{
		store:   p.Store,
		secret:  strings.TrimSpace(p.Cfg.Stripe.WebhookSecret),
		clock:   p.Clock,
		log:     p.Log.Named("webhook"),
		metrics: p.Metrics,
		tracer:  otel.Tracer("givingdesk/webhook"),
	}
}

func (s *Service) Verify(payload []byte, signature string) (stripe.Event, error) {
	if s.secret == "" {
		return stripe.Event{}, domain.ErrWebhookSecretMissing
	}
	if strings.TrimSpace(signature) == "" {
		return stripe.Event{}, domain.ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.log.Warn("stripe signature rejected", zap.Error(err))
		return stripe.Event{}, domain.ErrInvalidSignature
	}
	return event, nil
}

func (s *Service) Dispatch(ctx context.Context, event stripe.Event) error {
	eventType := string(event.Type)
	ctx = obscontext.WithEventID(ctx, event.ID)
	ctx, span := s.tracer.Start(ctx, "webhook "+eventType, trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("stripe.event_id", event.ID),
		attribute.String("stripe.event_type", eventType),
	)...))
	defer span.End()

	handler, logOnly := s.route(eventType)

	var (
		err     error
		outcome = domain.OutcomeProcessed
	)
	switch {
	case handler != nil:
		err = handler(ctx, event)
		if err != nil {
			outcome = domain.OutcomeFailed
		}
	case logOnly:
		obslogger.WithContext(ctx, s.log).Info("invoice event received",
			zap.String("event_type", eventType),
			zap.String("object_id", objectID(event)),
		)
	default:
		outcome = domain.OutcomeIgnored
		obslogger.WithContext(ctx, s.log).Debug("unhandled stripe event", zap.String("event_type", eventType))
	}

	s.audit(ctx, event, outcome, err)
	s.metrics.RecordWebhookEvent(ctx, eventType, outcome)
	span.SetAttributes(attribute.String("webhook.outcome", outcome))

	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "handler failed")
		obslogger.WithContext(ctx, s.log).Error("webhook handler failed",
			zap.String("event_type", eventType),
			zap.String("event_id", event.ID),
			zap.String("object_id", objectID(event)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) route(eventType string) (handlerFunc, bool) {
	switch eventType {
	case domain.EventPaymentIntentSucceeded:
		return s.HandlePaymentSucceeded, false
	case domain.EventPaymentIntentFailed:
		return s.HandlePaymentFailed, false
	case domain.EventSubscriptionCreated:
		return s.HandleSubscriptionCreated, false
	case domain.EventSubscriptionUpdated:
		return s.HandleSubscriptionUpdated, false
	case domain.EventSubscriptionDeleted:
		return s.HandleSubscriptionDeleted, false
	case domain.EventInvoicePaymentSucceeded, domain.EventInvoicePaymentFailed:
		return nil, true
	default:
		return nil, false
	}
}

// audit never fails the delivery; the handler result wins.
func (s *Service) audit(ctx context.Context, event stripe.Event, outcome string, handlerErr error) {
	entry := donationdomain.WebhookEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
		Processed: outcome == domain.OutcomeProcessed,
		Timestamp: s.clock.Now(),
	}
	if event.Data != nil {
		entry.Data = masking.MaskFields(event.Data.Raw, masking.SensitiveKeys...)
	}
	switch {
	case handlerErr != nil:
		entry.Error = handlerErr.Error()
	case outcome == domain.OutcomeIgnored:
		entry.Error = "unhandled event type"
	}

	if err := s.store.LogWebhookEventData(ctx, entry); err != nil {
		obslogger.WithContext(ctx, s.log).Error("failed to record webhook event",
			zap.String("event_type", entry.EventType),
			zap.Error(err),
		)
	}
}

func objectID(event stripe.Event) string {
	if event.Data == nil || event.Data.Object == nil {
		return ""
	}
	id, _ := event.Data.Object["id"].(string)
	return id
}

func isNotFound(err error) bool {
	return errors.Is(err, donationdomain.ErrSubscriptionNotFound) || errors.Is(err, donationdomain.ErrTransactionNotFound)
}
