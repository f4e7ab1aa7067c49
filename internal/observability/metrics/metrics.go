package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes donation-level instruments.
type Metrics struct {
	webhookEvents     metric.Int64Counter
	donationsRecorded metric.Int64Counter
	donationAmount    metric.Float64Counter
	checkoutSessions  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "givingdesk"
	}
	meter := provider.Meter(name)

	webhookEvents, err := meter.Int64Counter("givingdesk_webhook_events_total",
		metric.WithDescription("Stripe webhook events by type and outcome"))
	if err != nil {
		return nil, err
	}
	donationsRecorded, err := meter.Int64Counter("givingdesk_donations_recorded_total",
		metric.WithDescription("Donation transactions written to the store"))
	if err != nil {
		return nil, err
	}
	donationAmount, err := meter.Float64Counter("givingdesk_donation_amount_total",
		metric.WithDescription("Completed donation volume in major currency units"))
	if err != nil {
		return nil, err
	}
	checkoutSessions, err := meter.Int64Counter("givingdesk_checkout_sessions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookEvents:     webhookEvents,
		donationsRecorded: donationsRecorded,
		donationAmount:    donationAmount,
		checkoutSessions:  checkoutSessions,
	}, nil
}

// RecordWebhookEvent counts one dispatched Stripe event.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDonation counts a stored transaction. Amount only accrues for completed gifts.
func (m *Metrics) RecordDonation(ctx context.Context, category, donationType, status string, amount float64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("category", category),
		attribute.String("type", donationType),
		attribute.String("status", status),
	)
	m.donationsRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
	if status == "completed" && amount > 0 {
		m.donationAmount.Add(ctx, amount, metric.WithAttributes(attrs...))
	}
}

func (m *Metrics) RecordCheckoutSession(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.checkoutSessions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("mode", mode))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"event_type": {},
	"outcome":    {},
	"category":   {},
	"type":       {},
	"status":     {},
	"mode":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
// Donor e-mails and Stripe object ids must never become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
