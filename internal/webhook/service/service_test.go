package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/givingdesk/internal/clock"
	"github.com/smallbiznis/givingdesk/internal/config"
	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
	"github.com/smallbiznis/givingdesk/internal/donation/repository"
	donationservice "github.com/smallbiznis/givingdesk/internal/donation/service"
	"github.com/smallbiznis/givingdesk/internal/webhook/domain"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "whsec_test_secret"

func newStore(t *testing.T) donationdomain.Store {
	t.Helper()
	repo, err := repository.NewFileRepository(t.TempDir(), nil, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return donationservice.NewService(donationservice.Params{
		Repo:  repo,
		Clock: clock.NewFakeClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)),
		Log:   zaptest.NewLogger(t),
		GenID: node,
	})
}

func newTestService(t *testing.T, store donationdomain.Store) *Service {
	t.Helper()
	return NewService(Params{
		Store: store,
		Cfg:   config.Config{Stripe: config.StripeConfig{WebhookSecret: testSecret}},
		Clock: clock.NewFakeClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)),
		Log:   zaptest.NewLogger(t),
	}).(*Service)
}

func event(t *testing.T, id, eventType, object string) stripe.Event {
	t.Helper()
	raw := fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"data":{"object":%s}}`, id, eventType, object)
	var ev stripe.Event
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return ev
}

func paymentIntentJSON(id string, amountReceived int64, metadata string) string {
	return fmt.Sprintf(`{"id":%q,"object":"payment_intent","amount":%d,"amount_received":%d,"currency":"usd","receipt_email":"receipt@example.org","metadata":%s}`,
		id, amountReceived, amountReceived, metadata)
}

func TestVerify(t *testing.T) {
	svc := newTestService(t, newStore(t))
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","api_version":"2020-08-27","data":{"object":{"id":"pi_1"}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret})
	ev, err := svc.Verify(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)

	wrong := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_other"})
	_, err = svc.Verify(wrong.Payload, wrong.Header)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = svc.Verify(payload, "")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyWithoutSecret(t *testing.T) {
	svc := NewService(Params{
		Store: newStore(t),
		Clock: clock.NewFakeClock(time.Now()),
		Log:   zaptest.NewLogger(t),
	})
	_, err := svc.Verify([]byte(`{}`), "t=1,v1=abc")
	assert.ErrorIs(t, err, domain.ErrWebhookSecretMissing)
}

func TestPaymentSucceededCreatesCompletedTransaction(t *testing.T) {
	store := newStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	ev := event(t, "evt_1", domain.EventPaymentIntentSucceeded, paymentIntentJSON("pi_1", 2550, `{"category":"Missions"}`))
	require.NoError(t, svc.Dispatch(ctx, ev))

	tx, err := store.GetDonationTransaction(ctx, donationdomain.TransactionLookup{StripePaymentIntentID: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, donationdomain.StatusCompleted, tx.Status)
	assert.Equal(t, donationdomain.TypeOneOff, tx.Type)
	assert.InDelta(t, 25.50, tx.Amount, 0.0001)
	assert.Equal(t, "USD", tx.Currency)
	assert.Equal(t, "Missions", tx.Category)
	assert.Equal(t, "receipt@example.org", tx.CustomerEmail)

	events, err := store.ListWebhookEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Processed)
	assert.Equal(t, "evt_1", events[0].EventID)
	assert.Empty(t, events[0].Error)
}

func TestAuditMasksClientSecret(t *testing.T) {
	store := newStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	object := `{"id":"pi_9","object":"payment_intent","amount":1000,"amount_received":1000,"currency":"usd","client_secret":"pi_9_secret_abcdef1234","metadata":{}}`
	require.NoError(t, svc.Dispatch(ctx, event(t, "evt_9", domain.EventPaymentIntentSucceeded, object)))

	events, err := store.ListWebhookEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotContains(t, string(events[0].Data), "abcdef1234")
	assert.Contains(t, string(events[0].Data), "pi_9_secret_****1234")
}

func TestPaymentSucceededIsIdempotent(t *testing.T) {
	store := newStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	ev := event(t, "evt_1", domain.EventPaymentIntentSucceeded, paymentIntentJSON("pi_1", 1000, `{}`))
	require.NoError(t, svc.Dispatch(ctx, ev))
	require.NoError(t, svc.Dispatch(ctx, ev))

	items, err := store.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.DefaultCategory, items[0].Category)
}

func TestPaymentSucceededTransitionsPendingRow(t *testing.T) {
	store := newStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	_, err := store.LogDonationTransaction(ctx, donationdomain.DonationTransaction{
		StripeSessionID:       "cs_1",
		StripePaymentIntentID: "pi_1",
		Amount:                10,
		Currency:              "usd",
		Category:              "Tithes",
		Type:                  donationdomain.TypeOneOff,
		Status:                donationdomain.StatusPending,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Dispatch(ctx, event(t, "evt_1", domain.EventPaymentIntentSucceeded, paymentIntentJSON("pi_1", 1000, `{}`))))

	items, err := store.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, donationdomain.StatusCompleted, items[0].Status)
	assert.Equal(t, "cs_1", items[0].StripeSessionID)
}

func TestPaymentFailedRecordsReason(t *testing.T) {
	store := newStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	object := `{"id":"pi_2","object":"payment_intent","amount":5000,"currency":"usd","metadata":{"category":"Tithes","email":"donor@example.org"},
		"last_payment_error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`
	require.NoError(t, svc.Dispatch(ctx, event(t, "evt_2", domain.EventPaymentIntentFailed, object)))

	tx, err := store.GetDonationTransaction(ctx, donationdomain.TransactionLookup{StripePaymentIntentID: "pi_2"})
	require.NoError(t, err)
	assert.Equal(t, donationdomain.StatusFailed, tx.Status)
	assert.InDelta(t, 50.0, tx.Amount, 0.0001)
	assert.Equal(t, "donor@example.org", tx.CustomerEmail)
	assert.Equal(t, "Your card was declined.", tx.Metadata["failureReason"])
	assert.Equal(t, "card_declined", tx.Metadata["failureCode"])
}

func TestFailedThenSucceededAppendsSecondRow(t *testing.T) {
	store := newStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.Dispatch(ctx, event(t, "evt_1", domain.EventPaymentIntentFailed, paymentIntentJSON("pi_3", 0, `{}`))))
	require.NoError(t, svc.Dispatch(ctx, event(t, "evt_2", domain.EventPaymentIntentSucceeded, paymentIntentJSON("pi_3", 1500, `{}`))))

	items, err := store.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, donationdomain.StatusFailed, items[0].Status)
	assert.Equal(t, donationdomain.StatusCompleted, items[1].Status)
}

const subscriptionJSON = `{
	"id": "sub_1",
	"object": "subscription",
	"customer": "cus_1",
	"status": "trialing",
	"current_period_end": 1717200000,
	"metadata": {"category": "Building Fund", "email": "donor@example.org"},
	"items": {"object": "list", "data": [{"id": "si_1", "object": "subscription_item",
		"price": {"id": "price_1", "object": "price", "unit_amount": 2500, "currency": "usd", "recurring": {"interval": "week"}}}]}
}`

func TestSubscriptionLifecycle(t *testing.T) {
	store := newStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.Dispatch(ctx, event(t, "evt_c", domain.EventSubscriptionCreated, subscriptionJSON)))
	require.NoError(t, svc.Dispatch(ctx, event(t, "evt_c", domain.EventSubscriptionCreated, subscriptionJSON)))

	subs, err := store.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	rec := subs[0]
	assert.Equal(t, "cus_1", rec.StripeCustomerID)
	assert.Equal(t, donationdomain.SubscriptionActive, rec.Status)
	assert.Equal(t, donationdomain.FrequencyWeekly, rec.Frequency)
	assert.Equal(t, "Building Fund", rec.Category)
	assert.Equal(t, "USD", rec.Currency)
	assert.InDelta(t, 25.0, rec.Amount, 0.0001)
	require.NotNil(t, rec.NextPaymentDate)
	assert.Equal(t, int64(1717200000), rec.NextPaymentDate.Unix())

	updated := `{"id":"sub_1","object":"subscription","customer":"cus_1","status":"past_due","current_period_end":1719792000,
		"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":"price_2","object":"price","unit_amount":4000,"currency":"usd"}}]}}`
	require.NoError(t, svc.Dispatch(ctx, event(t, "evt_u", domain.EventSubscriptionUpdated, updated)))

	got, err := store.GetSubscriptionRecord(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, donationdomain.SubscriptionPastDue, got.Status)
	assert.InDelta(t, 40.0, got.Amount, 0.0001)
	assert.Equal(t, "Building Fund", got.Category)
	assert.Equal(t, int64(1719792000), got.NextPaymentDate.Unix())

	require.NoError(t, svc.Dispatch(ctx, event(t, "evt_d", domain.EventSubscriptionDeleted, `{"id":"sub_1","object":"subscription","status":"canceled"}`)))
	got, err = store.GetSubscriptionRecord(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, donationdomain.SubscriptionCancelled, got.Status)
}

func TestSubscriptionUpdateForUnknownRecordIsIgnored(t *testing.T) {
	store := newStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	err := svc.Dispatch(ctx, event(t, "evt_u", domain.EventSubscriptionUpdated, `{"id":"sub_missing","object":"subscription","status":"active"}`))
	require.NoError(t, err)

	subs, err := store.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)

	events, err := store.ListWebhookEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Processed)
	assert.Empty(t, events[0].Error)
}

func TestSubscriptionDeleteForUnknownRecordIsAudited(t *testing.T) {
	store := newStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NotPanics(t, func() {
		err := svc.Dispatch(ctx, event(t, "evt_gone", domain.EventSubscriptionDeleted, `{"id":"sub_gone","object":"subscription","status":"canceled"}`))
		require.NoError(t, err)
	})

	events, err := store.ListWebhookEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt_gone", events[0].EventID)
	assert.Equal(t, domain.EventSubscriptionDeleted, events[0].EventType)
	assert.True(t, events[0].Processed)
	assert.Empty(t, events[0].Error)

	_, err = store.GetSubscriptionRecord(ctx, "sub_gone")
	assert.ErrorIs(t, err, donationdomain.ErrSubscriptionNotFound)
}

func TestUnhandledAndInvoiceEvents(t *testing.T) {
	store := newStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.Dispatch(ctx, event(t, "evt_i", domain.EventInvoicePaymentSucceeded, `{"id":"in_1","object":"invoice"}`)))
	require.NoError(t, svc.Dispatch(ctx, event(t, "evt_x", "charge.refunded", `{"id":"ch_1","object":"charge"}`)))

	events, err := store.ListWebhookEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "charge.refunded", events[0].EventType)
	assert.False(t, events[0].Processed)
	assert.True(t, events[1].Processed)

	items, err := store.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestHandlerFailureIsAuditedAndReturned(t *testing.T) {
	store := newStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	err := svc.Dispatch(ctx, event(t, "evt_bad", domain.EventPaymentIntentSucceeded, `{"object":"payment_intent","amount":100}`))
	require.ErrorIs(t, err, domain.ErrInvalidPayload)

	events, err := store.ListWebhookEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Processed)
	assert.Contains(t, events[0].Error, "invalid webhook payload")
}

type failingAuditStore struct {
	donationdomain.Store
}

func (failingAuditStore) LogWebhookEventData(context.Context, donationdomain.WebhookEvent) error {
	return errors.New("disk full")
}

func TestAuditFailureDoesNotMaskResult(t *testing.T) {
	store := failingAuditStore{Store: newStore(t)}
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.Dispatch(ctx, event(t, "evt_1", domain.EventPaymentIntentSucceeded, paymentIntentJSON("pi_1", 1000, `{}`))))

	items, err := store.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMapSubscriptionStatus(t *testing.T) {
	cases := map[stripe.SubscriptionStatus]donationdomain.SubscriptionStatus{
		stripe.SubscriptionStatusActive:            donationdomain.SubscriptionActive,
		stripe.SubscriptionStatusTrialing:          donationdomain.SubscriptionActive,
		stripe.SubscriptionStatusPastDue:           donationdomain.SubscriptionPastDue,
		stripe.SubscriptionStatusPaused:            donationdomain.SubscriptionPastDue,
		stripe.SubscriptionStatusUnpaid:            donationdomain.SubscriptionUnpaid,
		stripe.SubscriptionStatusIncomplete:        donationdomain.SubscriptionUnpaid,
		stripe.SubscriptionStatusCanceled:          donationdomain.SubscriptionCancelled,
		stripe.SubscriptionStatusIncompleteExpired: donationdomain.SubscriptionCancelled,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapSubscriptionStatus(in), string(in))
	}
}
