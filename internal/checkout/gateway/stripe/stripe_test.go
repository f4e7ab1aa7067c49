package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/givingdesk/internal/checkout/domain"
	"github.com/smallbiznis/givingdesk/internal/config"
	stripeapi "github.com/stripe/stripe-go/v81"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
		URL:               stripeapi.String(srv.URL),
		MaxNetworkRetries: stripeapi.Int64(0),
	})
	return newGatewayWithBackends("sk_test_123", &stripeapi.Backends{API: backend}, zaptest.NewLogger(t))
}

func TestGatewayWithoutKeyIsDisabled(t *testing.T) {
	gw := NewGateway(config.Config{}, zaptest.NewLogger(t))

	_, err := gw.CreateCheckoutSession(context.Background(), domain.SessionParams{})
	require.ErrorIs(t, err, domain.ErrGatewayNotConfigured)

	_, err = gw.GetSubscription(context.Background(), "sub_123")
	require.ErrorIs(t, err, domain.ErrGatewayNotConfigured)
}

func TestCreateCheckoutSessionSendsInlinePrice(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "2500", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "month", r.PostForm.Get("line_items[0][price_data][recurring][interval]"))
		assert.Equal(t, "Tithes", r.PostForm.Get("metadata[category]"))
		assert.Equal(t, "Tithes", r.PostForm.Get("subscription_data[metadata][category]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/cs_test_1"}`))
	})

	res, err := gw.CreateCheckoutSession(context.Background(), domain.SessionParams{
		Mode:        domain.ModeSubscription,
		AmountCents: 2500,
		Currency:    "usd",
		ProductName: "Tithes Donation (monthly)",
		Interval:    "month",
		Metadata:    map[string]string{"category": "Tithes"},
		SuccessURL:  "https://example.org/ok",
		CancelURL:   "https://example.org/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", res.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_test_1", res.URL)
}

func TestStripeErrorsAreTranslated(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such subscription: 'sub_missing'"}}`))
	})

	_, err := gw.GetSubscription(context.Background(), "sub_missing")
	require.Error(t, err)

	var gerr *domain.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "invalid_request_error", gerr.Type)
	assert.Equal(t, "resource_missing", gerr.Code)
	assert.Equal(t, http.StatusBadRequest, gerr.StatusCode)
	assert.True(t, gerr.IsClientError())
}

func TestTranslateNonStripeError(t *testing.T) {
	err := translateError(errors.New("dial tcp: timeout"))

	var gerr *domain.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "api_error", gerr.Type)
	assert.False(t, gerr.IsClientError())
}

func TestSubscriptionFromStripe(t *testing.T) {
	sub := subscriptionFromStripe(&stripeapi.Subscription{
		ID:               "sub_1",
		Status:           stripeapi.SubscriptionStatusIncomplete,
		Customer:         &stripeapi.Customer{ID: "cus_1"},
		CurrentPeriodEnd: 1735689600,
		Metadata:         map[string]string{"category": "Missions"},
		Items: &stripeapi.SubscriptionItemList{Data: []*stripeapi.SubscriptionItem{{
			ID: "si_1",
			Price: &stripeapi.Price{
				ID:         "price_1",
				UnitAmount: 5000,
				Currency:   stripeapi.CurrencyUSD,
				Recurring:  &stripeapi.PriceRecurring{Interval: stripeapi.PriceRecurringIntervalWeek},
			},
		}}},
		LatestInvoice: &stripeapi.Invoice{PaymentIntent: &stripeapi.PaymentIntent{ClientSecret: "pi_secret"}},
	})

	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "incomplete", sub.Status)
	assert.Equal(t, "si_1", sub.ItemID)
	assert.Equal(t, "price_1", sub.PriceID)
	assert.InDelta(t, 50.0, sub.Amount, 0.001)
	assert.Equal(t, "week", sub.Interval)
	assert.Equal(t, "pi_secret", sub.ClientSecret)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, int64(1735689600), sub.CurrentPeriodEnd.Unix())
}

func TestGetSubscriptionOmitsClientSecret(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("expand[0]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"sub_1","object":"subscription","status":"incomplete","customer":"cus_1",
"latest_invoice":{"id":"in_1","object":"invoice","payment_intent":{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret"}}}`))
	})

	sub, err := gw.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Empty(t, sub.ClientSecret)
}
