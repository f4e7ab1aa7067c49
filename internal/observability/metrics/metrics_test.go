package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	"gorm.io/gorm"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestFilterAttributesDropsHighCardinalityKeys(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "payment_intent.succeeded"),
		attribute.String("customer_email", "a@b.com"),
		attribute.String("payment_intent_id", "pi_1"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("event_type"), attrs[0].Key)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordWebhookEvent(context.Background(), "x", "processed")
	m.RecordDonation(context.Background(), "Tithes", "oneoff", "completed", 10)

	var s *StoreMetrics
	s.ObserveOperation("file", "log_transaction", time.Millisecond, errors.New("boom"))
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordWebhookEvent(context.Background(), "payment_intent.succeeded", "processed")
	m.RecordDonation(context.Background(), "Tithes", "oneoff", "completed", 50)
	m.RecordCheckoutSession(context.Background(), "payment")
}

func TestStoreMetricsCountsErrorsByClass(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStoreMetricsWithRegisterer(reg, Config{ServiceName: "test"})

	m.ObserveOperation("sql", "update_transaction", time.Millisecond, &pgconn.PgError{Code: "23505"})
	m.ObserveOperation("sql", "update_transaction", time.Millisecond, nil)

	c, err := m.opErrors.GetMetricWithLabelValues("sql", "update_transaction", StoreErrorUniqueViolation)
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, c))
}

func TestClassifyStoreError(t *testing.T) {
	assert.Equal(t, "", ClassifyStoreError(nil))
	assert.Equal(t, StoreErrorDeadlineExceeded, ClassifyStoreError(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.Equal(t, StoreErrorNotFound, ClassifyStoreError(gorm.ErrRecordNotFound))
	assert.Equal(t, StoreErrorLockTimeout, ClassifyStoreError(&pgconn.PgError{Code: "55P03"}))
	assert.Equal(t, StoreErrorSerialization, ClassifyStoreError(&pgconn.PgError{Code: "40001"}))
	assert.Equal(t, StoreErrorUnknown, ClassifyStoreError(errors.New("disk full")))
}

func TestHTTPMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := newHTTPMetrics(reg, Config{})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/api/admin/donations/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/admin/donations/abc", nil))

	c, err := m.requests.GetMetricWithLabelValues("/api/admin/donations/:id", "GET", "404")
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, c))
}
