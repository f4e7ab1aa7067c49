package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	StoreErrorDeadlineExceeded = "deadline_exceeded"
	StoreErrorLockTimeout      = "lock_timeout"
	StoreErrorSerialization    = "serialization_failure"
	StoreErrorUniqueViolation  = "unique_violation"
	StoreErrorNotFound         = "not_found"
	StoreErrorUnknown          = "unknown"
)

// StoreMetrics captures latency and failures of donation store units of work.
type StoreMetrics struct {
	opDuration *prometheus.HistogramVec
	opErrors   *prometheus.CounterVec
	lockWait   *prometheus.HistogramVec
}

func NewStoreMetrics(cfg Config) *StoreMetrics {
	return NewStoreMetricsWithRegisterer(prometheus.DefaultRegisterer, cfg)
}

func NewStoreMetricsWithRegisterer(registerer prometheus.Registerer, cfg Config) *StoreMetrics {
	constLabels := serviceLabels(cfg)

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "givingdesk_store_operation_duration_seconds",
		Help:        "Duration of donation store operations.",
		ConstLabels: constLabels,
		Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"driver", "operation"})
	opErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "givingdesk_store_operation_errors_total",
		Help:        "Failed donation store operations by error class.",
		ConstLabels: constLabels,
	}, []string{"driver", "operation", "error_type"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "givingdesk_store_lock_wait_seconds",
		Help:        "Time spent waiting for the store write lock.",
		ConstLabels: constLabels,
		Buckets:     []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"driver"})

	registerer.MustRegister(opDuration, opErrors, lockWait)

	return &StoreMetrics{opDuration: opDuration, opErrors: opErrors, lockWait: lockWait}
}

// ObserveOperation records one store call. Nil receivers are ignored.
func (m *StoreMetrics) ObserveOperation(driver, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(driver, operation).Observe(elapsed.Seconds())
	if err != nil {
		m.opErrors.WithLabelValues(driver, operation, ClassifyStoreError(err)).Inc()
	}
}

func (m *StoreMetrics) ObserveLockWait(driver string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(driver).Observe(elapsed.Seconds())
}

// ClassifyStoreError maps driver errors onto a small label set.
func ClassifyStoreError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return StoreErrorDeadlineExceeded
	case errors.Is(err, gorm.ErrRecordNotFound):
		return StoreErrorNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return StoreErrorUniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return StoreErrorLockTimeout
		case "40001", "40P01":
			return StoreErrorSerialization
		case "23505":
			return StoreErrorUniqueViolation
		}
	}
	return StoreErrorUnknown
}
