package domain

import (
	"context"
	"errors"
	"io"
	"time"

	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
	"github.com/smallbiznis/givingdesk/pkg/db/pagination"
)

// Service answers the admin dashboard from the donation store.
type Service interface {
	GetDonationTransactions(ctx context.Context, filters TransactionFilters, sort Sort, page pagination.Pagination) (*TransactionPage, error)
	GetDonationSummary(ctx context.Context, filters TransactionFilters) (*Summary, error)
	GetDonationAnalytics(ctx context.Context, start, end time.Time, compareWithPrevious bool) (*Analytics, error)
	ListSubscriptions(ctx context.Context, status donationdomain.SubscriptionStatus) ([]donationdomain.SubscriptionRecord, error)
	ExportTransactionsCSV(ctx context.Context, filters TransactionFilters, w io.Writer) (int, error)
	RenderReportPDF(ctx context.Context, start, end time.Time) ([]byte, error)
}

var (
	ErrInvalidDateRange = errors.New("start date must not be after end date")
	ErrInvalidSort      = errors.New("invalid sort field")
)
