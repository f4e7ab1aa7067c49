package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/givingdesk/internal/clock"
	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
	"github.com/smallbiznis/givingdesk/internal/donation/repository"
	donationservice "github.com/smallbiznis/givingdesk/internal/donation/service"
	"github.com/smallbiznis/givingdesk/internal/providers/pdf"
	"github.com/smallbiznis/givingdesk/internal/reporting/domain"
	"github.com/smallbiznis/givingdesk/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var day0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type gift struct {
	day      int
	amount   float64
	category string
	status   donationdomain.TransactionStatus
	email    string
	kind     donationdomain.DonationType
}

type fixture struct {
	svc   *Service
	store donationdomain.Store
	clock *clock.FakeClock
	pdf   *recordingPDF
}

type recordingPDF struct {
	last pdf.ReportData
}

func (r *recordingPDF) GenerateReport(_ context.Context, data pdf.ReportData) ([]byte, error) {
	r.last = data
	return []byte("%PDF-1.3 test"), nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := repository.NewFileRepository(t.TempDir(), nil, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(day0)
	store := donationservice.NewService(donationservice.Params{Repo: repo, Clock: fc, Log: zaptest.NewLogger(t), GenID: node})
	rec := &recordingPDF{}
	svc := NewService(Params{Store: store, PDF: rec, Clock: fc, Log: zaptest.NewLogger(t)}).(*Service)
	return &fixture{svc: svc, store: store, clock: fc, pdf: rec}
}

// seed writes gifts in order; each gift is created at day0 + day days.
func (f *fixture) seed(t *testing.T, gifts ...gift) {
	t.Helper()
	for i, g := range gifts {
		target := day0.AddDate(0, 0, g.day).Add(time.Duration(i) * time.Minute)
		f.clock.Advance(target.Sub(f.clock.Now()))

		kind := g.kind
		if kind == "" {
			kind = donationdomain.TypeOneOff
		}
		tx := donationdomain.DonationTransaction{
			StripeSessionID: fmt.Sprintf("cs_%d", i),
			Amount:          g.amount,
			Currency:        "usd",
			Category:        g.category,
			Type:            kind,
			Status:          g.status,
			CustomerEmail:   g.email,
		}
		if kind == donationdomain.TypeRecurring {
			tx.StripeSubscriptionID = fmt.Sprintf("sub_%d", i)
			tx.Frequency = donationdomain.FrequencyMonthly
		} else {
			tx.StripePaymentIntentID = fmt.Sprintf("pi_%d", i)
		}
		_, err := f.store.LogDonationTransaction(context.Background(), tx)
		require.NoError(t, err)
	}
}

func standardGifts() []gift {
	return []gift{
		{day: 0, amount: 100, category: "Tithes", status: donationdomain.StatusCompleted, email: "a@example.org"},
		{day: 0, amount: 25.5, category: "Offerings", status: donationdomain.StatusCompleted, email: "B@example.org"},
		{day: 1, amount: 40, category: "Missions", status: donationdomain.StatusFailed, email: "c@example.org"},
		{day: 2, amount: 60, category: "Tithes", status: donationdomain.StatusPending, email: "a@example.org"},
		{day: 3, amount: 10, category: "Building Fund", status: donationdomain.StatusCompleted, email: "b@example.org", kind: donationdomain.TypeRecurring},
	}
}

func TestGetDonationTransactionsDefaultsToNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.seed(t, standardGifts()...)

	page, err := f.svc.GetDonationTransactions(context.Background(), domain.TransactionFilters{}, domain.Sort{}, pagination.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Data, 5)
	assert.Equal(t, "Building Fund", page.Data[0].Category)
	assert.Equal(t, "Tithes", page.Data[4].Category)
}

func TestGetDonationTransactionsFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, standardGifts()...)
	ctx := context.Background()

	page, err := f.svc.GetDonationTransactions(ctx, domain.TransactionFilters{Email: "b@EXAMPLE"},
		domain.Sort{Field: domain.SortAmount, Direction: domain.SortAsc}, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, 10.0, page.Data[0].Amount)
	assert.Equal(t, 25.5, page.Data[1].Amount)

	minAmount, maxAmount := 20.0, 60.0
	page, err = f.svc.GetDonationTransactions(ctx, domain.TransactionFilters{MinAmount: &minAmount, MaxAmount: &maxAmount},
		domain.DefaultSort(), pagination.Pagination{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Data, 1)
	assert.Equal(t, 25.5, page.Data[0].Amount)

	start := day0.AddDate(0, 0, 1)
	end := day0.AddDate(0, 0, 2).Add(time.Hour)
	page, err = f.svc.GetDonationTransactions(ctx, domain.TransactionFilters{StartDate: &start, EndDate: &end},
		domain.DefaultSort(), pagination.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = f.svc.GetDonationTransactions(ctx, domain.TransactionFilters{Status: donationdomain.StatusPending, Type: donationdomain.TypeOneOff},
		domain.DefaultSort(), pagination.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestGetDonationTransactionsPageBeyondEnd(t *testing.T) {
	f := newFixture(t)
	f.seed(t, standardGifts()...)

	page, err := f.svc.GetDonationTransactions(context.Background(), domain.TransactionFilters{}, domain.DefaultSort(), pagination.Pagination{Page: 9, Limit: 500})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, 100, page.Limit)
}

func TestGetDonationTransactionsRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetDonationTransactions(ctx, domain.TransactionFilters{}, domain.Sort{Field: "secret"}, pagination.Pagination{})
	assert.ErrorIs(t, err, domain.ErrInvalidSort)

	start, end := day0, day0.Add(-time.Hour)
	_, err = f.svc.GetDonationTransactions(ctx, domain.TransactionFilters{StartDate: &start, EndDate: &end}, domain.DefaultSort(), pagination.Pagination{})
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)
}

func TestGetDonationSummary(t *testing.T) {
	f := newFixture(t)
	f.seed(t, standardGifts()...)

	summary, err := f.svc.GetDonationSummary(context.Background(), domain.TransactionFilters{})
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalTransactions)
	assert.InDelta(t, 135.5, summary.TotalAmount, 0.001)
	assert.InDelta(t, 45.17, summary.AverageAmount, 0.001)

	assert.Equal(t, domain.Bucket{Count: 2, Amount: 100}, summary.ByCategory["Tithes"])
	assert.Equal(t, domain.Bucket{Count: 1, Amount: 0}, summary.ByCategory["Missions"])
	assert.Equal(t, domain.Bucket{Count: 1, Amount: 0}, summary.ByStatus["failed"])
	assert.Equal(t, domain.Bucket{Count: 3, Amount: 135.5}, summary.ByStatus["completed"])
	assert.Equal(t, domain.Bucket{Count: 1, Amount: 10}, summary.ByType["recurring"])

	require.Len(t, summary.RecentTransactions, 5)
	assert.Equal(t, "Building Fund", summary.RecentTransactions[0].Category)
}

func TestGetDonationSummaryEmpty(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.GetDonationSummary(context.Background(), domain.TransactionFilters{})
	require.NoError(t, err)
	assert.Zero(t, summary.TotalTransactions)
	assert.Zero(t, summary.AverageAmount)
	assert.Empty(t, summary.RecentTransactions)
}

func TestGetDonationAnalyticsWithComparison(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		gift{day: 0, amount: 50, category: "Tithes", status: donationdomain.StatusCompleted, email: "a@example.org"},
		gift{day: 1, amount: 30, category: "Missions", status: donationdomain.StatusCompleted, email: "b@example.org"},
		gift{day: 10, amount: 70, category: "Tithes", status: donationdomain.StatusCompleted, email: "a@example.org"},
		gift{day: 11, amount: 50, category: "Offerings", status: donationdomain.StatusCompleted, email: "A@example.org"},
		gift{day: 11, amount: 999, category: "Tithes", status: donationdomain.StatusFailed, email: "z@example.org"},
	)

	start := day0.AddDate(0, 0, 7)
	end := day0.AddDate(0, 0, 14)
	a, err := f.svc.GetDonationAnalytics(context.Background(), start, end, true)
	require.NoError(t, err)

	assert.InDelta(t, 120.0, a.TotalAmount, 0.001)
	assert.Equal(t, 2, a.TransactionCount)
	assert.InDelta(t, 60.0, a.AverageAmount, 0.001)
	assert.Equal(t, 1, a.UniqueDonors)
	require.Len(t, a.TopCategories, 2)
	assert.Equal(t, "Tithes", a.TopCategories[0].Category)
	require.Len(t, a.Daily, 2)
	assert.Equal(t, "2024-03-11", a.Daily[0].Date)

	require.NotNil(t, a.Previous)
	assert.InDelta(t, 80.0, a.Previous.TotalAmount, 0.001)
	assert.Equal(t, 2, a.Previous.TransactionCount)
	assert.InDelta(t, 50.0, a.Previous.GrowthRate, 0.001)
	assert.True(t, a.Previous.Period.End.Before(start))
}

func TestGetDonationAnalyticsRejectsInvertedRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetDonationAnalytics(context.Background(), day0, day0.Add(-time.Second), false)
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)
}

func TestGrowthRate(t *testing.T) {
	assert.Equal(t, 100.0, GrowthRate(10, 0))
	assert.Equal(t, 0.0, GrowthRate(0, 0))
	assert.Equal(t, -50.0, GrowthRate(5, 10))
	assert.Equal(t, 33.33, GrowthRate(4, 3))
}

func TestListSubscriptionsFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, status := range []donationdomain.SubscriptionStatus{donationdomain.SubscriptionActive, donationdomain.SubscriptionCancelled, donationdomain.SubscriptionActive} {
		_, err := f.store.LogSubscriptionRecord(ctx, donationdomain.SubscriptionRecord{
			StripeSubscriptionID: fmt.Sprintf("sub_%d", i),
			Amount:               20,
			Currency:             "USD",
			Category:             "Tithes",
			Frequency:            donationdomain.FrequencyMonthly,
			Status:               status,
		})
		require.NoError(t, err)
	}

	all, err := f.svc.ListSubscriptions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := f.svc.ListSubscriptions(ctx, donationdomain.SubscriptionActive)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestExportTransactionsCSV(t *testing.T) {
	f := newFixture(t)
	f.seed(t, standardGifts()...)

	var buf bytes.Buffer
	n, err := f.svc.ExportTransactionsCSV(context.Background(), domain.TransactionFilters{Category: "tithes"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "60.00", rows[1][2])
	assert.Equal(t, "100.00", rows[2][2])
	assert.Equal(t, "USD", rows[1][3])
}

func TestRenderReportPDF(t *testing.T) {
	f := newFixture(t)
	f.seed(t, standardGifts()...)

	out, err := f.svc.RenderReportPDF(context.Background(), day0, day0.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3 test", string(out))

	data := f.pdf.last
	assert.Equal(t, "2024-03-01 to 2024-03-06", data.PeriodLabel)
	assert.Equal(t, "$135.50", data.TotalAmount)
	assert.Equal(t, "3", data.Transactions)
	require.Len(t, data.Categories, 3)
	assert.Equal(t, "Tithes", data.Categories[0].Label)
	require.Len(t, data.Recent, 3)
	assert.Equal(t, "Building Fund", data.Recent[0].Category)
}
