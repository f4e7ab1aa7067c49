package service

import (
	"cmp"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/givingdesk/internal/clock"
	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
	obslogger "github.com/smallbiznis/givingdesk/internal/observability/logger"
	"github.com/smallbiznis/givingdesk/internal/providers/pdf"
	"github.com/smallbiznis/givingdesk/internal/reporting/domain"
	"github.com/smallbiznis/givingdesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	recentLimit   = 10
	topCategories = 5
	dayLayout     = "2006-01-02"
)

type Params struct {
	fx.In

	Store donationdomain.Store
	PDF   pdf.Provider
	Clock clock.Clock
	Log   *zap.Logger
}

type Service struct {
	store   donationdomain.Store
	pdf     pdf.Provider
	clock   clock.Clock
	log     *zap.Logger
	printer *message.Printer
}

func NewService(p Params) domain.Service {
	return &Service{
		store:   p.Store,
		pdf:     p.PDF,
		clock:   p.Clock,
		log:     p.Log.Named("reporting.service"),
		printer: message.NewPrinter(language.English),
	}
}

func (s *Service) GetDonationTransactions(ctx context.Context, filters domain.TransactionFilters, sort domain.Sort, page pagination.Pagination) (*domain.TransactionPage, error) {
	if sort.Field == "" {
		sort.Field = domain.SortCreatedAt
	}
	if !validSortField(sort.Field) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidSort, sort.Field)
	}
	if sort.Direction != domain.SortAsc {
		sort.Direction = domain.SortDesc
	}
	if err := checkRange(filters.StartDate, filters.EndDate); err != nil {
		return nil, err
	}

	all, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	matched := filterTransactions(all, filters)
	sortTransactions(matched, sort)

	page = page.Normalize()
	return &domain.TransactionPage{
		Data:       pagination.Slice(matched, page),
		Total:      len(matched),
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: pagination.TotalPages(len(matched), page.Limit),
	}, nil
}

func (s *Service) GetDonationSummary(ctx context.Context, filters domain.TransactionFilters) (*domain.Summary, error) {
	if err := checkRange(filters.StartDate, filters.EndDate); err != nil {
		return nil, err
	}
	all, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	matched := filterTransactions(all, filters)

	summary := &domain.Summary{
		TotalTransactions: len(matched),
		ByCategory:        map[string]domain.Bucket{},
		ByType:            map[string]domain.Bucket{},
		ByStatus:          map[string]domain.Bucket{},
	}
	completed := 0
	for _, tx := range matched {
		amount := 0.0
		if tx.Status == donationdomain.StatusCompleted {
			amount = tx.Amount
			completed++
			summary.TotalAmount += tx.Amount
		}
		addTo(summary.ByCategory, tx.Category, amount)
		addTo(summary.ByType, string(tx.Type), amount)
		addTo(summary.ByStatus, string(tx.Status), amount)
	}
	summary.TotalAmount = roundCents(summary.TotalAmount)
	if completed > 0 {
		summary.AverageAmount = roundCents(summary.TotalAmount / float64(completed))
	}

	sortTransactions(matched, domain.DefaultSort())
	summary.RecentTransactions = matched[:min(recentLimit, len(matched))]
	return summary, nil
}

func (s *Service) GetDonationAnalytics(ctx context.Context, start, end time.Time, compareWithPrevious bool) (*domain.Analytics, error) {
	if end.Before(start) {
		return nil, domain.ErrInvalidDateRange
	}
	all, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}

	current := completedIn(all, start, end)
	out := &domain.Analytics{
		Period:           domain.Period{Start: start, End: end},
		TransactionCount: len(current),
		TotalAmount:      total(current),
		UniqueDonors:     uniqueDonors(current),
		TopCategories:    topCategoryTotals(current, topCategories),
		Daily:            dailyTotals(current),
	}
	if out.TransactionCount > 0 {
		out.AverageAmount = roundCents(out.TotalAmount / float64(out.TransactionCount))
	}

	if compareWithPrevious {
		prevEnd := start.Add(-time.Nanosecond)
		prevStart := prevEnd.Add(-end.Sub(start))
		previous := completedIn(all, prevStart, prevEnd)
		prevTotal := total(previous)
		out.Previous = &domain.Comparison{
			Period:           domain.Period{Start: prevStart, End: prevEnd},
			TotalAmount:      prevTotal,
			TransactionCount: len(previous),
			GrowthRate:       GrowthRate(out.TotalAmount, prevTotal),
		}
	}
	return out, nil
}

func (s *Service) ListSubscriptions(ctx context.Context, status donationdomain.SubscriptionStatus) ([]donationdomain.SubscriptionRecord, error) {
	items, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return items, nil
	}
	out := make([]donationdomain.SubscriptionRecord, 0, len(items))
	for _, rec := range items {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out, nil
}

var csvHeader = []string{
	"id", "createdAt", "amount", "currency", "category", "type", "frequency",
	"status", "customerEmail", "stripePaymentIntentId", "stripeSubscriptionId", "stripeSessionId",
}

func (s *Service) ExportTransactionsCSV(ctx context.Context, filters domain.TransactionFilters, w io.Writer) (int, error) {
	if err := checkRange(filters.StartDate, filters.EndDate); err != nil {
		return 0, err
	}
	all, err := s.store.ListTransactions(ctx)
	if err != nil {
		return 0, err
	}
	matched := filterTransactions(all, filters)
	sortTransactions(matched, domain.DefaultSort())

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	for _, tx := range matched {
		record := []string{
			tx.ID,
			tx.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(tx.Amount, 'f', 2, 64),
			tx.Currency,
			tx.Category,
			string(tx.Type),
			string(tx.Frequency),
			string(tx.Status),
			tx.CustomerEmail,
			tx.StripePaymentIntentID,
			tx.StripeSubscriptionID,
			tx.StripeSessionID,
		}
		if err := cw.Write(record); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}

	obslogger.WithContext(ctx, s.log).Info("transactions exported", zap.Int("rows", len(matched)))
	return len(matched), nil
}

func (s *Service) RenderReportPDF(ctx context.Context, start, end time.Time) ([]byte, error) {
	analytics, err := s.GetDonationAnalytics(ctx, start, end, true)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	current := completedIn(all, start, end)
	sortTransactions(current, domain.DefaultSort())

	data := pdf.ReportData{
		Title:        "Giving Report",
		PeriodLabel:  start.Format(dayLayout) + " to " + end.Format(dayLayout),
		GeneratedAt:  s.clock.Now().UTC().Format("2006-01-02 15:04 MST"),
		TotalAmount:  s.money(analytics.TotalAmount),
		Transactions: s.printer.Sprintf("%d", analytics.TransactionCount),
		Average:      s.money(analytics.AverageAmount),
		UniqueDonors: s.printer.Sprintf("%d", analytics.UniqueDonors),
	}
	if analytics.Previous != nil {
		data.GrowthRate = fmt.Sprintf("%+.2f%%", analytics.Previous.GrowthRate)
	}
	for _, c := range topCategoryTotals(current, len(current)) {
		data.Categories = append(data.Categories, pdf.ReportRow{
			Label:  c.Category,
			Count:  strconv.Itoa(c.Count),
			Amount: s.money(c.Amount),
		})
	}
	for _, tx := range current[:min(recentLimit, len(current))] {
		donor := tx.CustomerEmail
		if donor == "" {
			donor = "Anonymous"
		}
		data.Recent = append(data.Recent, pdf.ReportGift{
			Date:     tx.CreatedAt.UTC().Format(dayLayout),
			Donor:    donor,
			Category: tx.Category,
			Amount:   s.money(tx.Amount),
		})
	}

	out, err := s.pdf.GenerateReport(ctx, data)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Error("report rendering failed", zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (s *Service) money(amount float64) string {
	return s.printer.Sprintf("$%.2f", amount)
}

// GrowthRate is the percentage change from prev to cur. With no previous
// giving it is 100 when anything was given and 0 otherwise.
func GrowthRate(cur, prev float64) float64 {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	return roundCents((cur - prev) / prev * 100)
}

func checkRange(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return domain.ErrInvalidDateRange
	}
	return nil
}

func addTo(buckets map[string]domain.Bucket, key string, amount float64) {
	b := buckets[key]
	b.Count++
	b.Amount = roundCents(b.Amount + amount)
	buckets[key] = b
}

func total(items []donationdomain.DonationTransaction) float64 {
	sum := 0.0
	for _, tx := range items {
		sum += tx.Amount
	}
	return roundCents(sum)
}

func uniqueDonors(items []donationdomain.DonationTransaction) int {
	seen := map[string]struct{}{}
	for _, tx := range items {
		email := strings.ToLower(strings.TrimSpace(tx.CustomerEmail))
		if email != "" {
			seen[email] = struct{}{}
		}
	}
	return len(seen)
}

func topCategoryTotals(items []donationdomain.DonationTransaction, limit int) []domain.CategoryTotal {
	byCategory := map[string]*domain.CategoryTotal{}
	for _, tx := range items {
		c, ok := byCategory[tx.Category]
		if !ok {
			c = &domain.CategoryTotal{Category: tx.Category}
			byCategory[tx.Category] = c
		}
		c.Amount = roundCents(c.Amount + tx.Amount)
		c.Count++
	}
	out := make([]domain.CategoryTotal, 0, len(byCategory))
	for _, c := range byCategory {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b domain.CategoryTotal) int {
		if c := cmp.Compare(b.Amount, a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return out[:min(limit, len(out))]
}

// dailyTotals buckets by UTC calendar day, oldest first. Days without gifts are omitted.
func dailyTotals(items []donationdomain.DonationTransaction) []domain.DailyTotal {
	byDay := map[string]*domain.DailyTotal{}
	for _, tx := range items {
		day := tx.CreatedAt.UTC().Format(dayLayout)
		d, ok := byDay[day]
		if !ok {
			d = &domain.DailyTotal{Date: day}
			byDay[day] = d
		}
		d.Amount = roundCents(d.Amount + tx.Amount)
		d.Count++
	}
	out := make([]domain.DailyTotal, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, b domain.DailyTotal) int { return cmp.Compare(a.Date, b.Date) })
	return out
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
