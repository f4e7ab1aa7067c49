package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
	obslogger "github.com/smallbiznis/givingdesk/internal/observability/logger"
	reportingdomain "github.com/smallbiznis/givingdesk/internal/reporting/domain"
	"github.com/smallbiznis/givingdesk/pkg/db/pagination"
	"go.uber.org/zap"
)

const (
	defaultAnalyticsWindow   = 30 * 24 * time.Hour
	defaultWebhookEventLimit = 50
)

func (s *Server) ListDonations(c *gin.Context) {
	filters, err := parseTransactionFilters(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	page, err := parsePagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sort := reportingdomain.DefaultSort()
	if field := strings.TrimSpace(c.Query("sortBy")); field != "" {
		sort.Field = field
	}
	switch strings.ToLower(strings.TrimSpace(c.Query("sortOrder"))) {
	case "":
	case string(reportingdomain.SortAsc):
		sort.Direction = reportingdomain.SortAsc
	case string(reportingdomain.SortDesc):
		sort.Direction = reportingdomain.SortDesc
	default:
		AbortWithError(c, newValidationError("sortOrder", "invalid_sort_order", "sortOrder must be asc or desc"))
		return
	}

	res, err := s.reportingSvc.GetDonationTransactions(c.Request.Context(), filters, sort, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) GetDonationSummary(c *gin.Context) {
	filters, err := parseTransactionFilters(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.reportingSvc.GetDonationSummary(c.Request.Context(), filters)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) GetDonationAnalytics(c *gin.Context) {
	now := s.clock.Now().UTC()
	start, end, err := parseRange(c, now.Add(-defaultAnalyticsWindow), now)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	compare, err := parseOptionalBool(c.Query("compare"))
	if err != nil {
		AbortWithError(c, newValidationError("compare", "invalid_compare", "invalid compare"))
		return
	}

	res, err := s.reportingSvc.GetDonationAnalytics(c.Request.Context(), start, end, compare != nil && *compare)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) ExportDonationsCSV(c *gin.Context) {
	filters, err := parseTransactionFilters(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var buf bytes.Buffer
	rows, err := s.reportingSvc.ExportTransactionsCSV(c.Request.Context(), filters, &buf)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := slug.Make("donations "+s.clock.Now().UTC().Format(dateOnlyLayout)) + ".csv"
	obslogger.WithContext(c.Request.Context(), s.log).Info("donations exported",
		zap.Int("rows", rows),
		zap.String("filename", filename),
	)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("X-Total-Count", strconv.Itoa(rows))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// DownloadReportPDF renders the financial report, defaulting to the
// current calendar month.
func (s *Server) DownloadReportPDF(c *gin.Context) {
	now := s.clock.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0).Add(-time.Nanosecond)

	start, end, err := parseRange(c, monthStart, monthEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.reportingSvc.RenderReportPDF(c.Request.Context(), start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := slug.Make(fmt.Sprintf("donation report %s %s", start.Format(dateOnlyLayout), end.Format(dateOnlyLayout))) + ".pdf"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) GetDonation(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	tx, err := s.store.GetDonationTransaction(c.Request.Context(), donationdomain.TransactionLookup{
		ID:                    id,
		StripePaymentIntentID: id,
		StripeSessionID:       id,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	status := donationdomain.SubscriptionStatus(strings.TrimSpace(c.Query("status")))
	switch status {
	case "", donationdomain.SubscriptionActive, donationdomain.SubscriptionCancelled,
		donationdomain.SubscriptionPastDue, donationdomain.SubscriptionUnpaid:
	default:
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid subscription status"))
		return
	}

	items, err := s.reportingSvc.ListSubscriptions(c.Request.Context(), status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "total": len(items)})
}

func (s *Server) ListWebhookEvents(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil || (limit != nil && *limit < 1) {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	n := defaultWebhookEventLimit
	if limit != nil {
		n = min(*limit, donationdomain.MaxWebhookEvents)
	}

	items, err := s.store.ListWebhookEvents(c.Request.Context(), n)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "total": len(items)})
}

func parseTransactionFilters(c *gin.Context) (reportingdomain.TransactionFilters, error) {
	filters := reportingdomain.TransactionFilters{
		Category: strings.TrimSpace(c.Query("category")),
		Type:     donationdomain.DonationType(strings.TrimSpace(c.Query("type"))),
		Status:   donationdomain.TransactionStatus(strings.TrimSpace(c.Query("status"))),
		Email:    strings.TrimSpace(c.Query("email")),
	}

	switch filters.Type {
	case "", donationdomain.TypeOneOff, donationdomain.TypeRecurring:
	default:
		return filters, newValidationError("type", "invalid_type", "invalid donation type")
	}
	if filters.Status != "" && !filters.Status.Valid() {
		return filters, newValidationError("status", "invalid_status", "invalid transaction status")
	}

	var err error
	if filters.StartDate, err = parseOptionalTime(c.Query("startDate"), false); err != nil {
		return filters, newValidationError("startDate", "invalid_start_date", "invalid startDate")
	}
	if filters.EndDate, err = parseOptionalTime(c.Query("endDate"), true); err != nil {
		return filters, newValidationError("endDate", "invalid_end_date", "invalid endDate")
	}
	if filters.MinAmount, err = parseOptionalFloat(c.Query("minAmount")); err != nil {
		return filters, newValidationError("minAmount", "invalid_min_amount", "invalid minAmount")
	}
	if filters.MaxAmount, err = parseOptionalFloat(c.Query("maxAmount")); err != nil {
		return filters, newValidationError("maxAmount", "invalid_max_amount", "invalid maxAmount")
	}
	return filters, nil
}

func parsePagination(c *gin.Context) (pagination.Pagination, error) {
	page, err := parseOptionalInt(c.Query("page"))
	if err != nil {
		return pagination.Pagination{}, newValidationError("page", "invalid_page", "invalid page")
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		return pagination.Pagination{}, newValidationError("limit", "invalid_limit", "invalid limit")
	}

	var p pagination.Pagination
	if page != nil {
		p.Page = *page
	}
	if limit != nil {
		p.Limit = *limit
	}
	return p.Normalize(), nil
}

func parseRange(c *gin.Context, defStart, defEnd time.Time) (time.Time, time.Time, error) {
	start, err := parseOptionalTime(c.Query("startDate"), false)
	if err != nil {
		return time.Time{}, time.Time{}, newValidationError("startDate", "invalid_start_date", "invalid startDate")
	}
	end, err := parseOptionalTime(c.Query("endDate"), true)
	if err != nil {
		return time.Time{}, time.Time{}, newValidationError("endDate", "invalid_end_date", "invalid endDate")
	}
	if start == nil {
		start = &defStart
	}
	if end == nil {
		end = &defEnd
	}
	return *start, *end, nil
}
