package service

import (
	"cmp"
	"slices"
	"strings"
	"time"

	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
	"github.com/smallbiznis/givingdesk/internal/reporting/domain"
)

func matches(tx donationdomain.DonationTransaction, f domain.TransactionFilters) bool {
	if f.Category != "" && !strings.EqualFold(tx.Category, f.Category) {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.Email != "" && !strings.Contains(strings.ToLower(tx.CustomerEmail), strings.ToLower(f.Email)) {
		return false
	}
	if f.StartDate != nil && tx.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && tx.CreatedAt.After(*f.EndDate) {
		return false
	}
	if f.MinAmount != nil && tx.Amount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && tx.Amount > *f.MaxAmount {
		return false
	}
	return true
}

func filterTransactions(items []donationdomain.DonationTransaction, f domain.TransactionFilters) []donationdomain.DonationTransaction {
	out := make([]donationdomain.DonationTransaction, 0, len(items))
	for _, tx := range items {
		if matches(tx, f) {
			out = append(out, tx)
		}
	}
	return out
}

func validSortField(field string) bool {
	switch field {
	case domain.SortCreatedAt, domain.SortUpdatedAt, domain.SortAmount,
		domain.SortCategory, domain.SortStatus, domain.SortCustomerEmail:
		return true
	}
	return false
}

// sortTransactions orders in place; ties fall back to id in the same direction.
func sortTransactions(items []donationdomain.DonationTransaction, s domain.Sort) {
	slices.SortStableFunc(items, func(a, b donationdomain.DonationTransaction) int {
		c := compareField(a, b, s.Field)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if s.Direction == domain.SortDesc {
			return -c
		}
		return c
	})
}

func compareField(a, b donationdomain.DonationTransaction, field string) int {
	switch field {
	case domain.SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case domain.SortAmount:
		return cmp.Compare(a.Amount, b.Amount)
	case domain.SortCategory:
		return cmp.Compare(a.Category, b.Category)
	case domain.SortStatus:
		return cmp.Compare(a.Status, b.Status)
	case domain.SortCustomerEmail:
		return cmp.Compare(strings.ToLower(a.CustomerEmail), strings.ToLower(b.CustomerEmail))
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func completedIn(items []donationdomain.DonationTransaction, start, end time.Time) []donationdomain.DonationTransaction {
	return filterTransactions(items, domain.TransactionFilters{
		Status:    donationdomain.StatusCompleted,
		StartDate: &start,
		EndDate:   &end,
	})
}
