package domain

import (
	"time"

	donationdomain "github.com/smallbiznis/givingdesk/internal/donation/domain"
)

// TransactionFilters narrows the transaction log. Zero values mean "any".
type TransactionFilters struct {
	Category  string
	Type      donationdomain.DonationType
	Status    donationdomain.TransactionStatus
	Email     string
	StartDate *time.Time
	EndDate   *time.Time
	MinAmount *float64
	MaxAmount *float64
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sortable transaction fields.
const (
	SortCreatedAt     = "createdAt"
	SortUpdatedAt     = "updatedAt"
	SortAmount        = "amount"
	SortCategory      = "category"
	SortStatus        = "status"
	SortCustomerEmail = "customerEmail"
)

type Sort struct {
	Field     string
	Direction SortDirection
}

func DefaultSort() Sort {
	return Sort{Field: SortCreatedAt, Direction: SortDesc}
}

type TransactionPage struct {
	Data       []donationdomain.DonationTransaction `json:"data"`
	Total      int                                  `json:"total"`
	Page       int                                  `json:"page"`
	Limit      int                                  `json:"limit"`
	TotalPages int                                  `json:"totalPages"`
}

type Bucket struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

type Summary struct {
	TotalAmount        float64                              `json:"totalAmount"`
	TotalTransactions  int                                  `json:"totalTransactions"`
	AverageAmount      float64                              `json:"averageAmount"`
	ByCategory         map[string]Bucket                    `json:"byCategory"`
	ByType             map[string]Bucket                    `json:"byType"`
	ByStatus           map[string]Bucket                    `json:"byStatus"`
	RecentTransactions []donationdomain.DonationTransaction `json:"recentTransactions"`
}

type CategoryTotal struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Count    int     `json:"count"`
}

type DailyTotal struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
	Count  int     `json:"count"`
}

type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Comparison struct {
	Period           Period  `json:"period"`
	TotalAmount      float64 `json:"totalAmount"`
	TransactionCount int     `json:"transactionCount"`
	GrowthRate       float64 `json:"growthRate"`
}

type Analytics struct {
	Period           Period          `json:"period"`
	TotalAmount      float64         `json:"totalAmount"`
	TransactionCount int             `json:"transactionCount"`
	AverageAmount    float64         `json:"averageAmount"`
	UniqueDonors     int             `json:"uniqueDonors"`
	TopCategories    []CategoryTotal `json:"topCategories"`
	Daily            []DailyTotal    `json:"daily"`
	Previous         *Comparison     `json:"previous,omitempty"`
}
