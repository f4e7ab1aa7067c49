package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReport(t *testing.T) {
	out, err := New().GenerateReport(context.Background(), ReportData{
		Title:        "Giving Report",
		PeriodLabel:  "2024-03-01 to 2024-03-31",
		GeneratedAt:  "2024-04-01",
		TotalAmount:  "$1,250.00",
		Transactions: "12",
		Average:      "$104.17",
		UniqueDonors: "9",
		Categories:   []ReportRow{{Label: "Tithes", Count: "8", Amount: "$1,000.00"}},
		Recent:       []ReportGift{{Date: "2024-03-30", Donor: "donor@example.org", Category: "Tithes", Amount: "$100.00"}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
