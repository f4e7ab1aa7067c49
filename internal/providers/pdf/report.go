package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReportData is the pre-formatted content of the financial report.
type ReportData struct {
	Title        string
	PeriodLabel  string
	GeneratedAt  string
	TotalAmount  string
	Transactions string
	Average      string
	UniqueDonors string
	GrowthRate   string

	Categories []ReportRow
	Recent     []ReportGift
}

type ReportRow struct {
	Label  string
	Count  string
	Amount string
}

type ReportGift struct {
	Date     string
	Donor    string
	Category string
	Amount   string
}

type MarotoProvider struct{}

func New() Provider {
	return &MarotoProvider{}
}

func (p *MarotoProvider) GenerateReport(ctx context.Context, data ReportData) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, data.Title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		col.New(4).Add(
			text.New(data.PeriodLabel, props.Text{Align: align.Right, Size: 9}),
			text.New("Generated "+data.GeneratedAt, props.Text{Align: align.Right, Size: 8, Top: 5}),
		),
	)
	m.AddRow(4, line.NewCol(12))

	// Headline figures
	m.AddRow(8,
		text.NewCol(3, "Total given", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Gifts", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Average gift", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Unique donors", props.Text{Style: fontstyle.Bold, Size: 9}),
	)
	m.AddRow(12,
		text.NewCol(3, data.TotalAmount, props.Text{Size: 13}),
		text.NewCol(3, data.Transactions, props.Text{Size: 13}),
		text.NewCol(3, data.Average, props.Text{Size: 13}),
		text.NewCol(3, data.UniqueDonors, props.Text{Size: 13}),
	)
	if data.GrowthRate != "" {
		m.AddRow(8,
			text.NewCol(12, "Change vs previous period: "+data.GrowthRate, props.Text{Size: 9}),
		)
	}

	m.AddRow(12,
		text.NewCol(12, "By category", props.Text{Size: 12, Style: fontstyle.Bold, Top: 4}),
	)
	m.AddRow(8,
		text.NewCol(6, "Category", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Gifts", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, row := range data.Categories {
		m.AddRow(7,
			text.NewCol(6, row.Label, props.Text{Size: 9}),
			text.NewCol(3, row.Count, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, row.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(12,
		text.NewCol(12, "Recent gifts", props.Text{Size: 12, Style: fontstyle.Bold, Top: 4}),
	)
	m.AddRow(8,
		text.NewCol(3, "Date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Donor", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Category", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	if len(data.Recent) == 0 {
		m.AddRow(7, text.NewCol(12, "No completed gifts in this period.", props.Text{Size: 9}))
	}
	for _, gift := range data.Recent {
		m.AddRow(7,
			text.NewCol(3, gift.Date, props.Text{Size: 9}),
			text.NewCol(4, gift.Donor, props.Text{Size: 9}),
			text.NewCol(3, gift.Category, props.Text{Size: 9}),
			text.NewCol(2, gift.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate report pdf: %w", err)
	}
	return doc.GetBytes(), nil
}
