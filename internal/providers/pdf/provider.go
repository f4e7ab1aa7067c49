package pdf

import (
	"context"

	"go.uber.org/fx"
)

type Provider interface {
	GenerateReport(ctx context.Context, data ReportData) ([]byte, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateReport(ctx context.Context, data ReportData) ([]byte, error) {
	return nil, nil
}
