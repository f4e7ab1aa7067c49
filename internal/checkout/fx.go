package checkout

import (
	"github.com/smallbiznis/givingdesk/internal/checkout/gateway/stripe"
	"github.com/smallbiznis/givingdesk/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(stripe.NewGateway),
	fx.Provide(service.NewService),
)
