package donation

import (
	"github.com/smallbiznis/givingdesk/internal/donation/repository"
	"github.com/smallbiznis/givingdesk/internal/donation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("donation.store",
	fx.Provide(repository.NewRedisClient),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
