package repository

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/givingdesk/internal/config"
	"github.com/smallbiznis/givingdesk/internal/donation/domain"
	obsmetrics "github.com/smallbiznis/givingdesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	DB      *gorm.DB                 `optional:"true"`
	Redis   *redis.Client            `optional:"true"`
	Metrics *obsmetrics.StoreMetrics `optional:"true"`
}

// Provide selects the backend named by STORE_DRIVER.
func Provide(p Params) (domain.Repository, error) {
	if p.Cfg.UsesSQL() && p.DB != nil {
		p.Log.Info("donation store", zap.String("driver", p.Cfg.Store.Driver))
		return NewGormRepository(p.DB), nil
	}
	p.Log.Info("donation store",
		zap.String("driver", DriverFile),
		zap.String("data_dir", p.Cfg.Store.DataDir),
		zap.Bool("redis_lock", p.Redis != nil),
	)
	return NewFileRepository(p.Cfg.Store.DataDir, NewLocker(p.Redis), p.Metrics, p.Log)
}
