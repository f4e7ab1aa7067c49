package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/givingdesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyCheckoutClient = "givingdesk:ratelimit:checkout:%s"

// CheckoutLimiter throttles session and subscription creation per client.
// A nil limiter allows everything.
type CheckoutLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

type Params struct {
	fx.In

	Cfg   config.Config
	Redis *redis.Client `optional:"true"`
	Log   *zap.Logger
}

func NewCheckoutLimiter(p Params) *CheckoutLimiter {
	limitCfg := p.Cfg.RateLimit
	if !limitCfg.Enabled || p.Redis == nil {
		return nil
	}
	if limitCfg.CheckoutRate <= 0 || limitCfg.CheckoutBurst <= 0 {
		p.Log.Warn("checkout rate limit disabled: rate and burst must be positive",
			zap.Float64("rate", limitCfg.CheckoutRate),
			zap.Int("burst", limitCfg.CheckoutBurst),
		)
		return nil
	}
	return &CheckoutLimiter{
		bucket: NewTokenBucket(p.Redis),
		rate:   limitCfg.CheckoutRate,
		burst:  limitCfg.CheckoutBurst,
	}
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *CheckoutLimiter) Allow(ctx context.Context, clientKey string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyCheckoutClient, strings.TrimSpace(clientKey)), l.rate, l.burst)
}
