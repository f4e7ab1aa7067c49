package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/givingdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCheckoutLimiterDisabledWithoutRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, CheckoutRate: 1, CheckoutBurst: 1}}
	l := NewCheckoutLimiter(Params{Cfg: cfg, Log: zaptest.NewLogger(t)})
	assert.Nil(t, l)
	assert.False(t, l.Enabled())

	res, err := l.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckoutLimiterRejectsBadSettings(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, CheckoutRate: 0, CheckoutBurst: 5}}
	assert.Nil(t, NewCheckoutLimiter(Params{Cfg: cfg, Redis: client, Log: zaptest.NewLogger(t)}))

	cfg.RateLimit.Enabled = false
	cfg.RateLimit.CheckoutRate = 1
	assert.Nil(t, NewCheckoutLimiter(Params{Cfg: cfg, Redis: client, Log: zaptest.NewLogger(t)}))
}

func TestRetryAfter(t *testing.T) {
	assert.Zero(t, retryAfter(true, 0, 1))
	assert.Equal(t, 2*time.Second, retryAfter(false, 0.5, 0.25))
	assert.Equal(t, 5*time.Second, retryAfter(false, 0, 0.2))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 50*time.Second, bucketTTL(0.2, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestScriptValueParsing(t *testing.T) {
	assert.Equal(t, int64(1), toInt(int64(1)))
	assert.Equal(t, int64(0), toInt(nil))
	assert.InDelta(t, 3.5, toFloat("3.5"), 0.0001)
	assert.InDelta(t, 2.0, toFloat(int64(2)), 0.0001)
}
