package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/givingdesk/internal/config"
	"github.com/smallbiznis/givingdesk/internal/donation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	storeLockKey     = "givingdesk:store:write"
	storeLockTTL     = 10 * time.Second
	storeLockRetry   = 50 * time.Millisecond
	storeLockMaxWait = 5 * time.Second
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker is a token-based Redis mutex that serialises store writers running
// in different processes against the same data directory.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Acquire polls TryLock until it succeeds, ctx ends, or storeLockMaxWait passes.
// A nil Locker acquires immediately with an empty token.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l == nil {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, storeLockMaxWait)
	defer cancel()

	ticker := time.NewTicker(storeLockRetry)
	defer ticker.Stop()
	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return "", fmt.Errorf("acquire store lock: %w", err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", domain.ErrStoreLocked
		case <-ticker.C:
		}
	}
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// NewRedisClient returns nil when REDIS_ADDR is unset, which disables
// cross-process locking.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
				}
				log.Info("redis store lock enabled", zap.String("addr", cfg.Redis.Addr))
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	return client
}
