package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approvals/internal/application/port"
)

const (
	keyPrefix  = "approvals:roles:"
	DefaultTTL = 5 * time.Minute
)

// RedisConfig holds the cache connection settings.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// CachedDirectory is a read-through Redis cache in front of another
// directory. Cache failures are logged and the lookup falls through, so a
// Redis outage only costs latency.
type CachedDirectory struct {
	next   port.RoleDirectory
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedDirectory(next port.RoleDirectory, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedDirectory{next: next, client: client, ttl: ttl, logger: logger}
}

func (d *CachedDirectory) RolesOf(ctx context.Context, userID string) ([]string, error) {
	key := cacheKey(userID)

	raw, err := d.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var roles []string
		if jsonErr := json.Unmarshal(raw, &roles); jsonErr == nil {
			return roles, nil
		}
		d.logger.Warn("Discarding malformed cached roles", zap.String("user_id", userID))
	case !errors.Is(err, redis.Nil):
		d.logger.Warn("Role cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	roles, err := d.next.RolesOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(roles); err == nil {
		if err := d.client.Set(ctx, key, b, d.ttl).Err(); err != nil {
			d.logger.Warn("Role cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return roles, nil
}

// Invalidate drops the cached roles of a user.
func (d *CachedDirectory) Invalidate(ctx context.Context, userID string) error {
	return d.client.Del(ctx, cacheKey(userID)).Err()
}

func cacheKey(userID string) string {
	return keyPrefix + userID
}
