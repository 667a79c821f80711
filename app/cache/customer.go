package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultCustomerTTL = 30 * 24 * time.Hour

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// CustomerCache remembers the provider customer id per (account, email).
type CustomerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCustomerCache(rdb *redis.Client, ttl time.Duration) *CustomerCache {
	if ttl <= 0 {
		ttl = DefaultCustomerTTL
	}
	return &CustomerCache{rdb: rdb, ttl: ttl}
}

// Get returns an empty id on a cache miss.
func (c *CustomerCache) Get(ctx context.Context, accountLabel, email string) (string, error) {
	id, err := c.rdb.Get(ctx, customerKey(accountLabel, email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *CustomerCache) Set(ctx context.Context, accountLabel, email, customerID string) error {
	return c.rdb.Set(ctx, customerKey(accountLabel, email), customerID, c.ttl).Err()
}

func customerKey(accountLabel, email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("checkout:customer:%s:%s", strings.TrimSpace(accountLabel), hex.EncodeToString(sum[:]))
}
