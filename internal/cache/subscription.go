// Package cache keeps a short-lived Redis copy of subscription records in
// front of the store. Reads are best effort: any Redis failure falls back
// to the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

const (
	keyPrefix = "faithtrain:sub:"
	noRecord  = "-"
)

// Client is the part of *redis.Client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type SubscriptionCache struct {
	client Client
	next   service.SubscriptionReader
	ttl    time.Duration
	log    *slog.Logger
}

var (
	_ service.SubscriptionReader      = (*SubscriptionCache)(nil)
	_ service.SubscriptionInvalidator = (*SubscriptionCache)(nil)
)

func NewSubscriptionCache(client Client, next service.SubscriptionReader, ttl time.Duration, log *slog.Logger) *SubscriptionCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SubscriptionCache{client: client, next: next, ttl: ttl, log: log}
}

// NewRedisClient opens a client the way the rest of the services expect.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func (c *SubscriptionCache) Get(ctx context.Context, userID int64) (*models.SubscriptionRecord, error) {
	raw, err := c.client.Get(ctx, key(userID)).Result()
	switch {
	case err == nil:
		if raw == noRecord {
			return nil, nil
		}
		var rec models.SubscriptionRecord
		if jerr := json.Unmarshal([]byte(raw), &rec); jerr == nil {
			return &rec, nil
		}
		c.log.Warn("drop malformed cached subscription", "user", userID)
	case errors.Is(err, redis.Nil):
	default:
		c.log.Debug("subscription cache read failed", "user", userID, "err", err)
	}

	rec, err := c.next.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	value := noRecord
	if rec != nil {
		b, err := json.Marshal(rec)
		if err != nil {
			return rec, nil
		}
		value = string(b)
	}
	if err := c.client.Set(ctx, key(userID), value, c.ttl).Err(); err != nil {
		c.log.Debug("subscription cache write failed", "user", userID, "err", err)
	}
	return rec, nil
}

func (c *SubscriptionCache) Invalidate(ctx context.Context, userID int64) {
	if err := c.client.Del(ctx, key(userID)).Err(); err != nil {
		c.log.Warn("subscription cache invalidate failed", "user", userID, "err", err)
	}
}
