package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/outdial/outdial/internal/domain/dnc"
	"github.com/outdial/outdial/internal/service/dialer"
)

const (
	dncEntryPrefix = "outdial:dnc:entry:"

	dncEntryTTL    = 24 * time.Hour
	dncNegativeTTL = 30 * time.Minute

	// Sentinel stored for numbers confirmed absent from the list.
	dncNegative = "-"
)

// DNCCache is a read-through cache over a DNC store. Lookups hit redis first
// and fall back to the backing store, caching both positive and negative
// results. Writes go to the backing store and invalidate the cached key.
type DNCCache struct {
	client  *redis.Client
	backing dialer.DNCStore
	logger  *zap.Logger
}

func NewDNCCache(client *redis.Client, backing dialer.DNCStore, logger *zap.Logger) *DNCCache {
	return &DNCCache{client: client, backing: backing, logger: logger}
}

func (c *DNCCache) Lookup(ctx context.Context, normalized string) (*dnc.Entry, error) {
	key := dncEntryPrefix + normalized

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == dncNegative {
			return nil, nil
		}
		var entry dnc.Entry
		if err := json.Unmarshal([]byte(cached), &entry); err == nil {
			return &entry, nil
		}
		// Unreadable payload, fall through to the backing store.
		c.logger.Warn("corrupt DNC cache entry", zap.String("key", key))
	case err != redis.Nil:
		// Redis trouble must not block call placement.
		c.logger.Warn("DNC cache read failed", zap.Error(err))
	}

	entry, err := c.backing.Lookup(ctx, normalized)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, entry)
	return entry, nil
}

func (c *DNCCache) RecordAttempt(ctx context.Context, entry *dnc.Entry) error {
	if err := c.backing.RecordAttempt(ctx, entry); err != nil {
		return err
	}
	c.store(ctx, dncEntryPrefix+entry.PhoneNumber, entry)
	return nil
}

func (c *DNCCache) Add(ctx context.Context, entry *dnc.Entry) error {
	if err := c.backing.Add(ctx, entry); err != nil {
		return err
	}
	c.store(ctx, dncEntryPrefix+entry.PhoneNumber, entry)
	return nil
}

func (c *DNCCache) store(ctx context.Context, key string, entry *dnc.Entry) {
	var payload string
	ttl := dncNegativeTTL
	if entry != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			c.logger.Warn("failed to marshal DNC entry", zap.Error(err))
			return
		}
		payload = string(data)
		ttl = dncEntryTTL
	} else {
		payload = dncNegative
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.logger.Warn("DNC cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Ping verifies redis connectivity for health reporting.
func (c *DNCCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
