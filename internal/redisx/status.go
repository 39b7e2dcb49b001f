package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/HTM0410/sale-account-sub001/internal/orders"
	"github.com/redis/go-redis/v9"
)

// StatusCache keeps the latest order status for cheap polling from the checkout page.
type StatusCache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

var _ orders.StatusCache = (*StatusCache)(nil)

func NewStatusCache(rdb *redis.Client, logger *slog.Logger) *StatusCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusCache{rdb: rdb, logger: logger}
}

func (c *StatusCache) GetStatus(ctx context.Context, orderID string) (orders.CachedStatus, bool) {
	var cs orders.CachedStatus
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("status cache get", "order_id", orderID, "err", err)
		}
		return cs, false
	}
	if err := json.Unmarshal(b, &cs); err != nil || !cs.Status.Valid() {
		return cs, false
	}
	return cs, true
}

func (c *StatusCache) SetStatus(ctx context.Context, orderID string, cs orders.CachedStatus) {
	b, err := json.Marshal(cs)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err(); err != nil {
		c.logger.Warn("status cache set", "order_id", orderID, "err", err)
	}
}
