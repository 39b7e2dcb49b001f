package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Dedup marks event ids as processed for one consuming service.
type Dedup struct {
	rdb     *redis.Client
	service string
}

func NewDedup(rdb *redis.Client, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service}
}

// Claim returns true for the first caller with this id. A claim that is not followed by
// a successful handling must be released.
func (d *Dedup) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.service, eventID), "1", TTLDedup).Result()
}

func (d *Dedup) Release(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.service, eventID)).Err()
}

// Idempotency remembers which order a checkout request created.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency { return &Idempotency{rdb: rdb} }

// Lookup returns the order id stored for key, or "" when there is none.
func (i *Idempotency) Lookup(ctx context.Context, userID, key string) (string, error) {
	v, err := i.rdb.Get(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

func (i *Idempotency) Remember(ctx context.Context, userID, key, orderID string) error {
	return i.rdb.SetNX(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key), orderID, TTLIdempotency).Err()
}
