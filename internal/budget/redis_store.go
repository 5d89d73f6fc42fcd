package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ledgerTTL keeps yesterday's row queryable for reporting while letting
// stale rows expire on their own.
const ledgerTTL = 48 * time.Hour

// addWithExpire atomically increments a ledger key and sets its TTL if the
// key has none, in a single round-trip. INCRBY on integer micro-USD keeps the
// arithmetic exact under concurrency.
var addWithExpire = redis.NewScript(`
	local newval = redis.call('INCRBY', KEYS[1], ARGV[1])
	if redis.call('TTL', KEYS[1]) == -1 then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return newval
`)

// RedisStore is the production LedgerStore, backed by Redis. Atomicity comes
// from Redis's single-threaded command execution plus the Lua increment
// script, so replicas of the gateway share one consistent ledger.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client as a ledger store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisLedgerKey(tenantID, day string) string {
	return fmt.Sprintf("ledger:spend:%s:%s", tenantID, day)
}

// Spent implements LedgerStore.
func (s *RedisStore) Spent(ctx context.Context, tenantID, day string) (int64, error) {
	val, err := s.client.Get(ctx, redisLedgerKey(tenantID, day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: get %s/%s: %w", tenantID, day, err)
	}
	return val, nil
}

// Add implements LedgerStore.
func (s *RedisStore) Add(ctx context.Context, tenantID, day string, deltaMicros int64) (int64, error) {
	ttlSeconds := int64(ledgerTTL / time.Second)
	newVal, err := addWithExpire.Run(ctx, s.client,
		[]string{redisLedgerKey(tenantID, day)}, deltaMicros, ttlSeconds).Int64()
	if err != nil {
		return 0, fmt.Errorf("ledger: incr %s/%s: %w", tenantID, day, err)
	}
	return newVal, nil
}
