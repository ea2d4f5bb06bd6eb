package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Type is one of the three tracked quota dimensions.
type Type string

const (
	// TypeAPICalls resets daily.
	TypeAPICalls Type = "api_calls"
	// TypeTokens resets monthly.
	TypeTokens Type = "tokens"
	// TypeStorage has no window; usage moves with uploads and
	// deletions.
	TypeStorage Type = "storage"
)

// Key TTLs outlive their window by enough slack that a counter is
// still readable right after the boundary but does not accumulate
// forever.
const (
	dailyKeyTTL   = 48 * time.Hour
	monthlyKeyTTL = 40 * 24 * time.Hour
)

// checkAndIncrScript atomically rejects or increments in one
// round-trip. Two concurrent callers with one unit of room left must
// never both succeed; INCR-then-check cannot give that, a WATCH loop
// can but retries under contention, so the comparison runs inside
// the store.
var checkAndIncrScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if limit > 0 and current >= limit then
	return {current, 0}
end
current = redis.call('INCRBY', KEYS[1], ARGV[3])
if tonumber(ARGV[2]) > 0 and redis.call('TTL', KEYS[1]) < 0 then
	redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return {current, 1}
`)

// UsageStore tracks per-tenant usage counters.
type UsageStore interface {
	// ConsumeIfAllowed atomically checks usage against limit and
	// increments by amount when there is room. Returns the counter
	// value after the call and whether the consumption happened.
	// A limit of zero means unlimited.
	ConsumeIfAllowed(ctx context.Context, tenantID uuid.UUID, quotaType Type, limit, amount int64) (usage int64, allowed bool, err error)

	// Usage reads the current counter without modifying it.
	Usage(ctx context.Context, tenantID uuid.UUID, quotaType Type) (int64, error)

	// Add unconditionally moves the counter, negative deltas
	// included. Storage usage shrinks when objects are deleted.
	Add(ctx context.Context, tenantID uuid.UUID, quotaType Type, delta int64) (int64, error)
}

// RedisUsageStore implements UsageStore on Redis. Counters are keyed
// per tenant, quota type and window so resets are implicit: a new
// window is simply a new key.
type RedisUsageStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// RedisOption configures a RedisUsageStore.
type RedisOption func(*RedisUsageStore)

// WithClock overrides the time source used for window keys.
func WithClock(now func() time.Time) RedisOption {
	return func(s *RedisUsageStore) { s.now = now }
}

// NewRedisUsageStore creates a Redis-backed usage store
func NewRedisUsageStore(client *redis.Client, opts ...RedisOption) *RedisUsageStore {
	s := &RedisUsageStore{
		client: client,
		prefix: "quota",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisUsageStore) key(tenantID uuid.UUID, quotaType Type) (string, time.Duration) {
	now := s.now().UTC()
	switch quotaType {
	case TypeAPICalls:
		return fmt.Sprintf("%s:%s:%s:%s", s.prefix, tenantID, quotaType, now.Format("2006-01-02")), dailyKeyTTL
	case TypeTokens:
		return fmt.Sprintf("%s:%s:%s:%s", s.prefix, tenantID, quotaType, now.Format("2006-01")), monthlyKeyTTL
	default:
		return fmt.Sprintf("%s:%s:%s", s.prefix, tenantID, quotaType), 0
	}
}

// ConsumeIfAllowed runs the check-and-increment script.
func (s *RedisUsageStore) ConsumeIfAllowed(ctx context.Context, tenantID uuid.UUID, quotaType Type, limit, amount int64) (int64, bool, error) {
	key, ttl := s.key(tenantID, quotaType)
	res, err := checkAndIncrScript.Run(ctx, s.client, []string{key},
		limit, int64(ttl.Seconds()), amount).Result()
	if err != nil {
		return 0, false, fmt.Errorf("quota check for tenant %s: %w", tenantID, err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, false, fmt.Errorf("quota check for tenant %s: unexpected script reply %v", tenantID, res)
	}
	usage, _ := vals[0].(int64)
	allowed, _ := vals[1].(int64)
	return usage, allowed == 1, nil
}

// Usage reads the counter for the current window.
func (s *RedisUsageStore) Usage(ctx context.Context, tenantID uuid.UUID, quotaType Type) (int64, error) {
	key, _ := s.key(tenantID, quotaType)
	val, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s usage for tenant %s: %w", quotaType, tenantID, err)
	}
	return val, nil
}

// Add moves the counter by delta.
func (s *RedisUsageStore) Add(ctx context.Context, tenantID uuid.UUID, quotaType Type, delta int64) (int64, error) {
	key, ttl := s.key(tenantID, quotaType)
	pipe := s.client.Pipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("adding %d to %s usage for tenant %s: %w", delta, quotaType, tenantID, err)
	}
	return incr.Val(), nil
}
