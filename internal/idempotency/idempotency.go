// Package idempotency makes reward claims safe to resend. A client supplies
// an Idempotency-Key header; the first request with that key runs, later
// ones receive the stored response, and a duplicate that arrives while the
// first is still running is refused.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aimerfeng/minerewards/internal/cache"
	"github.com/redis/go-redis/v9"
)

// HeaderKey is the request header carrying the client's key
const HeaderKey = "Idempotency-Key"

// MaxKeyLength bounds the accepted key
const MaxKeyLength = 255

// PendingTTL bounds how long a crashed request can block its key
const PendingTTL = 30 * time.Second

const pendingMarker = "pending"

// Errors
var (
	ErrInFlight   = errors.New("request with this idempotency key is in progress")
	ErrInvalidKey = errors.New("invalid idempotency key")
)

// Record is a stored response
type Record struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// beginScript returns the stored value, or claims the key and returns nil
var beginScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v then
	return v
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return false
`)

// abortScript deletes the key only while it is still pending
var abortScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Guard stores idempotency state in Redis
type Guard struct {
	redis *cache.Redis
	ttl   time.Duration
}

// NewGuard creates a guard keeping completed responses for ttl
func NewGuard(redis *cache.Redis, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{redis: redis, ttl: ttl}
}

func redisKey(uid, op, key string) string {
	return fmt.Sprintf("idempotency:%s:%s:%s", uid, op, key)
}

// ValidateKey checks a client-supplied key
func ValidateKey(key string) error {
	if key == "" || len(key) > MaxKeyLength {
		return ErrInvalidKey
	}
	return nil
}

// Begin claims key for (uid, op). It returns the stored record when the key
// already completed, ErrInFlight while another request holds it, and
// (nil, nil) when the caller now owns the key.
func (g *Guard) Begin(ctx context.Context, uid, op, key string) (*Record, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	v, err := beginScript.Run(ctx, g.redis.Client, []string{redisKey(uid, op, key)},
		pendingMarker, PendingTTL.Milliseconds()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if v == pendingMarker {
		return nil, ErrInFlight
	}

	var rec Record
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode stored response: %w", err)
	}
	return &rec, nil
}

// Complete stores the response for key
func (g *Guard) Complete(ctx context.Context, uid, op, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if err := g.redis.Client.Set(ctx, redisKey(uid, op, key), data, g.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store response: %w", err)
	}
	return nil
}

// Abort releases a pending key so the client can retry
func (g *Guard) Abort(ctx context.Context, uid, op, key string) error {
	if err := abortScript.Run(ctx, g.redis.Client, []string{redisKey(uid, op, key)}, pendingMarker).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}
