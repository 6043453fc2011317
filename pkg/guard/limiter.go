// Package guard protects the external classification service. It pairs
// a shared-state rate limiter (hourly token budget + concurrent-call
// cap) with a circuit breaker; both must be consulted, breaker first,
// before any external AI call.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned by Acquire when the hourly token budget or
// the concurrency cap would be exceeded. It is an expected outcome, not
// a fault: callers produce a deferred classification result.
var ErrRateLimited = errors.New("ai rate limit exceeded")

// LimiterConfig holds rate limiter configuration.
type LimiterConfig struct {
	TokenCeiling  int           // max estimated+actual tokens per window (default: 200000)
	MaxConcurrent int           // max in-flight calls (default: 4)
	Window        time.Duration // budget window (default: 1h)
	KeyPrefix     string        // redis key namespace (default: "aiguard")
}

// DefaultLimiterConfig returns sensible defaults.
func DefaultLimiterConfig() *LimiterConfig {
	return &LimiterConfig{
		TokenCeiling:  200000,
		MaxConcurrent: 4,
		Window:        time.Hour,
		KeyPrefix:     "aiguard",
	}
}

// Limiter bounds total external-call cost per time window and
// concurrent in-flight calls. State lives in Redis so every worker
// process shares one budget; atomicity comes from a Lua script, not
// in-process locks. Without Redis it falls back to process-local
// counters so single-node deployments still enforce the budget.
type Limiter struct {
	redis *redis.Client
	cfg   *LimiterConfig

	// Local fallback state, used only when redis is nil.
	mu          sync.Mutex
	localTokens int
	localConc   int
	localBucket int64 // unix hour bucket the token counter belongs to
}

// NewLimiter creates a limiter. redisClient may be nil.
func NewLimiter(redisClient *redis.Client, cfg *LimiterConfig) *Limiter {
	if cfg == nil {
		cfg = DefaultLimiterConfig()
	}
	return &Limiter{redis: redisClient, cfg: cfg}
}

// acquireScript atomically checks the token budget and the concurrency
// cap, and claims a concurrency slot on success. TTLs keep crashed
// workers from leaking slots forever.
var acquireScript = redis.NewScript(`
	local tokens_key = KEYS[1]
	local conc_key = KEYS[2]
	local estimated = tonumber(ARGV[1])
	local ceiling = tonumber(ARGV[2])
	local max_conc = tonumber(ARGV[3])
	local ttl_ms = tonumber(ARGV[4])

	local used = tonumber(redis.call('GET', tokens_key) or '0')
	if used + estimated > ceiling then
		return 1
	end

	local conc = tonumber(redis.call('GET', conc_key) or '0')
	if conc >= max_conc then
		return 2
	end

	redis.call('INCR', conc_key)
	redis.call('PEXPIRE', conc_key, ttl_ms)
	return 0
`)

// Acquire claims a concurrency slot if the hourly token counter plus
// the estimate stays under the ceiling and a slot is free. On success
// it returns a release func bound to the backend that granted the slot:
// a slot granted from the local fallback is always returned to the
// local counters, even when Redis has recovered in the meantime.
// Callers must call release on every exit path.
func (l *Limiter) Acquire(ctx context.Context, estimatedTokens int) (func(), error) {
	if l.redis == nil {
		return l.acquireLocal(estimatedTokens)
	}

	res, err := acquireScript.Run(ctx, l.redis,
		[]string{l.tokensKey(time.Now()), l.concKey()},
		estimatedTokens,
		l.cfg.TokenCeiling,
		l.cfg.MaxConcurrent,
		l.cfg.Window.Milliseconds(),
	).Int64()
	if err != nil {
		// Degraded Redis must not take classification down with it;
		// this call runs fully on the local counters, release included.
		return l.acquireLocal(estimatedTokens)
	}
	if res != 0 {
		return nil, ErrRateLimited
	}
	return l.releaseRedis, nil
}

// releaseScript decrements the concurrency counter with a floor at zero.
var releaseScript = redis.NewScript(`
	local v = tonumber(redis.call('GET', KEYS[1]) or '0')
	if v > 0 then
		redis.call('DECR', KEYS[1])
	end
	return 0
`)

// releaseRedis frees a Redis-granted slot. If the DECR fails the slot
// key's TTL reclaims it; the local counters hold no state for this slot
// and are left alone.
func (l *Limiter) releaseRedis() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.redis, []string{l.concKey()}).Err()
}

// RecordUsage adds the true token cost to the window counter. It is
// called after the external call completes, whether it succeeded or not.
func (l *Limiter) RecordUsage(ctx context.Context, actualTokens int) {
	if actualTokens <= 0 {
		return
	}
	if l.redis == nil {
		l.recordLocal(actualTokens)
		return
	}
	key := l.tokensKey(time.Now())
	pipe := l.redis.Pipeline()
	pipe.IncrBy(ctx, key, int64(actualTokens))
	pipe.Expire(ctx, key, 2*l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.recordLocal(actualTokens)
	}
}

// InFlight returns the current concurrency counter, for metrics.
func (l *Limiter) InFlight(ctx context.Context) int {
	if l.redis == nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.localConc
	}
	v, err := l.redis.Get(ctx, l.concKey()).Int()
	if err != nil {
		return 0
	}
	return v
}

func (l *Limiter) tokensKey(now time.Time) string {
	bucket := now.Unix() / int64(l.cfg.Window.Seconds())
	return fmt.Sprintf("%s:tokens:%d", l.cfg.KeyPrefix, bucket)
}

func (l *Limiter) concKey() string {
	return l.cfg.KeyPrefix + ":inflight"
}

func (l *Limiter) acquireLocal(estimated int) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollBucketLocked(time.Now())
	if l.localTokens+estimated > l.cfg.TokenCeiling {
		return nil, ErrRateLimited
	}
	if l.localConc >= l.cfg.MaxConcurrent {
		return nil, ErrRateLimited
	}
	l.localConc++
	return l.releaseLocal, nil
}

func (l *Limiter) releaseLocal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.localConc > 0 {
		l.localConc--
	}
}

func (l *Limiter) recordLocal(tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollBucketLocked(time.Now())
	l.localTokens += tokens
}

// rollBucketLocked resets the local token counter when the window
// bucket changes, mirroring the per-bucket Redis keys.
func (l *Limiter) rollBucketLocked(now time.Time) {
	bucket := now.Unix() / int64(l.cfg.Window.Seconds())
	if bucket != l.localBucket {
		l.localBucket = bucket
		l.localTokens = 0
	}
}
