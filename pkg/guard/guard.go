package guard

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Guard is the process-wide gatekeeper for the external AI service.
// It is constructed once in bootstrap and injected by reference; the
// limiter state is shared across processes through Redis.
type Guard struct {
	Breaker *Breaker
	Limiter *Limiter
}

// Config aggregates both gates.
type Config struct {
	TokenCeiling     int
	MaxConcurrent    int
	Window           time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

// New creates a Guard. redisClient may be nil (local-only counters).
func New(redisClient *redis.Client, cfg Config, log zerolog.Logger) *Guard {
	lc := DefaultLimiterConfig()
	if cfg.TokenCeiling > 0 {
		lc.TokenCeiling = cfg.TokenCeiling
	}
	if cfg.MaxConcurrent > 0 {
		lc.MaxConcurrent = cfg.MaxConcurrent
	}
	if cfg.Window > 0 {
		lc.Window = cfg.Window
	}

	bc := DefaultBreakerConfig("ai-classifier")
	if cfg.FailureThreshold > 0 {
		bc.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.Cooldown > 0 {
		bc.Cooldown = cfg.Cooldown
	}

	return &Guard{
		Breaker: NewBreaker(bc, log),
		Limiter: NewLimiter(redisClient, lc),
	}
}
