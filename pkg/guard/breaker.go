package guard

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned by Execute while the breaker is open. It
// is an expected outcome: the AI classifier degrades to keyword
// fallback instead of hammering a failing service.
var ErrCircuitOpen = errors.New("ai circuit breaker open")

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening (default: 5)
	Cooldown         time.Duration // open duration before a half-open probe (default: 60s)
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig(name string) *BreakerConfig {
	return &BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

// Breaker wraps gobreaker with the narrow surface the pipeline needs:
// a pre-flight CanExecute check and an Execute that records the outcome
// on every exit path.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a circuit breaker.
func NewBreaker(cfg *BreakerConfig, log zerolog.Logger) *Breaker {
	if cfg == nil {
		cfg = DefaultBreakerConfig("default")
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1, // single probe in half-open
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// CanExecute reports whether a call may be attempted. It is false only
// while the breaker is open and the cooldown has not elapsed; after the
// cooldown the breaker moves to half-open and allows a probe.
func (b *Breaker) CanExecute() bool {
	return b.cb.State() != gobreaker.StateOpen
}

// Execute runs fn, recording success or failure. While the breaker is
// open (or the half-open probe slot is taken) it returns ErrCircuitOpen
// without invoking fn.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) { return nil, fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns the breaker state as a string, for metrics.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
