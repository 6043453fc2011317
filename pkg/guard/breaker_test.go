package guard

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(&BreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		Cooldown:         time.Minute,
	}, zerolog.Nop())

	boom := errors.New("upstream down")
	for i := 0; i < 3; i++ {
		if !b.CanExecute() {
			t.Fatalf("breaker open after %d failures, threshold is 3", i)
		}
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("Execute = %v, want %v", err, boom)
		}
	}

	if b.CanExecute() {
		t.Fatal("breaker still closed after reaching failure threshold")
	}
	if err := b.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Fatalf("Execute while open = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(&BreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		Cooldown:         time.Minute,
	}, zerolog.Nop())

	boom := errors.New("flaky")
	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return boom })

	if !b.CanExecute() {
		t.Fatal("breaker opened without consecutive failures reaching threshold")
	}
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	b := NewBreaker(&BreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		Cooldown:         50 * time.Millisecond,
	}, zerolog.Nop())

	_ = b.Execute(func() error { return errors.New("down") })
	if b.CanExecute() {
		t.Fatal("breaker closed immediately after trip")
	}

	time.Sleep(80 * time.Millisecond)

	// Half-open: one probe is allowed, and on success the breaker closes.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe after cooldown = %v, want nil", err)
	}
	if !b.CanExecute() {
		t.Fatal("breaker not closed after successful probe")
	}
}
