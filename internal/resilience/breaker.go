// Package resilience provides gateway failover for the speech-to-text and
// note generation providers.
//
// A [Breaker] guards a single upstream gateway: after a run of consecutive
// failures it opens and rejects calls until a cooldown elapses, then admits a
// single probe call to decide whether the gateway has recovered. A [Chain]
// composes several gateways of the same kind, each behind its own breaker,
// and tries them in order until one answers.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when a breaker rejects a call during cooldown.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerConfig tunes a [Breaker]. Zero fields use the defaults.
type BreakerConfig struct {
	// Name labels the guarded gateway in log output.
	Name string

	// Trip is the number of consecutive failures that opens the breaker.
	// Default: 3.
	Trip int

	// Cooldown is how long the breaker rejects calls after opening before
	// admitting a probe. Default: 30s.
	Cooldown time.Duration
}

// Breaker rejects calls to a failing gateway until it shows signs of
// recovery. Recovery is probed with a single call after each cooldown: a
// successful probe closes the breaker, a failed one restarts the cooldown.
type Breaker struct {
	name     string
	trip     int
	cooldown time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{name: cfg.Name, trip: cfg.Trip, cooldown: cfg.Cooldown}
}

// Do runs fn unless the breaker is open, in which case it returns
// [ErrBreakerOpen] without calling fn.
func (b *Breaker) Do(fn func() error) error {
	if !b.admit() {
		return ErrBreakerOpen
	}
	err := fn()
	b.settle(err)
	return err
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.trip && time.Since(b.openedAt) < b.cooldown
}

// admit decides whether a call may proceed. While open and past the cooldown
// it lets exactly one probe through; concurrent calls during a probe are
// rejected until the probe settles.
func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.trip {
		return true
	}
	if b.probing || time.Since(b.openedAt) < b.cooldown {
		return false
	}
	b.probing = true
	slog.Info("probing gateway after cooldown", "gateway", b.name)
	return true
}

// settle records the outcome of an admitted call.
func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.probing
	b.probing = false

	if err == nil {
		if b.failures >= b.trip {
			slog.Info("gateway recovered, breaker closed", "gateway", b.name)
		}
		b.failures = 0
		return
	}

	b.failures++
	if wasProbe || b.failures == b.trip {
		b.openedAt = time.Now()
		slog.Warn("breaker opened",
			"gateway", b.name,
			"consecutive_failures", b.failures,
			"cooldown", b.cooldown,
		)
	}
}
