// Package healing keeps a failing notification sink from being hammered on
// every XP grant. Each sink gets a circuit breaker:
//   - CLOSED  (normal) → failures reach threshold → OPEN
//   - OPEN    (skipping) → after timeout → HALF_OPEN
//   - HALF_OPEN (probing) → enough probes succeed → CLOSED, a probe fails → OPEN
//
// Skipped deliveries are reported as ErrCircuitOpen, which the engine logs
// and drops like any other sink failure.
package healing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dadbase/dadbase/internal/domain"
	"github.com/dadbase/dadbase/internal/infra/metrics"
)

// ErrCircuitOpen is returned instead of delivering while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the breaker state.
type State int

const (
	Closed   State = iota // deliveries pass through
	Open                  // deliveries skipped
	HalfOpen              // probing with live deliveries
)

// String returns a human-readable state.
func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config configures a breaker.
type Config struct {
	FailureThreshold int           // consecutive-ish failures to trip (default 5)
	ResetTimeout     time.Duration // time OPEN before probing (default 30s)
	HalfOpenProbes   int           // successful probes needed to close (default 2)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenProbes:   2,
	}
}

// Breaker guards one notification sink. Safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	name      string
	sink      domain.Notifier
	config    Config
	state     State
	failures  int
	successes int
	trippedAt time.Time
	trips     int
	now       func() time.Time
}

// Guard wraps sink in a breaker named after the sink.
func Guard(name string, sink domain.Notifier, cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = def.HalfOpenProbes
	}
	b := &Breaker{name: name, sink: sink, config: cfg, now: time.Now}
	metrics.NotifierCircuitState.WithLabelValues(name).Set(float64(Closed))
	return b
}

// Notify delivers n unless the breaker is open.
func (b *Breaker) Notify(ctx context.Context, n domain.Notification) error {
	if err := b.allow(); err != nil {
		return err
	}
	if err := b.sink.Notify(ctx, n); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// State returns the current state, moving OPEN to HALF_OPEN once the reset
// timeout has passed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

// Trips returns how many times the breaker has opened.
func (b *Breaker) Trips() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setStateLocked(Closed)
	b.failures = 0
	b.successes = 0
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	if b.state == Open {
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.config.HalfOpenProbes {
			b.setStateLocked(Closed)
			b.failures = 0
			b.successes = 0
			log.WithField("sink", b.name).Info("notification sink recovered")
		}
	case Closed:
		if b.failures > 0 {
			b.failures--
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.tripLocked()
		}
	case HalfOpen:
		b.tripLocked()
	}
}

func (b *Breaker) tripLocked() {
	b.setStateLocked(Open)
	b.trippedAt = b.now()
	b.trips++
	log.WithFields(log.Fields{
		"sink":  b.name,
		"trips": b.trips,
		"retry": b.config.ResetTimeout,
	}).Warn("notification sink disabled after repeated failures")
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == Open && b.now().Sub(b.trippedAt) >= b.config.ResetTimeout {
		b.setStateLocked(HalfOpen)
		b.successes = 0
	}
}

func (b *Breaker) setStateLocked(s State) {
	b.state = s
	metrics.NotifierCircuitState.WithLabelValues(b.name).Set(float64(s))
}
