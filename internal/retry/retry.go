// Package retry wraps cenkalti/backoff/v4 with the one exponential
// backoff shape the bridge needs in two places: TCP reconnect delay and
// HTTP inline-retry delay. Both follow the same
// delay = min(base*factor^(attempt-1), max) * (1 + U(-jitter, +jitter))
// formula, just with different tuning, so the math lives here once.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config parameterizes one backoff series.
type Config struct {
	Base    time.Duration
	Factor  float64
	Max     time.Duration
	Jitter  float64
}

// DefaultReconnect matches the decoder TCP reconnect defaults. The HTTP
// inline-retry series has no matching Default*: its Base/Factor come
// from post.retryDelayMs/post.retryBackoffMultiplier at the call site
// (internal/delivery.Pipeline.Deliver), since those are runtime-configured
// per spec.md §4.E rather than fixed.
func DefaultReconnect() Config {
	return Config{Base: 1000 * time.Millisecond, Factor: 1.8, Max: 30 * time.Second, Jitter: 0.2}
}

// Backoff is a stateful delay sequence for one connection/delivery
// attempt series. It is not safe for concurrent use; each caller (one
// TCP supervisor, one in-flight HTTP delivery) owns its own instance.
type Backoff struct {
	eb *backoff.ExponentialBackOff
}

// New builds a Backoff from cfg. The underlying cenkalti/backoff clock
// is left at its default (real time); MaxElapsedTime is disabled because
// the bridge retries forever, not up to a deadline.
func New(cfg Config) *Backoff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.Base
	eb.Multiplier = cfg.Factor
	eb.MaxInterval = cfg.Max
	eb.RandomizationFactor = cfg.Jitter
	eb.MaxElapsedTime = 0
	eb.Reset()
	return &Backoff{eb: eb}
}

// Next returns the delay before the next attempt and advances the
// sequence. The first call after New (or Reset) returns the base delay
// with jitter applied, i.e. attempt=1 in the package doc's formula.
func (b *Backoff) Next() time.Duration {
	return b.eb.NextBackOff()
}

// Reset restarts the sequence at attempt=1; the TCP supervisor calls it
// after a successful connect.
func (b *Backoff) Reset() {
	b.eb.Reset()
}
