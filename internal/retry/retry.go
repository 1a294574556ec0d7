// Package retry wraps retry-go with the policy used around the archive store
// and the feedback generator.
package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultAttempts = 3
	defaultDelay    = 200 * time.Millisecond
	defaultMaxDelay = 2 * time.Second
)

// Config controls caller-side retries around the archive store and the
// feedback generator.
type Config struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// Default returns 3 attempts starting at 200ms and capped at 2s between tries.
func Default() Config {
	return Config{
		Attempts: defaultAttempts,
		Delay:    defaultDelay,
		MaxDelay: defaultMaxDelay,
	}
}

// Options converts the config to retry-go options bound to ctx.
func (c Config) Options(ctx context.Context) []retry.Option {
	attempts := c.Attempts
	if attempts == 0 {
		attempts = 1
	}
	maxDelay := c.MaxDelay
	if maxDelay < c.Delay {
		maxDelay = c.Delay
	}
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.Delay),
		retry.MaxDelay(maxDelay),
		retry.LastErrorOnly(true),
	}
}

// Do runs fn until it succeeds, the attempts run out or ctx is done.
func Do[T any](ctx context.Context, c Config, fn func() (T, error)) (T, error) {
	return retry.DoWithData(fn, c.Options(ctx)...)
}
