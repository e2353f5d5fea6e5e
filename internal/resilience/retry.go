/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package resilience provides opt-in retry and circuit breaker policies for
// provider calls. The default policy dispatches exactly once; retries must be
// enabled explicitly through configuration.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/stratoctl/vmpower/internal/providers/contracts"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// BaseDelay is the initial delay between retries.
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier.
	Multiplier float64

	// Jitter adds randomness to delays to avoid thundering herd.
	Jitter bool
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// NoRetryConfig returns a configuration that dispatches exactly once.
func NoRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 1,
	}
}

// IsRetryable reports whether an error is worth retrying. Cancellation and
// validation failures are never retried; the classification set by the
// provider decides the rest.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if contracts.IsCancelled(err) {
		return false
	}
	return contracts.IsRetryable(err)
}

// Retry executes fn with the given retry configuration. It returns the result
// of the first successful attempt, or the last error once attempts are
// exhausted or the error is not retryable.
func Retry(ctx context.Context, config *RetryConfig, fn func(ctx context.Context) error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return contracts.NewCancelledError("retry aborted", err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) {
			return lastErr
		}

		if attempt == config.MaxAttempts {
			break
		}

		delay := calculateDelay(config, attempt)
		select {
		case <-ctx.Done():
			return contracts.NewCancelledError("retry aborted", ctx.Err())
		case <-time.After(delay):
		}
	}

	return lastErr
}

// calculateDelay computes the delay before the next attempt using exponential
// backoff with optional jitter.
func calculateDelay(config *RetryConfig, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		// Full jitter: pick uniformly from [delay/2, delay].
		half := delay / 2
		delay = half + rand.Float64()*half
	}

	return time.Duration(delay)
}
