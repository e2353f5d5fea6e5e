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

package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/stratoctl/vmpower/internal/obs/metrics"
	"github.com/stratoctl/vmpower/internal/providers/contracts"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows all requests through.
	CircuitClosed CircuitState = iota

	// CircuitOpen rejects all requests.
	CircuitOpen

	// CircuitHalfOpen allows a limited number of probe requests.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// ResetTimeout is how long to wait before transitioning to half-open.
	ResetTimeout time.Duration

	// HalfOpenMaxCalls is the number of probe calls allowed in half-open state.
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig returns a sensible default configuration.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		FailureThreshold: 10,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// CircuitBreaker protects a provider from cascading failures by rejecting
// calls fast once the failure threshold is crossed.
type CircuitBreaker struct {
	name     string
	provider string
	config   *CircuitBreakerConfig
	metrics  *metrics.CircuitBreakerMetrics

	mu              sync.Mutex
	state           CircuitState
	failures        int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenSuccess int
}

// NewCircuitBreaker creates a circuit breaker for the named provider.
func NewCircuitBreaker(name, provider string, config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	cb := &CircuitBreaker{
		name:     name,
		provider: provider,
		config:   config,
		state:    CircuitClosed,
		metrics:  metrics.NewCircuitBreakerMetrics(provider),
	}
	cb.metrics.SetState(metrics.CircuitBreakerClosed)
	return cb
}

// Call executes fn if the circuit allows it. When the circuit is open the
// call is rejected without invoking fn.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()
	cb.afterCall(err)
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the circuit back to closed and clears failure counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitClosed)
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if time.Since(cb.lastFailure) >= cb.config.ResetTimeout {
			cb.transitionTo(CircuitHalfOpen)
			cb.halfOpenCalls++
			return nil
		}
		return contracts.NewUnavailableError(
			fmt.Sprintf("circuit breaker %s is open", cb.name), nil)

	case CircuitHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return contracts.NewUnavailableError(
				fmt.Sprintf("circuit breaker %s is probing", cb.name), nil)
		}
		cb.halfOpenCalls++
		return nil

	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.onSuccess()
		return
	}

	// Cancellation says nothing about provider health.
	if contracts.IsCancelled(err) || contracts.IsValidation(err) {
		return
	}

	cb.onFailure()
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0

	case CircuitHalfOpen:
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.config.HalfOpenMaxCalls {
			cb.transitionTo(CircuitClosed)
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = time.Now()
	cb.metrics.RecordFailure()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}

	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

// transitionTo changes state and resets per-state counters. Callers must hold
// the lock.
func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	cb.state = state
	switch state {
	case CircuitClosed:
		cb.failures = 0
		cb.halfOpenCalls = 0
		cb.halfOpenSuccess = 0
		cb.metrics.SetState(metrics.CircuitBreakerClosed)
	case CircuitOpen:
		cb.halfOpenCalls = 0
		cb.halfOpenSuccess = 0
		cb.metrics.SetState(metrics.CircuitBreakerOpen)
	case CircuitHalfOpen:
		cb.halfOpenCalls = 0
		cb.halfOpenSuccess = 0
		cb.metrics.SetState(metrics.CircuitBreakerHalfOpen)
	}
}

// Registry manages circuit breakers keyed by provider and name.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a new circuit breaker registry.
func NewRegistry() *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate returns the breaker for provider/name, creating it on first use.
func (r *Registry) GetOrCreate(name, provider string, config *CircuitBreakerConfig) *CircuitBreaker {
	key := provider + ":" + name

	r.mu.RLock()
	cb, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[key]; ok {
		return cb
	}

	cb = NewCircuitBreaker(name, provider, config)
	r.breakers[key] = cb
	return cb
}

// Reset resets every breaker in the registry.
func (r *Registry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cb := range r.breakers {
		cb.Reset()
	}
}
