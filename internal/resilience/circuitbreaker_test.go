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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratoctl/vmpower/internal/providers/contracts"
)

func newTestBreaker() *CircuitBreaker {
	return NewCircuitBreaker("compute", "test", &CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     50 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	})
}

func failProviderCall() error {
	return contracts.NewUnavailableError("control plane down", nil)
}

func tripBreaker(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	for i := 0; i < 3; i++ {
		_ = cb.Call(failProviderCall)
	}
	require.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := newTestBreaker()
	assert.Equal(t, CircuitClosed, cb.State())

	err := cb.Call(func() error { return nil })
	assert.NoError(t, err)
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 2; i++ {
		_ = cb.Call(failProviderCall)
		assert.Equal(t, CircuitClosed, cb.State())
	}

	_ = cb.Call(failProviderCall)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerRejectsWhenOpen(t *testing.T) {
	cb := newTestBreaker()
	tripBreaker(t, cb)

	calls := 0
	err := cb.Call(func() error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, 0, calls, "open circuit must not invoke the call")
	assert.Equal(t, contracts.ErrorTypeUnavailable, contracts.TypeOf(err))
	assert.Contains(t, err.Error(), "is open")
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker()

	_ = cb.Call(failProviderCall)
	_ = cb.Call(failProviderCall)
	require.NoError(t, cb.Call(func() error { return nil }))
	_ = cb.Call(failProviderCall)
	_ = cb.Call(failProviderCall)

	assert.Equal(t, CircuitClosed, cb.State(), "failures must be consecutive to open the circuit")
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 5; i++ {
		_ = cb.Call(func() error {
			return contracts.NewCancelledError("client gone", nil)
		})
	}

	assert.Equal(t, CircuitClosed, cb.State(), "cancellation says nothing about provider health")
}

func TestCircuitBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	cb := newTestBreaker()
	tripBreaker(t, cb)

	time.Sleep(60 * time.Millisecond)

	calls := 0
	err := cb.Call(func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, CircuitHalfOpen, cb.State())
}

func TestCircuitBreakerClosesAfterProbeSuccesses(t *testing.T) {
	cb := newTestBreaker()
	tripBreaker(t, cb)

	time.Sleep(60 * time.Millisecond)

	require.NoError(t, cb.Call(func() error { return nil }))
	require.NoError(t, cb.Call(func() error { return nil }))

	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerReopensOnProbeFailure(t *testing.T) {
	cb := newTestBreaker()
	tripBreaker(t, cb)

	time.Sleep(60 * time.Millisecond)

	_ = cb.Call(failProviderCall)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerLimitsProbeCalls(t *testing.T) {
	cb := newTestBreaker()
	tripBreaker(t, cb)

	time.Sleep(60 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = cb.Call(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// One more probe fits under HalfOpenMaxCalls 2, the next is rejected.
	require.NoError(t, cb.Call(func() error { return nil }))

	err := cb.Call(func() error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probing")

	close(release)
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := newTestBreaker()
	tripBreaker(t, cb)

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Call(func() error { return nil }))
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry()

	a := r.GetOrCreate("compute", "azure", nil)
	b := r.GetOrCreate("compute", "azure", nil)
	c := r.GetOrCreate("compute", "mock", nil)

	assert.Same(t, a, b, "same provider and name must share a breaker")
	assert.NotSame(t, a, c)
}

func TestRegistryReset(t *testing.T) {
	r := NewRegistry()
	cb := r.GetOrCreate("compute", "test-registry", &CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		HalfOpenMaxCalls: 1,
	})

	_ = cb.Call(failProviderCall)
	require.Equal(t, CircuitOpen, cb.State())

	r.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}
