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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratoctl/vmpower/internal/providers/contracts"
)

type countingProvider struct {
	mu            sync.Mutex
	viewCalls     int
	startCalls    int
	deallocCalls  int
	instanceErr   error
	startErr      error
	deallocateErr error
}

func (p *countingProvider) InstanceView(ctx context.Context, ref contracts.VmReference) (contracts.InstanceView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewCalls++
	if p.instanceErr != nil {
		return contracts.InstanceView{}, p.instanceErr
	}
	return contracts.InstanceView{
		Statuses: []contracts.InstanceViewStatus{{Code: "PowerState/running"}},
	}, nil
}

func (p *countingProvider) Start(ctx context.Context, ref contracts.VmReference) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startCalls++
	return p.startErr
}

func (p *countingProvider) Deallocate(ctx context.Context, ref contracts.VmReference) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deallocCalls++
	return p.deallocateErr
}

func (p *countingProvider) counts() (int, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewCalls, p.startCalls, p.deallocCalls
}

func testRef() contracts.VmReference {
	return contracts.VmReference{
		SubscriptionID: "11111111-1111-1111-1111-111111111111",
		ResourceGroup:  "demo-rg",
		Name:           "demo-vm-1",
	}
}

func TestWrapProviderEmptyPolicyIsPassthrough(t *testing.T) {
	inner := &countingProvider{}

	assert.Same(t, contracts.Provider(inner), WrapProvider(inner, nil))
	assert.Same(t, contracts.Provider(inner), WrapProvider(inner, &Policy{}))
}

func TestWrappedProviderForwardsCalls(t *testing.T) {
	inner := &countingProvider{}
	p := WrapProvider(inner, NewPolicyBuilder().WithRetry(NoRetryConfig()).Build())

	view, err := p.InstanceView(context.Background(), testRef())
	require.NoError(t, err)
	assert.Equal(t, contracts.PowerStatusRunning, view.PowerStatus())

	require.NoError(t, p.Start(context.Background(), testRef()))
	require.NoError(t, p.Deallocate(context.Background(), testRef()))

	views, starts, deallocs := inner.counts()
	assert.Equal(t, []int{1, 1, 1}, []int{views, starts, deallocs})
}

func TestWrappedProviderRetriesThrottledReads(t *testing.T) {
	inner := &countingProvider{instanceErr: contracts.NewThrottledError("rate limited", nil)}
	p := WrapProvider(inner, NewPolicyBuilder().WithRetry(fastRetryConfig(3)).Build())

	_, err := p.InstanceView(context.Background(), testRef())
	require.Error(t, err)
	assert.True(t, contracts.IsThrottled(err))

	views, _, _ := inner.counts()
	assert.Equal(t, 3, views)
}

func TestWrappedProviderDoesNotRetryNotFound(t *testing.T) {
	inner := &countingProvider{startErr: contracts.NewNotFoundError("vm not found", nil)}
	p := WrapProvider(inner, NewPolicyBuilder().WithRetry(fastRetryConfig(3)).Build())

	err := p.Start(context.Background(), testRef())
	require.Error(t, err)
	assert.True(t, contracts.IsNotFound(err))

	_, starts, _ := inner.counts()
	assert.Equal(t, 1, starts)
}

func TestWrappedProviderTripsBreaker(t *testing.T) {
	inner := &countingProvider{deallocateErr: contracts.NewUnavailableError("control plane down", nil)}
	cb := NewCircuitBreaker("compute", "test-policy", &CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		HalfOpenMaxCalls: 1,
	})
	p := WrapProvider(inner, NewPolicyBuilder().WithCircuitBreaker(cb).Build())

	_ = p.Deallocate(context.Background(), testRef())
	_ = p.Deallocate(context.Background(), testRef())
	require.Equal(t, CircuitOpen, cb.State())

	err := p.Deallocate(context.Background(), testRef())
	require.Error(t, err)
	assert.Equal(t, contracts.ErrorTypeUnavailable, contracts.TypeOf(err))

	_, _, deallocs := inner.counts()
	assert.Equal(t, 2, deallocs, "open circuit must not reach the provider")
}

func TestPolicyRetryRunsEachAttemptThroughBreaker(t *testing.T) {
	inner := &countingProvider{startErr: contracts.NewUnavailableError("control plane down", nil)}
	cb := NewCircuitBreaker("compute", "test-policy-combined", &CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		HalfOpenMaxCalls: 1,
	})
	p := WrapProvider(inner, NewPolicyBuilder().
		WithRetry(fastRetryConfig(5)).
		WithCircuitBreaker(cb).
		Build())

	err := p.Start(context.Background(), testRef())
	require.Error(t, err)

	_, starts, _ := inner.counts()
	assert.Equal(t, 2, starts, "breaker opens after two failures and absorbs the remaining attempts")
	assert.Equal(t, CircuitOpen, cb.State())
}
