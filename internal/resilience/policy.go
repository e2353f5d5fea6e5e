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

	"github.com/stratoctl/vmpower/internal/providers/contracts"
)

// Policy combines retry and circuit breaker behavior for provider calls.
// Either part may be nil, in which case it is skipped.
type Policy struct {
	Retry          *RetryConfig
	CircuitBreaker *CircuitBreaker
}

// Execute runs fn under the policy. Each retry attempt passes through the
// circuit breaker so an open circuit rejects without reaching the provider.
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	wrapped := fn
	if p.CircuitBreaker != nil {
		cb := p.CircuitBreaker
		wrapped = func(ctx context.Context) error {
			return cb.Call(func() error {
				return fn(ctx)
			})
		}
	}

	if p.Retry != nil {
		return Retry(ctx, p.Retry, wrapped)
	}
	return wrapped(ctx)
}

// PolicyBuilder builds a Policy fluently.
type PolicyBuilder struct {
	policy *Policy
}

// NewPolicyBuilder creates a new policy builder.
func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{policy: &Policy{}}
}

// WithRetry sets the retry configuration.
func (b *PolicyBuilder) WithRetry(config *RetryConfig) *PolicyBuilder {
	b.policy.Retry = config
	return b
}

// WithCircuitBreaker sets the circuit breaker.
func (b *PolicyBuilder) WithCircuitBreaker(cb *CircuitBreaker) *PolicyBuilder {
	b.policy.CircuitBreaker = cb
	return b
}

// Build returns the assembled policy.
func (b *PolicyBuilder) Build() *Policy {
	return b.policy
}

// Provider decorates a provider with a resilience policy. The zero policy is
// a passthrough; WrapProvider returns the inner provider unchanged in that
// case so the default path stays single-dispatch.
type Provider struct {
	inner  contracts.Provider
	policy *Policy
}

// WrapProvider applies policy to inner. A nil or empty policy returns inner
// as-is.
func WrapProvider(inner contracts.Provider, policy *Policy) contracts.Provider {
	if policy == nil || (policy.Retry == nil && policy.CircuitBreaker == nil) {
		return inner
	}
	return &Provider{inner: inner, policy: policy}
}

// InstanceView fetches the runtime view under the policy.
func (p *Provider) InstanceView(ctx context.Context, ref contracts.VmReference) (contracts.InstanceView, error) {
	var view contracts.InstanceView
	err := p.policy.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		view, callErr = p.inner.InstanceView(ctx, ref)
		return callErr
	})
	return view, err
}

// Start dispatches a start under the policy.
func (p *Provider) Start(ctx context.Context, ref contracts.VmReference) error {
	return p.policy.Execute(ctx, func(ctx context.Context) error {
		return p.inner.Start(ctx, ref)
	})
}

// Deallocate dispatches a deallocation under the policy.
func (p *Provider) Deallocate(ctx context.Context, ref contracts.VmReference) error {
	return p.policy.Execute(ctx, func(ctx context.Context) error {
		return p.inner.Deallocate(ctx, ref)
	})
}
