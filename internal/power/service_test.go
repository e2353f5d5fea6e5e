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

package power

import (
	"context"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratoctl/vmpower/internal/providers/contracts"
)

// stubProvider records every call so tests can assert exactly how often the
// control plane was reached.
type stubProvider struct {
	mu sync.Mutex

	instanceViewCalls int
	startCalls        int
	deallocateCalls   int

	view          contracts.InstanceView
	instanceErr   error
	startErr      error
	deallocateErr error
}

func (s *stubProvider) InstanceView(ctx context.Context, ref contracts.VmReference) (contracts.InstanceView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instanceViewCalls++
	return s.view, s.instanceErr
}

func (s *stubProvider) Start(ctx context.Context, ref contracts.VmReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	return s.startErr
}

func (s *stubProvider) Deallocate(ctx context.Context, ref contracts.VmReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deallocateCalls++
	return s.deallocateErr
}

func (s *stubProvider) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instanceViewCalls + s.startCalls + s.deallocateCalls
}

func newTestService(stub *stubProvider) *Service {
	return NewService(stub, "stub", logr.Discard())
}

func validRef() contracts.VmReference {
	return contracts.VmReference{SubscriptionID: "s1", ResourceGroup: "rg1", Name: "vm1"}
}

func TestService_Status_NormalizesDeallocated(t *testing.T) {
	stub := &stubProvider{view: contracts.InstanceView{Statuses: []contracts.InstanceViewStatus{
		{Code: "ProvisioningState/succeeded"},
		{Code: "PowerState/deallocated", DisplayStatus: "VM deallocated"},
	}}}
	svc := newTestService(stub)

	status, err := svc.Status(context.Background(), validRef())

	require.NoError(t, err)
	assert.Equal(t, contracts.PowerStatusStopped, status)
	assert.Equal(t, 1, stub.instanceViewCalls)
}

func TestService_Status_UnknownForUnrecognizedState(t *testing.T) {
	stub := &stubProvider{view: contracts.InstanceView{Statuses: []contracts.InstanceViewStatus{
		{Code: "PowerState/hibernated"},
	}}}
	svc := newTestService(stub)

	status, err := svc.Status(context.Background(), validRef())

	require.NoError(t, err)
	assert.Equal(t, contracts.PowerStatusUnknown, status)
}

func TestService_Status_IncompleteReference(t *testing.T) {
	tests := []struct {
		name string
		ref  contracts.VmReference
	}{
		{name: "missing subscription", ref: contracts.VmReference{ResourceGroup: "rg1", Name: "vm1"}},
		{name: "missing resource group", ref: contracts.VmReference{SubscriptionID: "s1", Name: "vm1"}},
		{name: "missing name", ref: contracts.VmReference{SubscriptionID: "s1", ResourceGroup: "rg1"}},
		{name: "all empty", ref: contracts.VmReference{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubProvider{}
			svc := newTestService(stub)

			_, err := svc.Status(context.Background(), tt.ref)

			assert.True(t, contracts.IsValidation(err))
			assert.ErrorIs(t, err, contracts.ErrIncompleteReference)
			assert.Zero(t, stub.totalCalls(), "validation failures must not reach the provider")
		})
	}
}

func TestService_Status_ProviderErrorSurfaced(t *testing.T) {
	provErr := contracts.NewThrottledError("TooManyRequests: subscription rate limit exceeded", nil)
	stub := &stubProvider{instanceErr: provErr}
	svc := newTestService(stub)

	_, err := svc.Status(context.Background(), validRef())

	require.Error(t, err)
	assert.True(t, contracts.IsThrottled(err))
	assert.True(t, contracts.IsRetryable(err))
	assert.Contains(t, err.Error(), "subscription rate limit exceeded")
}

func TestService_Toggle_DispatchesStart(t *testing.T) {
	stub := &stubProvider{}
	svc := newTestService(stub)

	result, err := svc.Toggle(context.Background(), contracts.ToggleRequest{Ref: validRef(), Action: contracts.ActionStart})

	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, contracts.ActionStart, result.Action)
	assert.Equal(t, 1, stub.startCalls)
	assert.Equal(t, 0, stub.deallocateCalls)
}

func TestService_Toggle_StopDispatchesDeallocate(t *testing.T) {
	stub := &stubProvider{}
	svc := newTestService(stub)

	result, err := svc.Toggle(context.Background(), contracts.ToggleRequest{Ref: validRef(), Action: contracts.ActionStop})

	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, 1, stub.deallocateCalls)
	assert.Equal(t, 0, stub.startCalls)
}

func TestService_Toggle_InvalidAction(t *testing.T) {
	tests := []struct {
		name   string
		action contracts.ToggleAction
	}{
		{name: "restart", action: "restart"},
		{name: "capitalized start", action: "Start"},
		{name: "empty", action: ""},
		{name: "whitespace", action: " stop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubProvider{}
			svc := newTestService(stub)

			result, err := svc.Toggle(context.Background(), contracts.ToggleRequest{Ref: validRef(), Action: tt.action})

			assert.True(t, contracts.IsValidation(err))
			assert.ErrorIs(t, err, contracts.ErrInvalidAction)
			assert.False(t, result.Accepted)
			assert.Zero(t, stub.totalCalls())
		})
	}
}

func TestService_Toggle_ReferenceCheckedBeforeAction(t *testing.T) {
	stub := &stubProvider{}
	svc := newTestService(stub)

	// Both the reference and the action are bad; the reference violation wins.
	_, err := svc.Toggle(context.Background(), contracts.ToggleRequest{
		Ref:    contracts.VmReference{SubscriptionID: "s1"},
		Action: "restart",
	})

	assert.ErrorIs(t, err, contracts.ErrIncompleteReference)
	assert.Zero(t, stub.totalCalls())
}

func TestService_Toggle_NoLocalDeduplication(t *testing.T) {
	stub := &stubProvider{}
	svc := newTestService(stub)
	req := contracts.ToggleRequest{Ref: validRef(), Action: contracts.ActionStart}

	for i := 0; i < 2; i++ {
		result, err := svc.Toggle(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, result.Accepted)
	}

	assert.Equal(t, 2, stub.startCalls, "identical toggles must each reach the provider")
}

func TestService_Toggle_ProviderRejection(t *testing.T) {
	provErr := contracts.NewUnauthorizedError("AuthorizationFailed: client lacks permission", nil)
	stub := &stubProvider{startErr: provErr}
	svc := newTestService(stub)

	result, err := svc.Toggle(context.Background(), contracts.ToggleRequest{Ref: validRef(), Action: contracts.ActionStart})

	require.Error(t, err)
	assert.False(t, result.Accepted)
	assert.True(t, contracts.IsUnauthorized(err))
	assert.Contains(t, err.Error(), "AuthorizationFailed")
	assert.Equal(t, 1, stub.startCalls, "the rejection happened at the provider, after dispatch")
}

func TestService_Status_CancelledPassesThrough(t *testing.T) {
	provErr := contracts.NewCancelledError("instance view query cancelled", context.Canceled)
	stub := &stubProvider{instanceErr: provErr}
	svc := newTestService(stub)

	_, err := svc.Status(context.Background(), validRef())

	assert.True(t, contracts.IsCancelled(err))
	assert.ErrorIs(t, err, context.Canceled)
}
