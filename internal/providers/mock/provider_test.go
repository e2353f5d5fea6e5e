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

package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratoctl/vmpower/internal/providers/contracts"
)

const (
	testSubscription  = "11111111-1111-1111-1111-111111111111"
	testResourceGroup = "demo-rg"
)

func testRef(name string) contracts.VmReference {
	return contracts.VmReference{
		SubscriptionID: testSubscription,
		ResourceGroup:  testResourceGroup,
		Name:           name,
	}
}

func TestMockInstanceView(t *testing.T) {
	provider := NewProvider()

	view, err := provider.InstanceView(context.Background(), testRef("demo-vm-1"))
	require.NoError(t, err)

	assert.Equal(t, contracts.PowerStatusRunning, view.PowerStatus())
	assert.Equal(t, 1, provider.GetVM(testSubscription, testResourceGroup, "demo-vm-1").InstanceViewCalls)
}

func TestMockInstanceViewDeallocated(t *testing.T) {
	provider := NewProvider()

	view, err := provider.InstanceView(context.Background(), testRef("demo-vm-2"))
	require.NoError(t, err)

	assert.Equal(t, contracts.PowerStatusStopped, view.PowerStatus())
}

func TestMockInstanceViewNotFound(t *testing.T) {
	provider := NewProvider()

	_, err := provider.InstanceView(context.Background(), testRef("missing-vm"))
	require.Error(t, err)
	assert.True(t, contracts.IsNotFound(err))
}

func TestMockStartSettles(t *testing.T) {
	provider := NewProvider()
	provider.AddVM(testSubscription, testResourceGroup, "web-01", "deallocated")

	err := provider.Start(context.Background(), testRef("web-01"))
	require.NoError(t, err)

	// Accepted immediately in a transitional state
	assert.Equal(t, 1, provider.GetVM(testSubscription, testResourceGroup, "web-01").StartCalls)
	view, err := provider.InstanceView(context.Background(), testRef("web-01"))
	require.NoError(t, err)
	assert.Equal(t, contracts.PowerStatusStarting, view.PowerStatus())

	// Settles to running without further calls
	assert.Eventually(t, func() bool {
		view, err := provider.InstanceView(context.Background(), testRef("web-01"))
		return err == nil && view.PowerStatus() == contracts.PowerStatusRunning
	}, 3*time.Second, 50*time.Millisecond)
}

func TestMockDeallocateSettles(t *testing.T) {
	provider := NewProvider()
	provider.AddVM(testSubscription, testResourceGroup, "web-02", "running")

	err := provider.Deallocate(context.Background(), testRef("web-02"))
	require.NoError(t, err)

	assert.Equal(t, 1, provider.GetVM(testSubscription, testResourceGroup, "web-02").DeallocateCalls)

	assert.Eventually(t, func() bool {
		view, err := provider.InstanceView(context.Background(), testRef("web-02"))
		return err == nil && view.PowerStatus() == contracts.PowerStatusStopped
	}, 3*time.Second, 50*time.Millisecond)
}

func TestMockRepeatedDispatch(t *testing.T) {
	provider := NewProvider()
	provider.AddVM(testSubscription, testResourceGroup, "web-03", "running")

	require.NoError(t, provider.Start(context.Background(), testRef("web-03")))
	require.NoError(t, provider.Start(context.Background(), testRef("web-03")))

	assert.Equal(t, 2, provider.GetVM(testSubscription, testResourceGroup, "web-03").StartCalls)
}

func TestMockFailureModes(t *testing.T) {
	provider := NewProvider()
	provider.SetFailureMode("start")

	err := provider.Start(context.Background(), testRef("demo-vm-1"))
	require.Error(t, err)
	assert.Equal(t, contracts.ErrorTypeInternal, contracts.TypeOf(err))

	// Other operations still succeed
	_, err = provider.InstanceView(context.Background(), testRef("demo-vm-1"))
	assert.NoError(t, err)

	provider.SetFailureMode("all")
	_, err = provider.InstanceView(context.Background(), testRef("demo-vm-1"))
	assert.Error(t, err)
}
