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

// Package mock provides an in-memory provider implementation for testing
// and demos. VMs are keyed by subscription, resource group, and name;
// power operations settle asynchronously like the real control plane.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/stratoctl/vmpower/internal/providers/contracts"
)

// settleDelay is how long a dispatched power operation takes to reach
// its final state.
const settleDelay = 500 * time.Millisecond

// Provider implements an in-memory provider for testing and demos
type Provider struct {
	mu          sync.RWMutex
	vms         map[string]*VirtualMachine
	failureMode string
	slowMode    bool
}

// VirtualMachine represents a mock virtual machine
type VirtualMachine struct {
	Name           string
	ResourceGroup  string
	SubscriptionID string
	PowerState     string // raw state, e.g. "running" or "deallocated"
	Created        time.Time
	LastUpdated    time.Time

	// Call counters for test assertions
	InstanceViewCalls int
	StartCalls        int
	DeallocateCalls   int
}

// NewProvider creates a new mock provider
func NewProvider() *Provider {
	provider := &Provider{
		vms:         make(map[string]*VirtualMachine),
		failureMode: os.Getenv("MOCK_FAILURE_MODE"),
		slowMode:    os.Getenv("MOCK_SLOW_MODE") == "true",
	}

	// Create some sample VMs for demos
	provider.createSampleVMs()

	return provider
}

// createSampleVMs creates some sample VMs for demonstration
func (p *Provider) createSampleVMs() {
	sampleVMs := []struct {
		name       string
		powerState string
	}{
		{"demo-vm-1", "running"},
		{"demo-vm-2", "deallocated"},
		{"demo-vm-3", "starting"},
	}

	for i, sample := range sampleVMs {
		vm := &VirtualMachine{
			Name:           sample.name,
			ResourceGroup:  "demo-rg",
			SubscriptionID: "11111111-1111-1111-1111-111111111111",
			PowerState:     sample.powerState,
			Created:        time.Now().Add(-time.Duration(i+1) * time.Hour),
			LastUpdated:    time.Now(),
		}
		p.vms[vmKey(vm.SubscriptionID, vm.ResourceGroup, vm.Name)] = vm
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "mock"
}

// AddVM seeds an additional VM
func (p *Provider) AddVM(subscriptionID, resourceGroup, name, powerState string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.vms[vmKey(subscriptionID, resourceGroup, name)] = &VirtualMachine{
		Name:           name,
		ResourceGroup:  resourceGroup,
		SubscriptionID: subscriptionID,
		PowerState:     powerState,
		Created:        time.Now(),
		LastUpdated:    time.Now(),
	}
}

// GetVM returns a snapshot of a seeded VM, or nil if absent
func (p *Provider) GetVM(subscriptionID, resourceGroup, name string) *VirtualMachine {
	p.mu.RLock()
	defer p.mu.RUnlock()

	vm, ok := p.vms[vmKey(subscriptionID, resourceGroup, name)]
	if !ok {
		return nil
	}
	snapshot := *vm
	return &snapshot
}

// SetFailureMode switches the failure mode at runtime
func (p *Provider) SetFailureMode(mode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failureMode = mode
}

// InstanceView returns the VM's instance view
func (p *Provider) InstanceView(ctx context.Context, ref contracts.VmReference) (contracts.InstanceView, error) {
	p.simulateDelay()

	if p.shouldFail("instance_view") {
		return contracts.InstanceView{}, contracts.NewInternalError("mock provider configured to fail instance view operations", nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	vm, exists := p.vms[vmKey(ref.SubscriptionID, ref.ResourceGroup, ref.Name)]
	if !exists {
		return contracts.InstanceView{}, contracts.NewNotFoundError(fmt.Sprintf("virtual machine %s not found", ref.String()), nil)
	}

	vm.InstanceViewCalls++

	return contracts.InstanceView{
		Statuses: []contracts.InstanceViewStatus{
			{Code: "ProvisioningState/succeeded", DisplayStatus: "Provisioning succeeded"},
			{Code: "PowerState/" + vm.PowerState, DisplayStatus: "VM " + vm.PowerState},
		},
	}, nil
}

// Start dispatches a start command for the VM
func (p *Provider) Start(ctx context.Context, ref contracts.VmReference) error {
	p.simulateDelay()

	if p.shouldFail("start") {
		return contracts.NewInternalError("mock provider configured to fail start operations", nil)
	}

	return p.power(ref, "starting", "running", func(vm *VirtualMachine) { vm.StartCalls++ })
}

// Deallocate dispatches a deallocate command for the VM
func (p *Provider) Deallocate(ctx context.Context, ref contracts.VmReference) error {
	p.simulateDelay()

	if p.shouldFail("deallocate") {
		return contracts.NewInternalError("mock provider configured to fail deallocate operations", nil)
	}

	return p.power(ref, "stopping", "deallocated", func(vm *VirtualMachine) { vm.DeallocateCalls++ })
}

// power moves a VM into a transitional state and settles it later.
// It returns once the command is accepted, without waiting for the
// final state.
func (p *Provider) power(ref contracts.VmReference, transitional, final string, record func(*VirtualMachine)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	vm, exists := p.vms[vmKey(ref.SubscriptionID, ref.ResourceGroup, ref.Name)]
	if !exists {
		return contracts.NewNotFoundError(fmt.Sprintf("virtual machine %s not found", ref.String()), nil)
	}

	record(vm)
	vm.PowerState = transitional
	vm.LastUpdated = time.Now()

	go func() {
		time.Sleep(settleDelay)
		p.mu.Lock()
		vm.PowerState = final
		vm.LastUpdated = time.Now()
		p.mu.Unlock()
	}()

	return nil
}

// shouldFail checks if the provider should fail for the given operation
func (p *Provider) shouldFail(operation string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.failureMode == "" {
		return false
	}

	// Support specific operation failures and "all" failures
	return p.failureMode == operation || p.failureMode == "all"
}

// simulateDelay simulates network/processing delay if slow mode is enabled
func (p *Provider) simulateDelay() {
	if p.slowMode {
		delay := time.Duration(rand.Intn(500)+100) * time.Millisecond
		time.Sleep(delay)
	}
}

func vmKey(subscriptionID, resourceGroup, name string) string {
	return subscriptionID + "/" + resourceGroup + "/" + name
}
