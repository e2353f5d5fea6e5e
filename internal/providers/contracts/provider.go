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

// Package contracts defines the provider-facing types shared by the power
// service and its provider implementations.
package contracts

import (
	"context"
)

// Provider is the compute control-plane capability the power service depends
// on. Implementations are injected so tests can substitute a recording stub.
type Provider interface {
	// InstanceView returns the raw runtime status snapshot for the VM.
	// Read-only; must respect ctx cancellation and deadlines.
	InstanceView(ctx context.Context, ref VmReference) (InstanceView, error)

	// Start requests a VM start. The control plane acknowledges a
	// long-running operation; Start returns once it is accepted, not once
	// the VM is running.
	Start(ctx context.Context, ref VmReference) error

	// Deallocate requests a VM deallocation, the stop variant that releases
	// billed compute. Same acceptance semantics as Start.
	Deallocate(ctx context.Context, ref VmReference) error
}
