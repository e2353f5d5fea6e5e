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

package contracts

import (
	"errors"
	"strings"
)

// PowerStatus is the normalized power-state vocabulary exposed to callers.
type PowerStatus string

const (
	// PowerStatusRunning indicates the VM is up
	PowerStatusRunning PowerStatus = "running"
	// PowerStatusStopped indicates the VM is powered off or deallocated
	PowerStatusStopped PowerStatus = "stopped"
	// PowerStatusStarting indicates a start is in progress
	PowerStatusStarting PowerStatus = "starting"
	// PowerStatusStopping indicates a stop or deallocation is in progress
	PowerStatusStopping PowerStatus = "stopping"
	// PowerStatusUnknown is reported for any state outside the vocabulary
	PowerStatusUnknown PowerStatus = "unknown"
)

// ToggleAction selects the power transition to request.
type ToggleAction string

const (
	// ActionStart powers the VM on
	ActionStart ToggleAction = "start"
	// ActionStop deallocates the VM, releasing billed compute. A soft
	// power-off is never issued.
	ActionStop ToggleAction = "stop"
)

// Validation sentinels. Boundary layers match these with errors.Is to pick
// the user-facing response shape.
var (
	// ErrIncompleteReference means one or more VmReference fields are empty
	ErrIncompleteReference = errors.New("subscription ID, resource group and VM name are required")
	// ErrInvalidAction means the requested action is not start or stop
	ErrInvalidAction = errors.New(`action must be "start" or "stop"`)
)

// VmReference identifies a virtual machine in the compute control plane.
type VmReference struct {
	// SubscriptionID is the subscription containing the VM
	SubscriptionID string
	// ResourceGroup is the resource group containing the VM
	ResourceGroup string
	// Name is the VM name
	Name string
}

// Validate checks that all identifier fields are present. Presence only;
// whether the VM exists is the provider's business.
func (r VmReference) Validate() error {
	if r.SubscriptionID == "" || r.ResourceGroup == "" || r.Name == "" {
		return ErrIncompleteReference
	}
	return nil
}

// String renders the reference for logs.
func (r VmReference) String() string {
	return r.SubscriptionID + "/" + r.ResourceGroup + "/" + r.Name
}

// ParseToggleAction validates a raw action value. The comparison is
// case-sensitive: "Start", "STOP" and "restart" are all rejected.
func ParseToggleAction(raw string) (ToggleAction, error) {
	switch ToggleAction(raw) {
	case ActionStart:
		return ActionStart, nil
	case ActionStop:
		return ActionStop, nil
	default:
		return "", ErrInvalidAction
	}
}

// ToggleRequest asks for one power transition on one VM. Requests are built
// per call, validated, dispatched and never persisted.
type ToggleRequest struct {
	// Ref identifies the target VM
	Ref VmReference
	// Action is the requested transition
	Action ToggleAction
}

// Validate checks the reference first, then the action. The first violation
// wins, so callers see exactly one validation failure per request.
func (t ToggleRequest) Validate() error {
	if err := t.Ref.Validate(); err != nil {
		return err
	}
	_, err := ParseToggleAction(string(t.Action))
	return err
}

// ToggleResult acknowledges a dispatched transition. Accepted means the
// control plane took the long-running operation, not that it finished;
// completion has to be observed through a later status read.
type ToggleResult struct {
	// Ref is the VM the operation targets
	Ref VmReference
	// Action is the transition that was dispatched
	Action ToggleAction
	// Accepted is set once the provider acknowledged the operation
	Accepted bool
}

// InstanceViewStatus is one raw status entry from the control plane's
// instance view, e.g. code "PowerState/running" or "ProvisioningState/succeeded".
type InstanceViewStatus struct {
	// Code is the raw status code
	Code string
	// DisplayStatus is the human-readable form, when reported
	DisplayStatus string
}

// InstanceView is the runtime status snapshot reported for a VM.
type InstanceView struct {
	// Statuses holds the raw status entries in provider order
	Statuses []InstanceViewStatus
}

// powerStatePrefix marks instance-view codes that carry power state.
const powerStatePrefix = "PowerState/"

// PowerStatus extracts the first power-state code in the view and normalizes
// it. Views without any PowerState/ code report unknown.
func (v InstanceView) PowerStatus() PowerStatus {
	for _, s := range v.Statuses {
		if strings.HasPrefix(s.Code, powerStatePrefix) {
			return NormalizePowerState(strings.TrimPrefix(s.Code, powerStatePrefix))
		}
	}
	return PowerStatusUnknown
}

// normalizedStates maps lowercased raw power states into the closed
// vocabulary. Deallocated folds into stopped: callers only care that the
// machine stopped billing, not which flavor of off it reached.
var normalizedStates = map[string]PowerStatus{
	"running":     PowerStatusRunning,
	"stopped":     PowerStatusStopped,
	"deallocated": PowerStatusStopped,
	"starting":    PowerStatusStarting,
	"stopping":    PowerStatusStopping,
}

// NormalizePowerState maps a raw power state into the PowerStatus vocabulary.
// Matching is case-insensitive and total: unrecognized states normalize to
// unknown rather than failing.
func NormalizePowerState(raw string) PowerStatus {
	if status, ok := normalizedStates[strings.ToLower(raw)]; ok {
		return status
	}
	return PowerStatusUnknown
}
