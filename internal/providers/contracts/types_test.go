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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePowerState(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want PowerStatus
	}{
		{name: "running", raw: "running", want: PowerStatusRunning},
		{name: "stopped", raw: "stopped", want: PowerStatusStopped},
		{name: "deallocated maps to stopped", raw: "deallocated", want: PowerStatusStopped},
		{name: "starting", raw: "starting", want: PowerStatusStarting},
		{name: "stopping", raw: "stopping", want: PowerStatusStopping},
		{name: "uppercase running", raw: "Running", want: PowerStatusRunning},
		{name: "uppercase deallocated", raw: "DEALLOCATED", want: PowerStatusStopped},
		{name: "deallocating is not in the table", raw: "deallocating", want: PowerStatusUnknown},
		{name: "unrecognized state", raw: "hibernated", want: PowerStatusUnknown},
		{name: "empty state", raw: "", want: PowerStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePowerState(tt.raw))
		})
	}
}

func TestInstanceView_PowerStatus(t *testing.T) {
	tests := []struct {
		name string
		view InstanceView
		want PowerStatus
	}{
		{
			name: "first power state code wins",
			view: InstanceView{Statuses: []InstanceViewStatus{
				{Code: "ProvisioningState/succeeded"},
				{Code: "PowerState/running", DisplayStatus: "VM running"},
				{Code: "PowerState/stopped"},
			}},
			want: PowerStatusRunning,
		},
		{
			name: "deallocated view",
			view: InstanceView{Statuses: []InstanceViewStatus{
				{Code: "ProvisioningState/succeeded"},
				{Code: "PowerState/deallocated", DisplayStatus: "VM deallocated"},
			}},
			want: PowerStatusStopped,
		},
		{
			name: "no power state code",
			view: InstanceView{Statuses: []InstanceViewStatus{
				{Code: "ProvisioningState/updating"},
			}},
			want: PowerStatusUnknown,
		},
		{
			name: "empty view",
			view: InstanceView{},
			want: PowerStatusUnknown,
		},
		{
			name: "unrecognized power state",
			view: InstanceView{Statuses: []InstanceViewStatus{
				{Code: "PowerState/defragmenting"},
			}},
			want: PowerStatusUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.view.PowerStatus())
		})
	}
}

func TestVmReference_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ref     VmReference
		wantErr bool
	}{
		{
			name: "complete reference",
			ref:  VmReference{SubscriptionID: "s1", ResourceGroup: "rg1", Name: "vm1"},
		},
		{
			name:    "missing subscription",
			ref:     VmReference{ResourceGroup: "rg1", Name: "vm1"},
			wantErr: true,
		},
		{
			name:    "missing resource group",
			ref:     VmReference{SubscriptionID: "s1", Name: "vm1"},
			wantErr: true,
		},
		{
			name:    "missing name",
			ref:     VmReference{SubscriptionID: "s1", ResourceGroup: "rg1"},
			wantErr: true,
		},
		{
			name:    "empty reference",
			ref:     VmReference{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIncompleteReference)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseToggleAction(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ToggleAction
		wantErr bool
	}{
		{name: "start", raw: "start", want: ActionStart},
		{name: "stop", raw: "stop", want: ActionStop},
		{name: "restart rejected", raw: "restart", wantErr: true},
		{name: "case sensitive", raw: "Start", wantErr: true},
		{name: "uppercase rejected", raw: "STOP", wantErr: true},
		{name: "empty rejected", raw: "", wantErr: true},
		{name: "whitespace rejected", raw: " start", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseToggleAction(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToggleRequest_Validate(t *testing.T) {
	valid := VmReference{SubscriptionID: "s1", ResourceGroup: "rg1", Name: "vm1"}

	tests := []struct {
		name    string
		req     ToggleRequest
		wantErr error
	}{
		{
			name: "valid start",
			req:  ToggleRequest{Ref: valid, Action: ActionStart},
		},
		{
			name: "valid stop",
			req:  ToggleRequest{Ref: valid, Action: ActionStop},
		},
		{
			name:    "incomplete reference checked before action",
			req:     ToggleRequest{Ref: VmReference{SubscriptionID: "s1"}, Action: "restart"},
			wantErr: ErrIncompleteReference,
		},
		{
			name:    "invalid action",
			req:     ToggleRequest{Ref: valid, Action: "restart"},
			wantErr: ErrInvalidAction,
		},
		{
			name:    "absent action",
			req:     ToggleRequest{Ref: valid},
			wantErr: ErrInvalidAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
