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

package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	armcompute "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"

	"github.com/stratoctl/vmpower/internal/version"
)

// computeAPI is the subset of the ARM virtual machines client the provider
// uses. *armcompute.VirtualMachinesClient satisfies it.
type computeAPI interface {
	InstanceView(ctx context.Context, resourceGroupName string, vmName string, options *armcompute.VirtualMachinesClientInstanceViewOptions) (armcompute.VirtualMachinesClientInstanceViewResponse, error)
	BeginStart(ctx context.Context, resourceGroupName string, vmName string, options *armcompute.VirtualMachinesClientBeginStartOptions) (*runtime.Poller[armcompute.VirtualMachinesClientStartResponse], error)
	BeginDeallocate(ctx context.Context, resourceGroupName string, vmName string, options *armcompute.VirtualMachinesClientBeginDeallocateOptions) (*runtime.Poller[armcompute.VirtualMachinesClientDeallocateResponse], error)
}

// clientFactory builds a compute client scoped to a subscription. Requests
// carry the subscription in their reference, so clients are built per call.
type clientFactory func(subscriptionID string) (computeAPI, error)

func newClientFactory(cred azcore.TokenCredential, config Config) clientFactory {
	return func(subscriptionID string) (computeAPI, error) {
		opts := &arm.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{
					// A negative count disables transport-level retries.
					// Retry decisions are surfaced to the caller instead.
					MaxRetries: -1,
				},
				Telemetry: policy.TelemetryOptions{
					ApplicationID: version.UserAgent(),
				},
			},
		}

		if config.Endpoint != "" {
			// Point the pipeline at an alternate control plane, such as a
			// sovereign cloud or a local test endpoint.
			opts.ClientOptions.Cloud = cloud.Configuration{
				Services: map[cloud.ServiceName]cloud.ServiceConfiguration{
					cloud.ResourceManager: {
						Audience: "https://management.core.windows.net/",
						Endpoint: config.Endpoint,
					},
				},
			}
			opts.ClientOptions.InsecureAllowCredentialWithHTTP = config.InsecureAllowHTTP
		}

		client, err := armcompute.NewVirtualMachinesClient(subscriptionID, cred, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create compute client: %w", err)
		}
		return client, nil
	}
}
