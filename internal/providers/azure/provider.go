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

// Package azure implements the compute provider against the Azure Resource
// Manager API. Power commands are dispatched and not awaited; the poller
// returned by the SDK is dropped once the control plane accepts the request.
package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/go-logr/logr"

	"github.com/stratoctl/vmpower/internal/obs/metrics"
	"github.com/stratoctl/vmpower/internal/obs/tracing"
	"github.com/stratoctl/vmpower/internal/providers/contracts"
	"github.com/stratoctl/vmpower/internal/util"
)

const providerName = "azure"

// DefaultRequestTimeout bounds each control-plane call unless Config
// overrides it.
const DefaultRequestTimeout = 10 * time.Second

// Config holds Azure provider configuration
type Config struct {
	// Endpoint overrides the ARM endpoint. Empty selects public Azure.
	Endpoint string
	// InsecureAllowHTTP permits sending credentials over plain HTTP.
	// Only meaningful with a local Endpoint override.
	InsecureAllowHTTP bool
	// RequestTimeout bounds each control-plane call.
	RequestTimeout time.Duration
}

// Provider executes VM power operations against the Azure control plane
type Provider struct {
	config  Config
	factory clientFactory
	log     logr.Logger
}

// New creates a provider with an explicit credential
func New(cred azcore.TokenCredential, config Config, log logr.Logger) *Provider {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}

	return &Provider{
		config:  config,
		factory: newClientFactory(cred, config),
		log:     log.WithName("azure"),
	}
}

// NewWithDefaultCredential creates a provider using the ambient Azure
// credential chain (environment, workload identity, managed identity, CLI)
func NewWithDefaultCredential(config Config, log logr.Logger) (*Provider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain Azure credential: %w", err)
	}
	return New(cred, config, log), nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// InstanceView retrieves the VM's instance view from the control plane
func (p *Provider) InstanceView(ctx context.Context, ref contracts.VmReference) (contracts.InstanceView, error) {
	client, err := p.factory(ref.SubscriptionID)
	if err != nil {
		return contracts.InstanceView{}, contracts.NewInternalError("failed to create compute client", err)
	}

	ctx, span := tracing.StartProviderSpan(ctx, "instance_view", providerName)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	timer := metrics.NewCallTimer(providerName, metrics.MethodInstanceView)
	resp, err := client.InstanceView(ctx, ref.ResourceGroup, ref.Name, nil)
	timer.Finish(statusLabel(err))

	if err != nil {
		cerr := classify(err)
		tracing.RecordError(ctx, cerr)
		return contracts.InstanceView{}, cerr
	}

	var view contracts.InstanceView
	for _, status := range resp.Statuses {
		if status == nil || status.Code == nil {
			continue
		}
		view.Statuses = append(view.Statuses, contracts.InstanceViewStatus{
			Code:          *status.Code,
			DisplayStatus: util.StringValue(status.DisplayStatus),
		})
	}

	p.log.V(1).Info("retrieved instance view", "vm", ref.String(), "statuses", len(view.Statuses))
	return view, nil
}

// Start dispatches a start command for the VM
func (p *Provider) Start(ctx context.Context, ref contracts.VmReference) error {
	return p.dispatch(ctx, ref, metrics.MethodStart, "start", func(ctx context.Context, client computeAPI) error {
		_, err := client.BeginStart(ctx, ref.ResourceGroup, ref.Name, nil)
		return err
	})
}

// Deallocate dispatches a deallocate command for the VM. Deallocation
// releases the compute so the VM stops accruing charges; there is no
// soft power-off path.
func (p *Provider) Deallocate(ctx context.Context, ref contracts.VmReference) error {
	return p.dispatch(ctx, ref, metrics.MethodDeallocate, "deallocate", func(ctx context.Context, client computeAPI) error {
		_, err := client.BeginDeallocate(ctx, ref.ResourceGroup, ref.Name, nil)
		return err
	})
}

// dispatch runs a power command and returns once the control plane has
// accepted it. Completion is deliberately not awaited.
func (p *Provider) dispatch(ctx context.Context, ref contracts.VmReference, method, operation string, call func(context.Context, computeAPI) error) error {
	client, err := p.factory(ref.SubscriptionID)
	if err != nil {
		return contracts.NewInternalError("failed to create compute client", err)
	}

	ctx, span := tracing.StartProviderSpan(ctx, operation, providerName)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	timer := metrics.NewCallTimer(providerName, method)
	err = call(ctx, client)
	timer.Finish(statusLabel(err))

	if err != nil {
		cerr := classify(err)
		tracing.RecordError(ctx, cerr)
		return cerr
	}

	p.log.V(1).Info("power operation accepted", "vm", ref.String(), "operation", operation)
	return nil
}
