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

// Package power implements the service core: reading normalized VM power
// state and dispatching start/stop transitions through an injected provider.
package power

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/stratoctl/vmpower/internal/obs/metrics"
	"github.com/stratoctl/vmpower/internal/obs/tracing"
	"github.com/stratoctl/vmpower/internal/providers/contracts"
)

// Service exposes the status and toggle operations. It holds no mutable
// state: every request is validated, dispatched, and forgotten, so no
// locking or cross-request ordering exists here. Races between concurrent
// toggles for the same VM are resolved by the control plane.
type Service struct {
	provider contracts.Provider
	log      logr.Logger
	metrics  *metrics.OperationMetrics
}

// NewService creates a power service on top of the given provider.
// providerName labels metrics and traces; it does not change behavior.
func NewService(provider contracts.Provider, providerName string, log logr.Logger) *Service {
	return &Service{
		provider: provider,
		log:      log.WithName("power"),
		metrics:  metrics.NewOperationMetrics(providerName),
	}
}

// Status reports the normalized power state for the referenced VM. An
// incomplete reference fails validation before any provider call is made.
// Normalization is total: unrecognized provider states come back as unknown,
// never as an error.
func (s *Service) Status(ctx context.Context, ref contracts.VmReference) (contracts.PowerStatus, error) {
	if err := ref.Validate(); err != nil {
		s.metrics.RecordOperation(metrics.OpStatus, metrics.OutcomeRejected)
		return "", contracts.NewValidationError("incomplete VM reference", err)
	}

	ctx, span := tracing.StartVMSpan(ctx, "status", ref.ResourceGroup, ref.Name)
	defer span.End()

	view, err := s.provider.InstanceView(ctx, ref)
	if err != nil {
		s.metrics.RecordOperation(metrics.OpStatus, metrics.OutcomeError)
		tracing.RecordError(ctx, err)
		return "", fmt.Errorf("querying instance view for %s: %w", ref, err)
	}

	status := view.PowerStatus()
	s.metrics.RecordOperation(metrics.OpStatus, metrics.OutcomeSuccess)
	s.log.V(1).Info("read power state", "vm", ref.String(), "status", string(status))
	return status, nil
}

// Toggle validates the request and dispatches the matching control-plane
// command: Start for start, Deallocate for stop. It returns as soon as the
// provider accepts the long-running operation; it never waits for the
// transition to finish. There is deliberately no pre-check against current
// state, so repeated identical toggles each reach the provider.
func (s *Service) Toggle(ctx context.Context, req contracts.ToggleRequest) (contracts.ToggleResult, error) {
	result := contracts.ToggleResult{Ref: req.Ref, Action: req.Action}

	if err := req.Validate(); err != nil {
		s.metrics.RecordOperation(metrics.OpToggle, metrics.OutcomeRejected)
		return result, contracts.NewValidationError("invalid toggle request", err)
	}

	ctx, span := tracing.StartVMSpan(ctx, "toggle", req.Ref.ResourceGroup, req.Ref.Name)
	defer span.End()
	tracing.SetAttributes(ctx, tracing.AttrAction.String(string(req.Action)))

	var err error
	switch req.Action {
	case contracts.ActionStart:
		err = s.provider.Start(ctx, req.Ref)
	case contracts.ActionStop:
		err = s.provider.Deallocate(ctx, req.Ref)
	}
	if err != nil {
		s.metrics.RecordOperation(metrics.OpToggle, metrics.OutcomeError)
		tracing.RecordError(ctx, err)
		return result, fmt.Errorf("dispatching %s for %s: %w", req.Action, req.Ref, err)
	}

	result.Accepted = true
	s.metrics.RecordOperation(metrics.OpToggle, metrics.OutcomeSuccess)
	s.log.Info("power operation accepted", "vm", req.Ref.String(), "action", string(req.Action))
	return result, nil
}
