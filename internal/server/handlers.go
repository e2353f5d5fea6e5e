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

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stratoctl/vmpower/internal/obs/logging"
	"github.com/stratoctl/vmpower/internal/providers/contracts"
)

// vmRequest identifies a VM in API requests
type vmRequest struct {
	SubscriptionID string `json:"subscriptionId"`
	ResourceGroup  string `json:"resourceGroup"`
	VMName         string `json:"vmName"`
}

// toggleRequest asks for a power transition
type toggleRequest struct {
	vmRequest
	Action string `json:"action"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (r vmRequest) ref() contracts.VmReference {
	return contracts.VmReference{
		SubscriptionID: r.SubscriptionID,
		ResourceGroup:  r.ResourceGroup,
		Name:           r.VMName,
	}
}

// handleStatus reports the VM's current power status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req vmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing required parameters"})
		return
	}

	ctx := logging.WithVM(r.Context(), req.SubscriptionID, req.ResourceGroup, req.VMName)
	ctx = logging.WithProvider(ctx, s.config.ProviderName)
	log := logging.FromContext(ctx)

	status, err := s.power.Status(ctx, req.ref())
	if err != nil {
		switch {
		case errors.Is(err, contracts.ErrIncompleteReference):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing required parameters"})
		case contracts.IsCancelled(err):
			// The client is gone; there is nobody to answer
			log.V(1).Info("status request cancelled")
		default:
			log.Error(err, "failed to get VM status")
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error:   "Failed to get VM status",
				Details: detailsOf(err),
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: string(status)})
}

// handleToggle dispatches a power transition and acknowledges acceptance.
// The response never waits for the VM to finish changing state.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing required parameters"})
		return
	}

	ctx := logging.WithVM(r.Context(), req.SubscriptionID, req.ResourceGroup, req.VMName)
	ctx = logging.WithProvider(ctx, s.config.ProviderName)
	ctx = logging.WithAction(ctx, req.Action)
	log := logging.FromContext(ctx)

	_, err := s.power.Toggle(ctx, contracts.ToggleRequest{
		Ref:    req.ref(),
		Action: contracts.ToggleAction(req.Action),
	})
	if err != nil {
		switch {
		case errors.Is(err, contracts.ErrIncompleteReference):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing required parameters"})
		case errors.Is(err, contracts.ErrInvalidAction):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid action. Must be 'start' or 'stop'"})
		case contracts.IsCancelled(err):
			log.V(1).Info("toggle request cancelled")
		default:
			log.Error(err, "failed to toggle VM")
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error:   fmt.Sprintf("Failed to %s VM", req.Action),
				Details: detailsOf(err),
			})
		}
		return
	}

	writeJSON(w, http.StatusAccepted, messageResponse{
		Message: fmt.Sprintf("VM %s operation initiated", req.Action),
	})
}

// detailsOf extracts the provider diagnostic for error responses
func detailsOf(err error) string {
	var cerr *contracts.Error
	if errors.As(err, &cerr) {
		return cerr.Message
	}
	return err.Error()
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
