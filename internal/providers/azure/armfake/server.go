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

// Package armfake provides a fake Azure Resource Manager compute API server
// for testing
package armfake

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// Server represents a fake ARM compute API server
type Server struct {
	router     *mux.Router
	vms        map[string]*VM
	operations map[string]*Operation
	mu         sync.RWMutex
	logger     *slog.Logger
	config     *Config
}

// Config holds fake server configuration
type Config struct {
	// FailureMode can be "none", "notfound", "unauthorized", "throttle",
	// "error", or "random"
	FailureMode string
	// SlowMode adds delays to operations
	SlowMode bool
	// FailureRate for random failures (0.0-1.0)
	FailureRate float64
}

// VM represents a fake VM in the server
type VM struct {
	Name              string
	ResourceGroup     string
	SubscriptionID    string
	PowerState        string // raw state, e.g. "running" or "deallocated"
	ProvisioningState string

	// Call counters for test assertions
	InstanceViewCalls int
	StartCalls        int
	DeallocateCalls   int
}

// Operation represents a fake long-running operation
type Operation struct {
	ID        string `json:"name"`
	Status    string `json:"status"`
	StartTime string `json:"startTime"`
}

// instanceViewStatus mirrors the ARM instance view status wire shape
type instanceViewStatus struct {
	Code          string `json:"code"`
	Level         string `json:"level"`
	DisplayStatus string `json:"displayStatus"`
}

// armError mirrors the ARM error wire shape
type armError struct {
	Error armErrorDetail `json:"error"`
}

type armErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewServer creates a new fake ARM server
func NewServer() *Server {
	config := &Config{
		FailureMode: os.Getenv("FAKE_ARM_FAILURE_MODE"),
		SlowMode:    os.Getenv("FAKE_ARM_SLOW_MODE") == "true",
	}

	if rate := os.Getenv("FAKE_ARM_FAILURE_RATE"); rate != "" {
		if f, err := strconv.ParseFloat(rate, 64); err == nil {
			config.FailureRate = f
		}
	}

	s := &Server{
		router:     mux.NewRouter(),
		vms:        make(map[string]*VM),
		operations: make(map[string]*Operation),
		logger:     slog.Default(),
		config:     config,
	}

	s.setupRoutes()
	s.seedData()

	return s
}

// setupRoutes configures the fake API routes
func (s *Server) setupRoutes() {
	vm := s.router.PathPrefix("/subscriptions/{subscriptionId}/resourceGroups/{resourceGroupName}/providers/Microsoft.Compute/virtualMachines/{vmName}").Subrouter()

	vm.HandleFunc("/instanceView", s.handleInstanceView).Methods("GET")
	vm.HandleFunc("/start", s.handlePowerOp("start")).Methods("POST")
	vm.HandleFunc("/deallocate", s.handlePowerOp("deallocate")).Methods("POST")

	// Long-running operation status
	s.router.HandleFunc("/subscriptions/{subscriptionId}/providers/Microsoft.Compute/locations/{location}/operations/{operationId}", s.handleOperation).Methods("GET")

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// seedData creates some initial test data
func (s *Server) seedData() {
	seeds := []*VM{
		{
			Name:              "demo-vm-1",
			ResourceGroup:     "demo-rg",
			SubscriptionID:    "11111111-1111-1111-1111-111111111111",
			PowerState:        "running",
			ProvisioningState: "succeeded",
		},
		{
			Name:              "demo-vm-2",
			ResourceGroup:     "demo-rg",
			SubscriptionID:    "11111111-1111-1111-1111-111111111111",
			PowerState:        "deallocated",
			ProvisioningState: "succeeded",
		},
	}

	for _, vm := range seeds {
		s.vms[vmKey(vm.SubscriptionID, vm.ResourceGroup, vm.Name)] = vm
	}
}

// AddVM seeds an additional VM into the fake
func (s *Server) AddVM(subscriptionID, resourceGroup, name, powerState string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vms[vmKey(subscriptionID, resourceGroup, name)] = &VM{
		Name:              name,
		ResourceGroup:     resourceGroup,
		SubscriptionID:    subscriptionID,
		PowerState:        powerState,
		ProvisioningState: "succeeded",
	}
}

// GetVM returns a snapshot of a seeded VM, or nil if absent
func (s *Server) GetVM(subscriptionID, resourceGroup, name string) *VM {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vm, ok := s.vms[vmKey(subscriptionID, resourceGroup, name)]
	if !ok {
		return nil
	}
	snapshot := *vm
	return &snapshot
}

// SetFailureMode switches the failure mode at runtime
func (s *Server) SetFailureMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.FailureMode = mode
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Log request
	s.logger.Debug("Fake ARM API request", "method", r.Method, "path", r.URL.Path)

	// Simulate authentication (accept any bearer token)
	if auth := r.Header.Get("Authorization"); auth == "" {
		s.writeError(w, http.StatusUnauthorized, "AuthenticationFailed", "Authentication required")
		return
	}

	// Check for simulated failures
	if code, armCode, msg := s.failureResponse(); code != 0 {
		if code == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "30")
		}
		s.writeError(w, code, armCode, msg)
		return
	}

	// Add slow mode delay
	if s.config.SlowMode {
		time.Sleep(100 * time.Millisecond)
	}

	s.router.ServeHTTP(w, r)
}

// failureResponse maps the configured failure mode to an ARM error
func (s *Server) failureResponse() (int, string, string) {
	s.mu.RLock()
	mode := s.config.FailureMode
	rate := s.config.FailureRate
	s.mu.RUnlock()

	if mode == "random" && rand.Float64() >= rate {
		return 0, "", ""
	}

	switch mode {
	case "notfound":
		return http.StatusNotFound, "ResourceNotFound", "The requested resource was not found"
	case "unauthorized":
		return http.StatusForbidden, "AuthorizationFailed", "The client does not have authorization to perform this action"
	case "throttle":
		return http.StatusTooManyRequests, "TooManyRequests", "The subscription request rate limit has been exceeded"
	case "error", "random":
		return http.StatusInternalServerError, "InternalServerError", "An unexpected error occurred"
	default:
		return 0, "", ""
	}
}

// handleInstanceView handles instance view retrieval
func (s *Server) handleInstanceView(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	vm, exists := s.vms[vmKey(vars["subscriptionId"], vars["resourceGroupName"], vars["vmName"])]
	if !exists {
		s.writeError(w, http.StatusNotFound, "ResourceNotFound",
			fmt.Sprintf("The Resource 'Microsoft.Compute/virtualMachines/%s' under resource group '%s' was not found", vars["vmName"], vars["resourceGroupName"]))
		return
	}

	vm.InstanceViewCalls++

	s.writeResponse(w, map[string]interface{}{
		"statuses": []instanceViewStatus{
			{
				Code:          "ProvisioningState/" + vm.ProvisioningState,
				Level:         "Info",
				DisplayStatus: "Provisioning " + vm.ProvisioningState,
			},
			{
				Code:          "PowerState/" + vm.PowerState,
				Level:         "Info",
				DisplayStatus: "VM " + vm.PowerState,
			},
		},
	})
}

// handlePowerOp creates a handler for power operations
func (s *Server) handlePowerOp(operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		s.mu.Lock()
		defer s.mu.Unlock()

		vm, exists := s.vms[vmKey(vars["subscriptionId"], vars["resourceGroupName"], vars["vmName"])]
		if !exists {
			s.writeError(w, http.StatusNotFound, "ResourceNotFound",
				fmt.Sprintf("The Resource 'Microsoft.Compute/virtualMachines/%s' under resource group '%s' was not found", vars["vmName"], vars["resourceGroupName"]))
			return
		}

		// Update VM state based on operation. The fake applies the final
		// state immediately; the real control plane transitions through
		// starting/stopping.
		switch operation {
		case "start":
			vm.StartCalls++
			vm.PowerState = "running"
		case "deallocate":
			vm.DeallocateCalls++
			vm.PowerState = "deallocated"
		}

		// Register a long-running operation and point the poller at it
		op := s.createOperation()
		asyncURL := fmt.Sprintf("http://%s/subscriptions/%s/providers/Microsoft.Compute/locations/westus2/operations/%s?api-version=2024-03-01",
			r.Host, vars["subscriptionId"], op.ID)

		w.Header().Set("Azure-AsyncOperation", asyncURL)
		w.Header().Set("Location", asyncURL)
		w.WriteHeader(http.StatusAccepted)
	}
}

// handleOperation handles long-running operation status retrieval
func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s.mu.RLock()
	op, exists := s.operations[vars["operationId"]]
	s.mu.RUnlock()

	if !exists {
		s.writeError(w, http.StatusNotFound, "OperationNotFound", "The operation was not found")
		return
	}

	s.writeResponse(w, op)
}

// handleHealth handles health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// createOperation registers a new completed long-running operation
func (s *Server) createOperation() *Operation {
	op := &Operation{
		ID:        fmt.Sprintf("%08x-%04x-%04x", rand.Int31(), rand.Intn(0xffff), rand.Intn(0xffff)),
		Status:    "Succeeded",
		StartTime: time.Now().Format(time.RFC3339),
	}
	s.operations[op.ID] = op
	return op
}

// writeResponse writes a successful JSON response
func (s *Server) writeResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an ARM-shaped error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := armError{Error: armErrorDetail{Code: code, Message: message}}
	_ = json.NewEncoder(w).Encode(response)
}

func vmKey(subscriptionID, resourceGroup, name string) string {
	return subscriptionID + "/" + resourceGroup + "/" + name
}

// StartFakeServer starts a fake ARM server on a random port
func StartFakeServer() (*Server, string, error) {
	server := NewServer()

	// Start HTTP server on random port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", fmt.Errorf("failed to start fake server: %w", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	endpoint := fmt.Sprintf("http://127.0.0.1:%d", port)

	go func() {
		if err := http.Serve(listener, server); err != nil {
			slog.Error("Fake ARM server error", "error", err)
		}
	}()

	return server, endpoint, nil
}
