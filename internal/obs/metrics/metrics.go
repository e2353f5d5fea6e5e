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

package metrics

import (
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Build information
	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vmpower_build_info",
			Help: "Build information for vmpower components",
		},
		[]string{"version", "git_sha", "go_version", "component"},
	)

	// HTTP boundary metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmpower_http_requests_total",
			Help: "Total number of HTTP requests by route, method, and status code",
		},
		[]string{"route", "method", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vmpower_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"route"},
	)

	// Power operation metrics
	powerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmpower_power_operations_total",
			Help: "Total number of power operations by operation, provider, and outcome",
		},
		[]string{"operation", "provider", "outcome"},
	)

	// Provider call metrics
	providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmpower_provider_requests_total",
			Help: "Total number of control-plane requests by provider, method, and result code",
		},
		[]string{"provider", "method", "code"},
	)

	providerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vmpower_provider_latency_seconds",
			Help:    "Latency of control-plane requests by provider and method",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"provider", "method"},
	)

	// Error metrics
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmpower_errors_total",
			Help: "Total number of errors by reason and component",
		},
		[]string{"reason", "component"},
	)

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vmpower_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	circuitBreakerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmpower_circuit_breaker_failures_total",
			Help: "Total number of circuit breaker failures",
		},
		[]string{"provider"},
	)
)

// Outcomes for power operations
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// Power operations
const (
	OpStatus = "Status"
	OpToggle = "Toggle"
)

// Provider methods
const (
	MethodInstanceView = "InstanceView"
	MethodStart        = "Start"
	MethodDeallocate   = "Deallocate"
)

// Components
const (
	ComponentServer   = "server"
	ComponentProvider = "provider"
)

// Circuit breaker states
const (
	CircuitBreakerClosed   = 0
	CircuitBreakerHalfOpen = 1
	CircuitBreakerOpen     = 2
)

// SetupMetrics initializes metrics with build information
func SetupMetrics(version, gitSHA, component string) {
	buildInfo.WithLabelValues(version, gitSHA, runtime.Version(), component).Set(1)
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// OperationMetrics provides metrics for power operations
type OperationMetrics struct {
	provider string
}

// NewOperationMetrics creates metrics for power operations against a provider
func NewOperationMetrics(provider string) *OperationMetrics {
	return &OperationMetrics{provider: provider}
}

// RecordOperation records a power operation with its outcome
func (m *OperationMetrics) RecordOperation(operation, outcome string) {
	powerOperationsTotal.WithLabelValues(operation, m.provider, outcome).Inc()
}

// ProviderCallMetrics provides metrics for control-plane calls
type ProviderCallMetrics struct {
	provider string
}

// NewProviderCallMetrics creates metrics for control-plane calls
func NewProviderCallMetrics(provider string) *ProviderCallMetrics {
	return &ProviderCallMetrics{provider: provider}
}

// RecordCall records a control-plane call with its method, result code, and duration
func (m *ProviderCallMetrics) RecordCall(method, code string, duration time.Duration) {
	providerRequestsTotal.WithLabelValues(m.provider, method, code).Inc()
	providerLatency.WithLabelValues(m.provider, method).Observe(duration.Seconds())
}

// RecordError records an error with its reason and component
func RecordError(reason, component string) {
	errorsTotal.WithLabelValues(reason, component).Inc()
}

// CircuitBreakerMetrics provides metrics for circuit breakers
type CircuitBreakerMetrics struct {
	provider string
}

// NewCircuitBreakerMetrics creates metrics for circuit breakers
func NewCircuitBreakerMetrics(provider string) *CircuitBreakerMetrics {
	return &CircuitBreakerMetrics{provider: provider}
}

// SetState sets the circuit breaker state
func (m *CircuitBreakerMetrics) SetState(state int) {
	circuitBreakerState.WithLabelValues(m.provider).Set(float64(state))
}

// RecordFailure records a circuit breaker failure
func (m *CircuitBreakerMetrics) RecordFailure() {
	circuitBreakerFailures.WithLabelValues(m.provider).Inc()
}

// Timer is a helper for measuring operation duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// CallTimer is a helper for measuring control-plane calls
type CallTimer struct {
	metrics *ProviderCallMetrics
	method  string
	timer   *Timer
}

// NewCallTimer creates a timer for a control-plane call
func NewCallTimer(provider, method string) *CallTimer {
	return &CallTimer{
		metrics: NewProviderCallMetrics(provider),
		method:  method,
		timer:   NewTimer(),
	}
}

// Finish records the call with the given result code
func (ct *CallTimer) Finish(code string) {
	ct.metrics.RecordCall(ct.method, code, ct.timer.Duration())
}
