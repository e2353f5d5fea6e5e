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

package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	otrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	// Service names
	ServiceDaemon = "vmpowerd"
)

// Config holds tracing configuration
type Config struct {
	Enabled           bool
	Endpoint          string
	ServiceName       string
	ServiceVersion    string
	SamplingRatio     float64
	InsecureTransport bool
}

// DefaultConfig returns default tracing configuration
func DefaultConfig(serviceName, version string) *Config {
	return &Config{
		Enabled:           getEnvBool("VMPOWER_TRACING_ENABLED", false),
		Endpoint:          getEnv("VMPOWER_TRACING_ENDPOINT", ""),
		ServiceName:       serviceName,
		ServiceVersion:    version,
		SamplingRatio:     getEnvFloat("VMPOWER_TRACING_SAMPLING_RATIO", 0.1),
		InsecureTransport: getEnvBool("VMPOWER_TRACING_INSECURE", true),
	}
}

// Setup initializes OpenTelemetry tracing
func Setup(ctx context.Context, config *Config) (func(), error) {
	if !config.Enabled {
		// Set up a no-op tracer provider
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func() {}, nil
	}

	if config.Endpoint == "" {
		return nil, fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	// Create OTLP exporter
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(config.Endpoint),
	}

	if config.InsecureTransport {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	// Create resource with service information
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			attribute.String("service.namespace", "vmpower"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create tracer provider
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(config.SamplingRatio)),
	)

	// Set global tracer provider
	otel.SetTracerProvider(tp)

	// Set global propagator
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Return shutdown function
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			// Log error but don't fail shutdown
			fmt.Printf("Error shutting down tracer provider: %v\n", err)
		}
	}, nil
}

// StartSpan starts a new span with the given name and options
func StartSpan(ctx context.Context, name string, opts ...otrace.SpanStartOption) (context.Context, otrace.Span) {
	tracer := otel.Tracer("vmpower")
	return tracer.Start(ctx, name, opts...)
}

// SetAttributes sets attributes on the current span
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := otrace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error) {
	span := otrace.SpanFromContext(ctx)
	span.RecordError(err)
}

// Common attribute keys for vmpower
var (
	// VM attributes
	AttrVMResourceGroup = attribute.Key("vm.resource_group")
	AttrVMName          = attribute.Key("vm.name")

	// Provider attributes
	AttrProviderName = attribute.Key("provider.name")

	// Operation attributes
	AttrOperation = attribute.Key("operation")
	AttrAction    = attribute.Key("action")
)

// Span names for common operations
const (
	SpanVMStatus = "vm.status"
	SpanVMToggle = "vm.toggle"

	SpanProviderInstanceView = "provider.instance_view"
	SpanProviderStart        = "provider.start"
	SpanProviderDeallocate   = "provider.deallocate"
)

// Helper functions for common span patterns

// StartVMSpan starts a span for a VM operation
func StartVMSpan(ctx context.Context, operation, resourceGroup, name string) (context.Context, otrace.Span) {
	return StartSpan(ctx, fmt.Sprintf("vm.%s", operation),
		otrace.WithAttributes(
			AttrVMResourceGroup.String(resourceGroup),
			AttrVMName.String(name),
			AttrOperation.String(operation),
		),
	)
}

// StartProviderSpan starts a span for a provider operation
func StartProviderSpan(ctx context.Context, operation, providerName string) (context.Context, otrace.Span) {
	return StartSpan(ctx, fmt.Sprintf("provider.%s", operation),
		otrace.WithAttributes(
			AttrProviderName.String(providerName),
			AttrOperation.String(operation),
		),
	)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
