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

// Package main provides the vmpowerd daemon serving the VM power API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/stratoctl/vmpower/internal/config"
	"github.com/stratoctl/vmpower/internal/obs/health"
	"github.com/stratoctl/vmpower/internal/obs/logging"
	"github.com/stratoctl/vmpower/internal/obs/metrics"
	"github.com/stratoctl/vmpower/internal/obs/tracing"
	"github.com/stratoctl/vmpower/internal/power"
	"github.com/stratoctl/vmpower/internal/providers/azure"
	"github.com/stratoctl/vmpower/internal/providers/contracts"
	"github.com/stratoctl/vmpower/internal/providers/mock"
	"github.com/stratoctl/vmpower/internal/resilience"
	"github.com/stratoctl/vmpower/internal/server"
	"github.com/stratoctl/vmpower/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "vmpowerd",
		Short:   "VM power API daemon",
		Long:    "vmpowerd serves the VM power status and toggle API backed by a compute provider.",
		Version: version.String(),
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newServeCommand creates the serve command.
func newServeCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the power API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file (environment variables fill the rest)")
	return cmd
}

// newVersionCommand creates the version command.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vmpowerd version: %s\n", version.String())
			fmt.Printf("Git SHA: %s\n", version.GitSHA)
		},
	}
}

func runServe(configFile string) error {
	manager, err := config.NewManager(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	defer manager.Close() //nolint:errcheck // Shutdown path

	cfg := manager.Get()

	logConfig := logging.DefaultConfig()
	logConfig.Level = cfg.Log.Level
	logConfig.Format = cfg.Log.Format
	logConfig.Sampling = cfg.Log.Sampling
	logConfig.Development = cfg.Log.Development

	log, err := logging.Setup(logConfig)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	log = log.WithName("vmpowerd")

	metrics.SetupMetrics(version.Version, version.GitSHA, "vmpowerd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingConfig := tracing.DefaultConfig(tracing.ServiceDaemon, version.Version)
	tracingConfig.Enabled = cfg.Tracing.Enabled
	tracingConfig.Endpoint = cfg.Tracing.Endpoint
	tracingConfig.SamplingRatio = cfg.Tracing.SamplingRatio
	tracingConfig.InsecureTransport = cfg.Tracing.InsecureTransport

	shutdownTracing, err := tracing.Setup(ctx, tracingConfig)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer shutdownTracing()

	provider, err := buildProvider(cfg, log)
	if err != nil {
		return err
	}
	provider = applyResilience(provider, cfg, log)

	svc := power.NewService(provider, cfg.Provider.Name, log)

	srv := server.New(&server.Config{
		Addr:            cfg.Server.Addr,
		APIKey:          cfg.Server.APIKey,
		ProviderName:    cfg.Provider.Name,
		GracefulTimeout: cfg.Server.GracefulTimeout,
		Logger:          log,
	}, svc)

	// A local control plane exposes a health route worth probing. Public
	// Azure does not.
	if cfg.Provider.Name == "azure" && cfg.Provider.Endpoint != "" {
		srv.HealthChecker().RegisterCheck("control-plane", health.HTTPCheck(cfg.Provider.Endpoint+"/health"))
	}

	if cfg.Performance.PProfEnabled {
		startPProf(cfg.Performance.PProfAddr, log)
	}

	go watchConfig(ctx, manager, log)

	return srv.Serve(ctx)
}

// buildProvider selects the compute provider from configuration.
func buildProvider(cfg *config.Config, log logr.Logger) (contracts.Provider, error) {
	switch cfg.Provider.Name {
	case "azure":
		return azure.NewWithDefaultCredential(azure.Config{
			Endpoint:          cfg.Provider.Endpoint,
			InsecureAllowHTTP: cfg.Provider.InsecureAllowHTTP,
			RequestTimeout:    cfg.Provider.RequestTimeout,
		}, log)
	case "mock":
		return mock.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

// applyResilience wraps the provider with retry and circuit breaker policies
// when configuration opts in. The default keeps single dispatch.
func applyResilience(provider contracts.Provider, cfg *config.Config, log logr.Logger) contracts.Provider {
	builder := resilience.NewPolicyBuilder()
	wired := false

	if cfg.Retry.MaxAttempts > 1 {
		builder.WithRetry(&resilience.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Multiplier:  cfg.Retry.Multiplier,
			Jitter:      cfg.Retry.Jitter,
		})
		wired = true
		log.Info("provider retries enabled", "max_attempts", cfg.Retry.MaxAttempts)
	}

	if cfg.CircuitBreaker.Enabled {
		cb := resilience.NewCircuitBreaker("compute", cfg.Provider.Name, &resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			ResetTimeout:     cfg.CircuitBreaker.ResetTimeout,
			HalfOpenMaxCalls: cfg.CircuitBreaker.HalfOpenMaxCalls,
		})
		builder.WithCircuitBreaker(cb)
		wired = true
		log.Info("circuit breaker enabled",
			"failure_threshold", cfg.CircuitBreaker.FailureThreshold,
			"reset_timeout", cfg.CircuitBreaker.ResetTimeout)
	}

	if !wired {
		return provider
	}
	return resilience.WrapProvider(provider, builder.Build())
}

// watchConfig logs configuration reloads. Listener address and provider
// changes require a restart; the log line makes that visible.
func watchConfig(ctx context.Context, manager *config.Manager, log logr.Logger) {
	updates := manager.Watch()

	// The first delivery is the configuration already in effect.
	select {
	case <-ctx.Done():
		return
	case <-updates:
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			log.Info("configuration reloaded",
				"provider", cfg.Provider.Name,
				"addr", cfg.Server.Addr,
				"note", "listener and provider changes take effect on restart")
		}
	}
}

// startPProf serves the profiling endpoints on their own listener.
func startPProf(addr string, log logr.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	go func() {
		log.Info("Starting pprof listener", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "pprof listener failed")
		}
	}()
}
