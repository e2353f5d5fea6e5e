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

// Package server exposes the VM power API over HTTP. It owns request
// decoding, authentication, and the mapping from service errors to
// response bodies; power semantics live in the power package.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stratoctl/vmpower/internal/obs/health"
	"github.com/stratoctl/vmpower/internal/power"
	"github.com/stratoctl/vmpower/internal/version"
)

// Config holds server configuration options
type Config struct {
	// Addr is the listen address (default: ":8080")
	Addr string

	// APIKey protects the API routes. Empty disables authentication.
	APIKey string

	// ProviderName names the backing provider, for logs only
	ProviderName string

	// GracefulTimeout for shutdown (default: 30s)
	GracefulTimeout time.Duration

	// Logger instance
	Logger logr.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		GracefulTimeout: 30 * time.Second,
		Logger:          logr.Discard(),
	}
}

// Server serves the VM power API
type Server struct {
	config  *Config
	power   *power.Service
	router  *mux.Router
	http    *http.Server
	health  *health.HealthChecker
	log     logr.Logger
	running atomic.Bool
}

// New creates a new server around a power service
func New(config *Config, svc *power.Service) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.GracefulTimeout == 0 {
		config.GracefulTimeout = 30 * time.Second
	}

	checker := health.NewHealthChecker()
	checker.RegisterCheck("service", health.FunctionCheck(func() error {
		if svc == nil {
			return errors.New("power service not configured")
		}
		return nil
	}))

	s := &Server{
		config: config,
		power:  svc,
		router: mux.NewRouter(),
		health: checker,
		log:    config.Logger.WithName("server"),
	}

	s.setupRoutes()

	s.http = &http.Server{
		Addr:    config.Addr,
		Handler: otelhttp.NewHandler(s.router, "vmpower.api"),
		// The write timeout must outlast the provider call budget
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.recoveryMiddleware, s.loggingMiddleware, s.metricsMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/vm/status", s.handleStatus).Methods(http.MethodPost)
	api.HandleFunc("/vm/toggle", s.handleToggle).Methods(http.MethodPost)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.Handle("/healthz", s.health.LivenessHandler()).Methods(http.MethodGet)
	s.router.Handle("/readyz", s.health.ReadinessHandler()).Methods(http.MethodGet)
	s.router.Handle("/health", s.health.HTTPHandler()).Methods(http.MethodGet)
}

// HealthChecker returns the server's health checker so callers can
// register additional readiness checks.
func (s *Server) HealthChecker() *health.HealthChecker {
	return s.health
}

// Handler returns the full HTTP handler, including middleware
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Serve starts the server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Serve(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("server is already running")
	}
	defer s.running.Store(false)

	lis, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	s.log.Info("Starting API server",
		"version", version.String(),
		"addr", s.config.Addr,
		"provider", s.config.ProviderName,
		"auth_enabled", s.config.APIKey != "",
	)

	errChan := make(chan error, 1)
	go func() {
		if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Server context cancelled, shutting down")
	case err := <-errChan:
		s.log.Error(err, "Server error")
		return err
	}

	return s.shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.GracefulTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.Error(err, "HTTP server shutdown error")
		return err
	}

	s.log.Info("HTTP server stopped gracefully")
	return nil
}
