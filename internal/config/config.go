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

// Package config loads vmpower configuration from defaults, environment
// variables, and an optional YAML file, with hot reload on file changes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"
)

// Config holds all configuration for the vmpower daemon
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Provider configuration
	Provider ProviderConfig `yaml:"provider"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Tracing configuration
	Tracing TracingConfig `yaml:"tracing"`

	// Retry configuration
	Retry RetryConfig `yaml:"retry"`

	// Circuit breaker configuration
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`

	// Performance and profiling
	Performance PerformanceConfig `yaml:"performance"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	// Addr is the listen address
	Addr string `yaml:"addr"`
	// APIKey protects the API routes; empty disables authentication
	APIKey string `yaml:"apiKey"`
	// GracefulTimeout bounds shutdown
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ProviderConfig holds compute provider configuration
type ProviderConfig struct {
	// Name selects the provider: "azure" or "mock"
	Name string `yaml:"name"`
	// Endpoint overrides the control plane endpoint (empty: public Azure)
	Endpoint string `yaml:"endpoint"`
	// InsecureAllowHTTP permits credentials over plain HTTP endpoints
	InsecureAllowHTTP bool `yaml:"insecureAllowHTTP"`
	// RequestTimeout bounds each control-plane call
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Sampling    bool   `yaml:"sampling"`
	Development bool   `yaml:"development"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Endpoint          string  `yaml:"endpoint"`
	SamplingRatio     float64 `yaml:"samplingRatio"`
	InsecureTransport bool    `yaml:"insecureTransport"`
}

// RetryConfig holds retry configuration for callers that opt in. The
// daemon itself never retries provider calls; throttling and other
// transient failures surface to the client as retryable.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
	Multiplier  float64       `yaml:"multiplier"`
	Jitter      bool          `yaml:"jitter"`
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
	HalfOpenMaxCalls int           `yaml:"halfOpenMaxCalls"`
}

// PerformanceConfig holds performance and profiling configuration
type PerformanceConfig struct {
	PProfEnabled bool   `yaml:"pprofEnabled"`
	PProfAddr    string `yaml:"pprofAddr"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            getEnvWithDefault("VMPOWER_ADDR", ":8080"),
			APIKey:          getEnvWithDefault("VMPOWER_API_KEY", ""),
			GracefulTimeout: getEnvDurationWithDefault("VMPOWER_GRACEFUL_TIMEOUT", 30*time.Second),
		},
		Provider: ProviderConfig{
			Name:              getEnvWithDefault("VMPOWER_PROVIDER", "azure"),
			Endpoint:          getEnvWithDefault("VMPOWER_AZURE_ENDPOINT", ""),
			InsecureAllowHTTP: getEnvBoolWithDefault("VMPOWER_AZURE_INSECURE_HTTP", false),
			RequestTimeout:    getEnvDurationWithDefault("VMPOWER_PROVIDER_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:       getEnvWithDefault("LOG_LEVEL", "info"),
			Format:      getEnvWithDefault("LOG_FORMAT", "json"),
			Sampling:    getEnvBoolWithDefault("LOG_SAMPLING", true),
			Development: getEnvBoolWithDefault("LOG_DEVELOPMENT", false),
		},
		Tracing: TracingConfig{
			Enabled:           getEnvBoolWithDefault("VMPOWER_TRACING_ENABLED", false),
			Endpoint:          getEnvWithDefault("VMPOWER_TRACING_ENDPOINT", ""),
			SamplingRatio:     getEnvFloatWithDefault("VMPOWER_TRACING_SAMPLING_RATIO", 0.1),
			InsecureTransport: getEnvBoolWithDefault("VMPOWER_TRACING_INSECURE", true),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvIntWithDefault("RETRY_MAX_ATTEMPTS", 1),
			BaseDelay:   getEnvDurationWithDefault("RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:    getEnvDurationWithDefault("RETRY_MAX_DELAY", 30*time.Second),
			Multiplier:  getEnvFloatWithDefault("RETRY_MULTIPLIER", 2.0),
			Jitter:      getEnvBoolWithDefault("RETRY_JITTER", true),
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          getEnvBoolWithDefault("CB_ENABLED", false),
			FailureThreshold: getEnvIntWithDefault("CB_FAILURE_THRESHOLD", 10),
			ResetTimeout:     getEnvDurationWithDefault("CB_RESET_SECONDS", 60*time.Second),
			HalfOpenMaxCalls: getEnvIntWithDefault("CB_HALF_OPEN_MAX_CALLS", 3),
		},
		Performance: PerformanceConfig{
			PProfEnabled: getEnvBoolWithDefault("VMPOWER_PPROF_ENABLED", false),
			PProfAddr:    getEnvWithDefault("VMPOWER_PPROF_ADDR", ":6060"),
		},
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}

	switch c.Provider.Name {
	case "azure", "mock":
	default:
		return fmt.Errorf("provider.name must be %q or %q, got %q", "azure", "mock", c.Provider.Name)
	}

	if c.Provider.RequestTimeout <= 0 {
		return fmt.Errorf("provider.requestTimeout must be positive")
	}

	if c.Tracing.SamplingRatio < 0 || c.Tracing.SamplingRatio > 1 {
		return fmt.Errorf("tracing.samplingRatio must be between 0 and 1")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.maxAttempts must be at least 1")
	}

	return nil
}

// Manager manages configuration with hot-reload capability
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	watchers []chan *Config
	watcher  *fsnotify.Watcher
	file     string
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	config := DefaultConfig()

	// Load from file if provided
	if configFile != "" {
		if err := loadFromFile(configFile, config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	manager := &Manager{
		config:   config,
		watchers: make([]chan *Config, 0),
		file:     configFile,
	}

	// Set up file watcher if config file is provided
	if configFile != "" {
		if err := manager.setupFileWatcher(); err != nil {
			// Log but don't fail - configuration is still usable
			fmt.Printf("Warning: failed to setup config file watcher: %v\n", err)
		}
	}

	return manager, nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Watch returns a channel that receives configuration updates
func (m *Manager) Watch() <-chan *Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan *Config, 1)
	m.watchers = append(m.watchers, ch)

	// Send current config immediately
	ch <- m.config

	return ch
}

// Update updates the configuration and notifies watchers
func (m *Manager) Update(config *Config) {
	m.mu.Lock()
	m.config = config
	watchers := make([]chan *Config, len(m.watchers))
	copy(watchers, m.watchers)
	m.mu.Unlock()

	// Notify all watchers
	for _, watcher := range watchers {
		select {
		case watcher <- config:
		default:
			// Channel is full, skip this update
		}
	}
}

// Close closes the configuration manager and cleans up resources
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Close all watcher channels
	for _, watcher := range m.watchers {
		close(watcher)
	}
	m.watchers = nil

	// Close file watcher
	if m.watcher != nil {
		return m.watcher.Close()
	}

	return nil
}

// setupFileWatcher sets up file system notification for config changes
func (m *Manager) setupFileWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	m.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					m.reloadConfig()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fmt.Printf("Config file watcher error: %v\n", err)
			}
		}
	}()

	return watcher.Add(m.file)
}

// reloadConfig reloads configuration from file
func (m *Manager) reloadConfig() {
	config := DefaultConfig()
	if err := loadFromFile(m.file, config); err != nil {
		fmt.Printf("Error reloading config: %v\n", err)
		return
	}
	if err := config.Validate(); err != nil {
		fmt.Printf("Ignoring invalid config reload: %v\n", err)
		return
	}

	fmt.Println("Configuration reloaded from file")
	m.Update(config)
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filename string, config *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

// Helper functions for environment variable parsing

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
