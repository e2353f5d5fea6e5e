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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "azure", cfg.Provider.Name)
	assert.Equal(t, 10*time.Second, cfg.Provider.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.GracefulTimeout)

	// Retries are opt-in; the default dispatches exactly once
	assert.Equal(t, 1, cfg.Retry.MaxAttempts)
	assert.False(t, cfg.CircuitBreaker.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfigEnvOverrides(t *testing.T) {
	t.Setenv("VMPOWER_ADDR", ":9090")
	t.Setenv("VMPOWER_PROVIDER", "mock")
	t.Setenv("VMPOWER_PROVIDER_TIMEOUT", "3s")
	t.Setenv("VMPOWER_API_KEY", "hunter2")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CB_ENABLED", "true")

	cfg := DefaultConfig()

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "mock", cfg.Provider.Name)
	assert.Equal(t, 3*time.Second, cfg.Provider.RequestTimeout)
	assert.Equal(t, "hunter2", cfg.Server.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.CircuitBreaker.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  addr: ":9191"
  apiKey: "file-key"
provider:
  name: mock
  endpoint: "http://127.0.0.1:9999"
  insecureAllowHTTP: true
log:
  level: debug
  format: console
`
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	manager, err := NewManager(file)
	require.NoError(t, err)
	defer manager.Close()

	got := manager.Get()

	want := DefaultConfig()
	want.Server.Addr = ":9191"
	want.Server.APIKey = "file-key"
	want.Provider.Name = "mock"
	want.Provider.Endpoint = "http://127.0.0.1:9999"
	want.Provider.InsecureAllowHTTP = true
	want.Log.Level = "debug"
	want.Log.Format = "console"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestNewManagerRejectsInvalidFile(t *testing.T) {
	content := `
provider:
  name: hyperv
`
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	_, err := NewManager(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider.name")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"unknown provider", func(c *Config) { c.Provider.Name = "hyperv" }},
		{"zero provider timeout", func(c *Config) { c.Provider.RequestTimeout = 0 }},
		{"negative sampling ratio", func(c *Config) { c.Tracing.SamplingRatio = -0.5 }},
		{"sampling ratio above one", func(c *Config) { c.Tracing.SamplingRatio = 1.5 }},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestManagerUpdateNotifiesWatchers(t *testing.T) {
	manager, err := NewManager("")
	require.NoError(t, err)
	defer manager.Close()

	ch := manager.Watch()

	// The current config arrives immediately
	got := <-ch
	if diff := cmp.Diff(manager.Get(), got); diff != "" {
		t.Errorf("initial config mismatch (-want +got):\n%s", diff)
	}

	updated := DefaultConfig()
	updated.Server.Addr = ":7070"
	manager.Update(updated)

	got = <-ch
	assert.Equal(t, ":7070", got.Server.Addr)
}
