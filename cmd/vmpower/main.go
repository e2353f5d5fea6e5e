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

// Package main provides the vmpower CLI for the power API served by vmpowerd.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/stratoctl/vmpower/internal/obs/logging"
	"github.com/stratoctl/vmpower/internal/util"
	"github.com/stratoctl/vmpower/internal/util/closer"
	"github.com/stratoctl/vmpower/internal/version"
)

var (
	endpoint       string
	apiKey         string
	subscriptionID string
	resourceGroup  string
	timeout        time.Duration
	wait           bool
	waitTimeout    time.Duration
	verbose        bool

	log = logr.Discard()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vmpower",
		Short: "CLI for the vmpower API",
		Long:  "Command-line interface for querying and toggling VM power state through vmpowerd",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log = consoleLogger()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", envOrDefault("VMPOWER_ENDPOINT", "http://localhost:8080"), "vmpowerd base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("VMPOWER_API_KEY"), "API key sent as X-API-Key")
	rootCmd.PersistentFlags().StringVarP(&subscriptionID, "subscription", "s", os.Getenv("VMPOWER_SUBSCRIPTION"), "Subscription ID")
	rootCmd.PersistentFlags().StringVarP(&resourceGroup, "resource-group", "g", os.Getenv("VMPOWER_RESOURCE_GROUP"), "Resource group name")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	statusCmd := &cobra.Command{
		Use:   "status <vm-name>",
		Short: "Show the power status of a virtual machine",
		Args:  cobra.ExactArgs(1),
		RunE:  vmStatus,
	}

	startCmd := &cobra.Command{
		Use:   "start <vm-name>",
		Short: "Start a virtual machine",
		Args:  cobra.ExactArgs(1),
		RunE:  vmStart,
	}

	stopCmd := &cobra.Command{
		Use:   "stop <vm-name>",
		Short: "Stop a virtual machine by deallocating it",
		Args:  cobra.ExactArgs(1),
		RunE:  vmStop,
	}

	for _, cmd := range []*cobra.Command{startCmd, stopCmd} {
		cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the VM settles in the target state")
		cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 5*time.Minute, "How long to poll with --wait")
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vmpower version: %s\n", version.String())
		},
	}

	rootCmd.AddCommand(statusCmd, startCmd, stopCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func vmStatus(cmd *cobra.Command, args []string) error {
	ref, err := makeRef(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	status, err := newClient().status(ctx, ref)
	if err != nil {
		return err
	}

	fmt.Println(status)
	return nil
}

func vmStart(cmd *cobra.Command, args []string) error {
	return toggle(args[0], "start", "running")
}

func vmStop(cmd *cobra.Command, args []string) error {
	return toggle(args[0], "stop", "stopped")
}

func toggle(vmName, action, settled string) error {
	ref, err := makeRef(vmName)
	if err != nil {
		return err
	}

	client := newClient()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	message, err := client.toggle(ctx, ref, action)
	if err != nil {
		return err
	}
	fmt.Println(message)

	if !wait {
		return nil
	}
	return waitForStatus(client, ref, settled)
}

// waitForStatus polls the status route with backoff until the VM reports the
// wanted state or the wait budget runs out.
func waitForStatus(client *apiClient, ref vmRef, want string) error {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	config := util.PollBackoffConfig()
	for attempt := 0; ; attempt++ {
		status, err := client.status(ctx, ref)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("timed out waiting for VM %s to reach %s", ref.VMName, want)
			}
			return err
		}
		if status == want {
			fmt.Printf("VM %s is %s\n", ref.VMName, status)
			return nil
		}

		log.V(1).Info("waiting for power state", "vm", ref.VMName, "status", status, "want", want)

		if err := util.SleepWithContext(ctx, util.CalculateBackoff(config, attempt)); err != nil {
			return fmt.Errorf("timed out waiting for VM %s to reach %s (last status %s)", ref.VMName, want, status)
		}
	}
}

// vmRef is the request body shared by the status and toggle routes.
type vmRef struct {
	SubscriptionID string `json:"subscriptionId"`
	ResourceGroup  string `json:"resourceGroup"`
	VMName         string `json:"vmName"`
}

func makeRef(vmName string) (vmRef, error) {
	if subscriptionID == "" {
		return vmRef{}, errors.New("subscription ID is required (--subscription or VMPOWER_SUBSCRIPTION)")
	}
	if resourceGroup == "" {
		return vmRef{}, errors.New("resource group is required (--resource-group or VMPOWER_RESOURCE_GROUP)")
	}
	return vmRef{
		SubscriptionID: subscriptionID,
		ResourceGroup:  resourceGroup,
		VMName:         vmName,
	}, nil
}

// apiClient talks to the vmpowerd HTTP API.
type apiClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func newClient() *apiClient {
	return &apiClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{},
	}
}

func (c *apiClient) status(ctx context.Context, ref vmRef) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.post(ctx, "/api/vm/status", ref, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *apiClient) toggle(ctx context.Context, ref vmRef, action string) (string, error) {
	body := struct {
		vmRef
		Action string `json:"action"`
	}{vmRef: ref, Action: action}

	var out struct {
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/api/vm/toggle", body, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *apiClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	log.V(1).Info("calling vmpowerd", "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.endpoint, err)
	}
	defer closer.CloseQuietly(resp.Body, log, "response body")

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// decodeAPIError turns an error response body into a readable error.
func decodeAPIError(resp *http.Response, path string) error {
	var apiErr struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
		return fmt.Errorf("unexpected response %d from %s", resp.StatusCode, path)
	}
	if apiErr.Details != "" {
		return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Details)
	}
	return errors.New(apiErr.Error)
}

// consoleLogger builds a human-readable debug logger for --verbose runs.
func consoleLogger() logr.Logger {
	cfg := logging.DefaultConfig()
	cfg.Level = "debug"
	cfg.Format = "console"
	cfg.Sampling = false
	cfg.Development = true

	logger, err := logging.Setup(cfg)
	if err != nil {
		return logr.Discard()
	}
	return logger
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
