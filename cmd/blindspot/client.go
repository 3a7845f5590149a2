// Package main implements the blindspot CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blindspot-sh/blindspot/internal/client"
)

type clientConfig struct {
	apiToken string
	apiURL   string
}

func addClientFlags(cmd *cobra.Command, cfg *clientConfig) {
	cmd.Flags().StringVar(&cfg.apiToken, "api-token", os.Getenv("BLINDSPOT_API_TOKEN"), "API token for authentication")
	cmd.Flags().StringVar(&cfg.apiURL, "api-url", os.Getenv("BLINDSPOT_API_URL"), "API server URL")
}

func (cfg *clientConfig) newClient() (*client.Client, error) {
	if cfg.apiURL == "" {
		return nil, fmt.Errorf("API URL required (use --api-url flag or BLINDSPOT_API_URL env var)")
	}
	if cfg.apiToken == "" {
		return nil, fmt.Errorf("API token required (use --api-token flag or BLINDSPOT_API_TOKEN env var)")
	}
	return client.NewClient(cfg.apiURL, cfg.apiToken), nil
}
