package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blindspot-sh/blindspot/internal/api"
	"github.com/blindspot-sh/blindspot/internal/token"
)

var trackFlags struct {
	clientConfig
	method      string
	data        string
	contentType string
	uid         string
}

var trackCmd = &cobra.Command{
	Use:   "track <url>",
	Short: "Register an injection attempt",
	Long: `Register an injection attempt against a target URL and print the
beacon URLs carrying the tracking identifier.

Form fields are passed as a JSON object mapping field names to their
value and input type, e.g.:

  blindspot track https://victim.example/support \
    --data '{"name":{"value":"","type":"text"}}'`,
	Args: cobra.ExactArgs(1),
	RunE: runTrack,
}

func init() {
	rootCmd.AddCommand(trackCmd)

	addClientFlags(trackCmd, &trackFlags.clientConfig)
	trackCmd.Flags().StringVar(&trackFlags.method, "method", "POST", "HTTP method of the injected request")
	trackCmd.Flags().StringVar(&trackFlags.data, "data", "{}", "form fields as JSON")
	trackCmd.Flags().StringVar(&trackFlags.contentType, "content-type", "", "content type of the injected request")
	trackCmd.Flags().StringVar(&trackFlags.uid, "uid", "", "tracking identifier (generated when omitted)")
}

func runTrack(cmd *cobra.Command, args []string) error {
	c, err := trackFlags.newClient()
	if err != nil {
		return err
	}

	var data map[string]api.TrackField
	if err := json.Unmarshal([]byte(trackFlags.data), &data); err != nil {
		return fmt.Errorf("parse --data: %w", err)
	}
	if data == nil {
		data = map[string]api.TrackField{}
	}

	uid := trackFlags.uid
	if uid == "" {
		uid, err = token.Generate()
		if err != nil {
			return fmt.Errorf("generate tracking identifier: %w", err)
		}
	}

	target := &api.TrackTarget{
		URL:    args[0],
		Method: trackFlags.method,
		Data:   data,
	}
	if trackFlags.contentType != "" {
		target.ContentType = &trackFlags.contentType
	}

	resp, err := c.Track(context.Background(), &api.TrackRequest{Target: target, UID: uid})
	if err != nil {
		return err
	}

	fmt.Printf("Tracking ID: %s\n", resp.TrackingID)
	fmt.Println()
	fmt.Println("Payloads:")
	if u, ok := resp.Payloads["http"]; ok {
		fmt.Printf("  http:   %s\n", u)
	}
	if u, ok := resp.Payloads["https"]; ok {
		fmt.Printf("  https:  %s\n", u)
	}

	return nil
}
