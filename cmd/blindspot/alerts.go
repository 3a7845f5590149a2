package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var alertsFlags struct {
	clientConfig
	screenshot string
}

var alertsCmd = &cobra.Command{
	Use:   "alerts [id]",
	Short: "List alerts or show one in full",
	Long: `Without arguments, list all recorded alerts newest first. With an
alert ID, print the full fingerprint detail; --screenshot additionally
saves the captured page screenshot to a file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAlerts,
}

func init() {
	rootCmd.AddCommand(alertsCmd)

	addClientFlags(alertsCmd, &alertsFlags.clientConfig)
	alertsCmd.Flags().StringVar(&alertsFlags.screenshot, "screenshot", "", "write the alert's screenshot to this file")
}

func runAlerts(cmd *cobra.Command, args []string) error {
	c, err := alertsFlags.newClient()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		resp, err := c.ListAlerts(context.Background())
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid alert id: %s", args[0])
	}

	detail, err := c.GetAlert(context.Background(), id)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))

	if alertsFlags.screenshot != "" {
		data, name, err := c.GetScreenshot(context.Background(), id)
		if err != nil {
			return err
		}
		if err := os.WriteFile(alertsFlags.screenshot, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "screenshot %s written to %s\n", name, alertsFlags.screenshot)
	}

	return nil
}
