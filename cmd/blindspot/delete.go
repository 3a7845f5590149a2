package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var deleteFlags struct {
	clientConfig
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an alert",
	Long:  `Delete an alert and all its associated records.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	addClientFlags(deleteCmd, &deleteFlags.clientConfig)
}

func runDelete(cmd *cobra.Command, args []string) error {
	c, err := deleteFlags.newClient()
	if err != nil {
		return err
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid alert id: %s", args[0])
	}

	if err := c.DeleteAlert(context.Background(), id); err != nil {
		return err
	}

	result := struct {
		ID      int64 `json:"id"`
		Deleted bool  `json:"deleted"`
	}{
		ID:      id,
		Deleted: true,
	}

	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
