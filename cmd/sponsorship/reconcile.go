package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelter-labs/sponsorship-storage/internal"
)

var reconcileAt string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Complete expired guardianships and cancel overdue subscriptions once",
	RunE: func(cmd *cobra.Command, args []string) error {
		at := time.Now().UTC()
		if reconcileAt != "" {
			parsed, err := time.Parse(time.RFC3339, reconcileAt)
			if err != nil {
				return fmt.Errorf("parse --at: %w", err)
			}
			at = parsed
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		app, err := internal.NewTask(cfg)
		if err != nil {
			return err
		}

		res, err := app.Reconcile(cmd.Context(), at)
		if err != nil {
			return err
		}

		out, err := json.Marshal(res)
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileAt, "at", "", "moment to reconcile for, RFC3339 (defaults to now)")
}
