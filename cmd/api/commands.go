package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"call-inbox/internal/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply every embedded schema migration that has not run yet.

Migrations run inside one transaction each, serialized across replicas by a
Postgres advisory lock, so it is safe to run this from several deploy jobs.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		applied, err := db.Migrate(cmd.Context(), a.db, a.log)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
		return nil
	},
}

var deviceExtension string

var deviceTokenCmd = &cobra.Command{
	Use:   "device-token",
	Short: "Issue a long-lived device credential for an extension",
	Long: `Issue a device credential bound to one extension, for desk phones and
kiosk browsers that cannot complete the interactive login.

Examples:
  call-inbox device-token --extension 204`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ext := strings.TrimSpace(deviceExtension)
		if ext == "" {
			return errors.New("--extension is required")
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		mgr, err := a.authManager()
		if err != nil {
			return err
		}
		issued, err := mgr.IssueDevice(cmd.Context(), ext)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "extension:  %s\n", issued.Extension)
		fmt.Fprintf(out, "token:      %s\n", issued.Token)
		fmt.Fprintf(out, "expires_at: %s\n", issued.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge-credentials",
	Short: "Delete expired sessions and device credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		mgr, err := a.authManager()
		if err != nil {
			return err
		}
		n, err := mgr.PurgeExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d credential(s)\n", n)
		return nil
	},
}

func init() {
	deviceTokenCmd.Flags().StringVar(&deviceExtension, "extension", "", "extension the device answers for")
	rootCmd.AddCommand(migrateCmd, deviceTokenCmd, purgeCmd)
}
