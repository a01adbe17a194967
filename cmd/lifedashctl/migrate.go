package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lifedash/internal/cli"
	"lifedash/internal/config"
	"lifedash/internal/storage"
)

func migrateCmd(_ *rootOptions) *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long:  `Apply the embedded schema migrations to the database at SQLITE_DB_PATH, or report the current version with --status.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig((*config.Config).Validate)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !status {
				if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
					return err
				}
			}

			version, dirty, err := storage.MigrationVersion(cfg.SQLiteDBPath)
			if err != nil {
				return fmt.Errorf("read migration version: %w", err)
			}
			line := fmt.Sprintf("%s: schema version %d", cfg.SQLiteDBPath, version)
			if dirty {
				fmt.Fprintln(out, WarningStyle.Render(line+" (dirty)"))
				return nil
			}
			fmt.Fprintln(out, SuccessStyle.Render(line))
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "only print the applied schema version")
	return cmd
}
