package main

import (
	"github.com/spf13/cobra"

	"registrar/internal/platform/postgres"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			version, err := postgres.Version(ctx, db)
			if err != nil {
				return err
			}
			log.InfoContext(ctx, "migrations applied", "version", version)
			return nil
		},
	}
}
