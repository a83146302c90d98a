package main

import (
	"github.com/spf13/cobra"

	"github.com/0xsirsaif/polar/internal/config"
	"github.com/0xsirsaif/polar/internal/storage/sqlite"
)

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			store, err := sqlite.Open(cmd.Context(), cfg.DatabasePath)
			if err != nil {
				return err
			}
			logger.Info("migrate.done", "db", cfg.DatabasePath)
			return store.Close()
		},
	}
}
