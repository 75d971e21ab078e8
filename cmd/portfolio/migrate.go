package main

import (
	"context"
	"time"

	"github.com/edgeee/portfolio/config"
	"github.com/edgeee/portfolio/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.CreateSchema(ctx); err != nil {
			return err
		}
		logger.Info("Schema is up to date")
		return nil
	},
}
