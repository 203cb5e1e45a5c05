package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xiaozining525-dotcom/bk/internal/config"
	"github.com/xiaozining525-dotcom/bk/internal/logger"
	"github.com/xiaozining525-dotcom/bk/internal/migrations"
	"go.uber.org/zap"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(config.Load)
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := connectDB(cfg.DSN())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migrations.Up(db); err != nil {
			return err
		}
		logger.Logger.Info("migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := cmd.Flags().GetInt("steps")
		if err != nil {
			return err
		}
		if steps < 1 {
			return fmt.Errorf("steps must be positive, got %d", steps)
		}

		cfg, err := setup(config.Load)
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := connectDB(cfg.DSN())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migrations.Down(db, steps); err != nil {
			return err
		}
		logger.Logger.Info("migrations rolled back", zap.Int("steps", steps))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to roll back")
}
