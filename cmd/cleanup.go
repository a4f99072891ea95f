package cmd

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-identity/app/repository"
	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run a single purge of expired and invalidated tokens",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		configureLogging(cfg)

		db, err := sql.Open("mysql", cfg.DSN())
		if err != nil {
			return err
		}
		defer db.Close()

		if err = db.Ping(); err != nil {
			return err
		}

		refreshRepo := repository.NewRefreshTokenRepository(db)
		resetRepo := repository.NewPasswordResetRepository(db)

		janitor := service.NewJanitor(refreshRepo, resetRepo, cfg.CleanupInterval)
		janitor.PurgeOnce(context.Background())

		logrus.Info("Token cleanup finished")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
