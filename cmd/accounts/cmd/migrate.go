package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/thereayou/accounts/internal/config"
	"github.com/thereayou/accounts/internal/database"
	"github.com/thereayou/accounts/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the users table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.StoreDriver != config.StoreDriverPostgres {
			return errors.New("migrate requires STORE_DRIVER=postgres")
		}

		log := logging.New(cfg.LogLevel)

		db := &database.Database{}
		if err := db.Connect(cfg.DatabaseURL); err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(); err != nil {
			return err
		}
		log.Info("migration complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
