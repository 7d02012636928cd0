package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yarrow-bio/yarrow/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	sqlxDB, _, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	return sqlxDB.Close()
}
