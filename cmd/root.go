package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/yarrow-bio/yarrow/config"
	"github.com/yarrow-bio/yarrow/pkg/database"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "yarrow",
	Short: "Therapy concept normalization service",
	Long:  "yarrow indexes drug records from nine biomedical catalogs, merges cross-referenced concepts into canonical groups, and serves lookup queries over them.",
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the structured logger. Messages flow through a zap
// sink as single JSON lines.
func newLogger(cfg *config.Config) ectologger.Logger {
	var zl *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		zl = zap.NewNop()
	}

	sink := func(m ectologger.EctoLogMessage) {
		raw, err := json.Marshal(m)
		if err != nil {
			return
		}
		zl.Info(string(raw))
	}
	return ectologger.NewEctoLogger(sink)
}

// openDatabase connects to Postgres, applies pool settings, and runs
// pending migrations.
func openDatabase(cfg *config.Config, logger ectologger.Logger) (*sqlx.DB, database.DB, error) {
	sqlxDB, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	sqlxDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DBMaxIdleConns)

	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("create migration driver: %w", err)
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.MigrationFolderPath,
		Version:             cfg.MigrationVersion,
		Force:               cfg.MigrationForce,
		AutoRollback:        cfg.MigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DBName, driver); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	return sqlxDB, database.NewDatabaseInstance(sqlxDB, logger), nil
}
