package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yarrow-bio/yarrow/config"
	"github.com/yarrow-bio/yarrow/internal/repositories"
	"github.com/yarrow-bio/yarrow/pkg/events"
	"github.com/yarrow-bio/yarrow/pkg/kafka"
	"github.com/yarrow-bio/yarrow/pkg/merge"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Regenerate merged concept groups",
	Long:  "Drops all merged records, recomputes concept groups over cross-references, and writes fresh merged records with back-pointers.",
	RunE:  runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	sqlxDB, db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer sqlxDB.Close()

	store := repositories.NewPostgresStore(db, logger)

	var emitter *events.Emitter
	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: cfg.KafkaBatchTimeout,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = events.NewEmitter(producer, logger)
	}

	engine := merge.NewEngine(store, emitter, logger, cfg.MergeWorkerCount)
	_, err = engine.MergeAll(cmd.Context())
	return err
}
