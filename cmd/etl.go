package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yarrow-bio/yarrow/config"
	"github.com/yarrow-bio/yarrow/internal/repositories"
	"github.com/yarrow-bio/yarrow/pkg/disease"
	"github.com/yarrow-bio/yarrow/pkg/etl"
	"github.com/yarrow-bio/yarrow/pkg/events"
	"github.com/yarrow-bio/yarrow/pkg/kafka"
	"github.com/yarrow-bio/yarrow/pkg/merge"
)

var (
	etlInputs   []string
	etlRunMerge bool
)

var etlCmd = &cobra.Command{
	Use:   "etl",
	Short: "Load pre-normalized source extracts",
	Long:  "Reads one or more source extract files (or directories of them) and reconciles each against the stored records. Optionally runs a merge pass afterwards.",
	RunE:  runEtl,
}

func init() {
	etlCmd.Flags().StringSliceVar(&etlInputs, "input", nil, "extract file or directory (repeatable)")
	etlCmd.Flags().BoolVar(&etlRunMerge, "merge", false, "run a full merge pass after loading")
	_ = etlCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(etlCmd)
}

func runEtl(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()

	runID := uuid.New().String()
	logger.WithFields(map[string]any{"run_id": runID}).Info("Starting ETL run")

	sqlxDB, db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer sqlxDB.Close()

	store := repositories.NewPostgresStore(db, logger)

	var diseases disease.Normalizer
	if cfg.DiseaseNormalizerURL != "" {
		client := disease.NewClient(cfg.DiseaseNormalizerURL, cfg.DiseaseTimeout, logger)
		cached, err := disease.NewCached(client, cfg.DiseaseCacheSize)
		if err != nil {
			return err
		}
		diseases = cached
	}

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

	paths, err := expandInputs(etlInputs)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no extract files found under %v", etlInputs)
	}

	synchronizer := etl.NewSynchronizer(store, diseases, emitter, logger)
	for _, path := range paths {
		file, err := etl.LoadSourceFile(path)
		if err != nil {
			return err
		}

		report, err := synchronizer.SyncSource(ctx, file.Meta.Source, &file.Meta, file.Records)
		if err != nil {
			return fmt.Errorf("sync %s: %w", file.Meta.Source, err)
		}
		for _, skipped := range report.Skipped {
			logger.WithContext(ctx).WithError(skipped).WithFields(map[string]any{"run_id": runID, "src_name": report.Source}).Warn("Record skipped")
		}
	}

	if etlRunMerge {
		engine := merge.NewEngine(store, emitter, logger, cfg.MergeWorkerCount)
		if _, err := engine.MergeAll(ctx); err != nil {
			return err
		}
	}

	logger.WithFields(map[string]any{"run_id": runID}).Info("ETL run complete")
	return nil
}

// expandInputs resolves files and directories into a flat list of JSON
// extract files.
func expandInputs(inputs []string) ([]string, error) {
	var paths []string
	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, input)
			continue
		}
		entries, err := os.ReadDir(input)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			paths = append(paths, filepath.Join(input, entry.Name()))
		}
	}
	return paths, nil
}
