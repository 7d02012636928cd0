package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings, bound from environment variables.
type Config struct {
	AppName    string `envconfig:"APP_NAME" default:"yarrow"`
	Port       int    `envconfig:"PORT" default:"8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	PrettyLogs bool   `envconfig:"PRETTY_LOGS" default:"false"`

	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`

	DBHost         string `envconfig:"DB_HOST" default:"localhost"`
	DBPort         int    `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"postgres"`
	DBPassword     string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName         string `envconfig:"DB_NAME" default:"yarrow"`
	DBSSLMode      string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`

	MigrationFolderPath   string `envconfig:"MIGRATION_FOLDER_PATH" default:"db/pg"`
	MigrationVersion      uint   `envconfig:"MIGRATION_VERSION" default:"0"`
	MigrationForce        int    `envconfig:"MIGRATION_FORCE" default:"0"`
	MigrationAutoRollback bool   `envconfig:"MIGRATION_AUTO_ROLLBACK" default:"true"`

	KafkaEnabled      bool          `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers      []string      `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic        string        `envconfig:"KAFKA_TOPIC" default:"yarrow.concepts"`
	KafkaBatchSize    int           `envconfig:"KAFKA_BATCH_SIZE" default:"100"`
	KafkaBatchTimeout time.Duration `envconfig:"KAFKA_BATCH_TIMEOUT" default:"1s"`
	KafkaRequiredAcks int           `envconfig:"KAFKA_REQUIRED_ACKS" default:"-1"`
	KafkaCompression  string        `envconfig:"KAFKA_COMPRESSION" default:"snappy"`

	DiseaseNormalizerURL string        `envconfig:"DISEASE_NORMALIZER_URL" default:""`
	DiseaseTimeout       time.Duration `envconfig:"DISEASE_TIMEOUT" default:"10s"`
	DiseaseCacheSize     int           `envconfig:"DISEASE_CACHE_SIZE" default:"64"`

	MergeWorkerCount int `envconfig:"MERGE_WORKER_COUNT" default:"4"`

	TracingEnabled bool `envconfig:"TRACING_ENABLED" default:"false"`
}

// Load reads .env when present, then binds the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &c, nil
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}
