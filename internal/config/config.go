package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	S3Endpoint    string `envconfig:"S3_ENDPOINT"`
	S3AccessKey   string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey   string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Region      string `envconfig:"S3_REGION" default:"us-east-1"`
	RawBucket     string `envconfig:"RAW_BUCKET" default:"quarry-raw"`
	StagingBucket string `envconfig:"STAGING_BUCKET" default:"quarry-staging"`

	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL"`
	GenerationModel string `envconfig:"GENERATION_MODEL"`

	// Ingestion pipeline tuning
	IngestMode   string        `envconfig:"INGEST_MODE" default:"batching"`
	MaxBatchSize int           `envconfig:"MAX_BATCH_SIZE" default:"100"`
	MaxBatchWait time.Duration `envconfig:"MAX_BATCH_WAIT" default:"10s"`
	QueueSize    int           `envconfig:"QUEUE_SIZE" default:"1000"`
	EmbedWorkers int           `envconfig:"EMBED_WORKERS" default:"2"`
	EmbedRate    float64       `envconfig:"EMBED_RATE" default:"0"`

	TemplateTTL time.Duration `envconfig:"TEMPLATE_TTL" default:"5m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("QUARRY", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
