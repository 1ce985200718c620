package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/quarrylabs/quarry/internal/api/handlers"
	"github.com/quarrylabs/quarry/internal/chunker"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/ingest"
	"github.com/quarrylabs/quarry/internal/jobs"
	"github.com/quarrylabs/quarry/internal/openai"
	"github.com/quarrylabs/quarry/internal/query"
	"github.com/quarrylabs/quarry/internal/repository"
	"github.com/quarrylabs/quarry/internal/server"
	"github.com/quarrylabs/quarry/internal/storage"
	"github.com/quarrylabs/quarry/internal/telemetry"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the quarry API server and ingestion pipeline on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	chunkRepo := repository.NewChunkRepository(pool)
	embeddingRepo := repository.NewEmbeddingRepository(pool)
	promptRepo := repository.NewPromptRepository(pool)

	var s3Client *storage.S3Client
	if cfg.HasS3() {
		s3Config := storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			UsePathStyle:    true,
		}
		s3Client, err = storage.NewS3Client(ctx, s3Config)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		for _, bucket := range []string{cfg.RawBucket, cfg.StagingBucket} {
			if err := s3Client.EnsureBucket(ctx, bucket); err != nil {
				return fmt.Errorf("failed to ensure S3 bucket %s: %w", bucket, err)
			}
			log.Printf("S3 bucket '%s' ready", bucket)
		}
	}

	var embeddingClient ingest.EmbeddingClient
	var questionEmbedder query.QuestionEmbedder
	var generator query.Generator
	if cfg.HasOpenAI() {
		client := openai.NewClientWithConfig(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			EmbeddingModel: goopenai.EmbeddingModel(cfg.EmbeddingModel),
		})
		embeddingClient = client
		questionEmbedder = client
		generator = &GenerationAdapter{
			client: openai.NewGenerationClient(cfg.OpenAIAPIKey, cfg.GenerationModel),
		}
		log.Println("embedding oracle configured")
	} else {
		oracle := &NoOpOracle{}
		embeddingClient = oracle
		questionEmbedder = oracle
		generator = oracle
	}

	// In batching mode records are both staged to object storage and
	// bulk-upserted into the vector store; immediate mode skips the bulk
	// step and writes each record inline in the embedding stage.
	var sink ingest.VectorSink = &NoOpSink{}
	if s3Client != nil {
		sink = &StoredSink{
			staging: ingest.NewJSONLSink(s3Client.Bucket(cfg.StagingBucket)),
			records: embeddingRepo,
		}
	}

	embedderOpts := []ingest.EmbedderOption{}
	if cfg.EmbedRate > 0 {
		embedderOpts = append(embedderOpts,
			ingest.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.EmbedRate), 1)))
	}
	if ingest.Mode(cfg.IngestMode) == ingest.ModeImmediate {
		embedderOpts = append(embedderOpts, ingest.WithRecordWriter(embeddingRepo))
	}

	embedder := ingest.NewBatchEmbedder(embeddingClient, sink, embedderOpts...)

	pipeline, err := ingest.NewPipeline(ingest.PipelineConfig{
		Mode:         ingest.Mode(cfg.IngestMode),
		EmbedWorkers: cfg.EmbedWorkers,
		Accumulator: ingest.AccumulatorConfig{
			MaxBatchSize: cfg.MaxBatchSize,
			MaxBatchWait: cfg.MaxBatchWait,
			QueueSize:    cfg.QueueSize,
		},
	}, embedder)
	if err != nil {
		return fmt.Errorf("failed to create ingest pipeline: %w", err)
	}
	go pipeline.Start(ctx)

	templateCache := query.NewTemplateCache(promptRepo, cfg.TemplateTTL)
	refreshWorker := jobs.NewWorker("template-refresh", query.NewRefreshProcessor(templateCache), cfg.TemplateTTL)
	go refreshWorker.Start(ctx)

	orchestrator := query.NewOrchestrator(questionEmbedder, embeddingRepo, chunkRepo, templateCache, generator)

	splitter := chunker.NewSplitter(chunker.DefaultConfig())

	var documentsHandler *handlers.DocumentsHandler
	if s3Client != nil {
		intake := ingest.NewIntake(s3Client, splitter, chunkRepo, pipeline, cfg.RawBucket)
		documentsHandler = handlers.NewDocumentsHandler(s3Client, intake, cfg.RawBucket)
	} else {
		documentsHandler = handlers.NewDocumentsHandler(&NoOpDocumentStore{}, &NoOpDocumentStore{}, cfg.RawBucket)
	}

	routerCfg := server.RouterConfig{
		DocumentsHandler: documentsHandler,
		EventsHandler:    handlers.NewEventsHandler(pipeline),
		QueryHandler:     handlers.NewQueryHandler(orchestrator),
		PromptsHandler:   handlers.NewPromptsHandler(templateCache),
		Readiness: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop the HTTP surface first so no new events arrive, then drain the
	// pipeline so every accepted event is embedded and staged.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	pipeline.Stop()
	refreshWorker.Stop()

	log.Println("server exited")
	return nil
}

// GenerationAdapter narrows the streaming generation client to the
// orchestrator's Generator contract.
type GenerationAdapter struct {
	client *openai.GenerationClient
}

func (a *GenerationAdapter) Stream(ctx context.Context, prompt string, temperature float32, fn func(fragment string) error) error {
	return a.client.Stream(ctx, prompt, openai.GenerationOptions{Temperature: temperature}, fn)
}

// StoredSink stages each batch as a JSONL file and bulk-upserts the same
// records into the vector store. Staging happens first; a batch is only
// searchable once its staged file exists.
type StoredSink struct {
	staging *ingest.JSONLSink
	records interface {
		UpsertBatch(ctx context.Context, records []domain.EmbeddingRecord) error
	}
}

func (s *StoredSink) StageBatch(ctx context.Context, records []domain.EmbeddingRecord) (string, error) {
	name, err := s.staging.StageBatch(ctx, records)
	if err != nil {
		return "", err
	}
	if err := s.records.UpsertBatch(ctx, records); err != nil {
		return "", err
	}
	return name, nil
}

// NoOpOracle stands in for the embedding and generation clients when no
// API key is configured.
type NoOpOracle struct{}

func (o *NoOpOracle) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, domain.NewDomainError(domain.ErrCodeUnavailable, "embedding oracle not configured: QUARRY_OPENAI_API_KEY required")
}

func (o *NoOpOracle) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, domain.NewDomainError(domain.ErrCodeUnavailable, "embedding oracle not configured: QUARRY_OPENAI_API_KEY required")
}

func (o *NoOpOracle) Stream(ctx context.Context, prompt string, temperature float32, fn func(fragment string) error) error {
	return domain.NewDomainError(domain.ErrCodeUnavailable, "generation oracle not configured: QUARRY_OPENAI_API_KEY required")
}

// NoOpSink rejects staging when no object store is configured.
type NoOpSink struct{}

func (s *NoOpSink) StageBatch(ctx context.Context, records []domain.EmbeddingRecord) (string, error) {
	return "", domain.NewDomainError(domain.ErrCodeUnavailable, "staging store not configured: QUARRY_S3_ENDPOINT required")
}

// NoOpDocumentStore rejects document operations when no object store is
// configured.
type NoOpDocumentStore struct{}

func (s *NoOpDocumentStore) GenerateUploadURL(ctx context.Context, bucket, key, contentType string) (string, error) {
	return "", domain.NewDomainError(domain.ErrCodeUnavailable, "document store not configured: QUARRY_S3_ENDPOINT required")
}

func (s *NoOpDocumentStore) ProcessObject(ctx context.Context, key, language string) (*ingest.IntakeResult, error) {
	return nil, domain.NewDomainError(domain.ErrCodeUnavailable, "document store not configured: QUARRY_S3_ENDPOINT required")
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
