// Command ingestd is the ingestion workflow worker process (spec §4.9): it
// connects to a Temporal server, registers the Workflow and its Activities,
// and blocks serving tasks on the ingestion task queue.
package main

import (
	"context"
	"flag"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"code-doc-assistant/internal/chunk"
	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/embedding"
	"code-doc-assistant/internal/ingest"
	"code-doc-assistant/internal/objectstore"
	"code-doc-assistant/internal/observability"
	"code-doc-assistant/internal/registry"
	"code-doc-assistant/internal/vectorstore"
)

const taskQueue = "code-doc-assistant-ingestion"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	temporalHost := flag.String("temporal-host", "localhost:7233", "Temporal frontend address")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx := context.Background()
	shutdown, err := observability.InitOTel(ctx, cfg.OTel)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
	} else {
		defer func() { _ = shutdown(context.Background()) }()
	}

	httpClient := observability.NewHTTPClient(nil)

	store, err := vectorstore.New(ctx, cfg.Vector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init vector store")
	}

	embedder := embedding.NewService(cfg.Embedding, cfg.RetryPolicy(), log.Logger)

	staging, err := newStagingStore(ctx, cfg.Staging, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init staging store")
	}

	reg := registry.New()

	activities := &ingest.Activities{
		Staging:        staging,
		Registry:       reg,
		Embedder:       embedder,
		Vectors:        store,
		Chunker:        chunk.New(cfg.Chunking),
		MaxUploadBytes: cfg.Ingestion.MaxUploadBytes,
		GitDepth:       1,
		IndexBatchSize: 100,
	}

	tc, err := client.Dial(client.Options{HostPort: *temporalHost})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to dial temporal")
	}
	defer tc.Close()

	w := worker.New(tc, taskQueue, worker.Options{})
	w.RegisterWorkflow(ingest.Workflow)
	w.RegisterActivity(activities)

	log.Info().Str("task_queue", taskQueue).Str("staging_backend", cfg.Staging.Backend).Str("vector_backend", cfg.Vector.Backend).Msg("ingestd worker starting")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal().Err(err).Msg("worker stopped with error")
	}
}

// newStagingStore resolves the configured staging backend. "disk" is not
// implemented; it is accepted as a config value but falls back to the
// in-memory store with a warning, matching the spec's memory default.
func newStagingStore(ctx context.Context, cfg config.StagingConfig, httpClient *http.Client) (objectstore.ObjectStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return objectstore.NewMemoryStore(), nil
	case "s3":
		return objectstore.NewS3Store(ctx, cfg.S3, objectstore.WithHTTPClient(httpClient))
	case "disk":
		log.Warn().Msg("staging backend \"disk\" is not implemented; using in-memory store")
		return objectstore.NewMemoryStore(), nil
	default:
		log.Warn().Str("backend", cfg.Backend).Msg("unknown staging backend; using in-memory store")
		return objectstore.NewMemoryStore(), nil
	}
}
