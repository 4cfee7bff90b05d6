// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/markdave123-py/fincontexta/internal/config"
	db "github.com/markdave123-py/fincontexta/internal/core/database"
	"github.com/markdave123-py/fincontexta/internal/core/ingestion_engine"
	"github.com/markdave123-py/fincontexta/internal/core/llm"
	objectclient "github.com/markdave123-py/fincontexta/internal/core/object-client"
	"github.com/markdave123-py/fincontexta/internal/services"
)

type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient *objectclient.S3Client
	Runner       *ingestion_engine.JobRunner
	Server       *Server

	llm      *llm.GeminiLLM
	vision   *llm.GeminiLLM
	embedder *llm.GeminiEmbedder
}

// NewApp connects every backend and wires the pipeline. runCtx bounds the
// lifetime of background ingestion runs.
func NewApp(ctx, runCtx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	ingCfg := ingestion_engine.NewIngestConfig(cfg)
	chunker, err := ingestion_engine.NewChunkingService(ingCfg.Chunking)
	if err != nil {
		return nil, fmt.Errorf("chunking config: %w", err)
	}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedBatchSize, cfg.LLMCallTimeout)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	gemini, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel, cfg.LLMCallTimeout)
	if err != nil {
		_ = dbClient.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}

	// Transcription uses its own model handle so it can point at a vision model.
	vision := gemini
	if cfg.VisionModel != "" && cfg.VisionModel != cfg.GenModel {
		if vision, err = llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.VisionModel, cfg.LLMCallTimeout); err != nil {
			_ = dbClient.Close()
			_ = embedder.Close()
			_ = gemini.Close()
			return nil, fmt.Errorf("couldn't initialize the vision llm, %w", err)
		}
	}

	gateway := ingestion_engine.NewStorageGateway(dbClient, objClient, ingCfg.Bucket, ingCfg.EmbedDim)
	parser := ingestion_engine.NewPDFParser(
		ingestion_engine.NewFitzRasterizer(), vision, ingestion_engine.NewLocalTextExtractor(), ingCfg.Parser)
	extractor := ingestion_engine.NewMetadataExtractor(
		ingestion_engine.NewLLMMetadataStrategy(gemini), ingCfg.MetadataSnippetChars)
	pipeline := ingestion_engine.NewIngestionPipeline(
		parser, extractor, chunker, ingestion_engine.NewEmbeddingService(embedder), gateway)

	runner := ingestion_engine.NewJobRunner(runCtx, pipeline,
		semaphore.NewWeighted(int64(ingCfg.Runner.MaxConcurrent)), ingCfg.Runner)

	docService := services.NewDocumentService(dbClient, gateway, runner)
	retrieval := services.NewRetrievalService(dbClient, embedder)

	server := NewServer(cfg, docService, retrieval)
	slog.Info("application wired", "max_concurrent_jobs", ingCfg.Runner.MaxConcurrent, "parser_workers", ingCfg.Parser.Workers)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Runner:       runner,
		Server:       server,
		llm:          gemini,
		vision:       vision,
		embedder:     embedder,
	}, nil
}

// Close waits for running jobs and releases every client.
func (a *App) Close() {
	if a.Runner != nil {
		a.Runner.Wait()
	}
	if a.vision != nil && a.vision != a.llm {
		_ = a.vision.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
