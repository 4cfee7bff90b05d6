package ingestion_engine

import (
	"fmt"
	"time"

	"github.com/markdave123-py/fincontexta/internal/config"
)

// ParserConfig tunes page transcription.
//
// Workers:    pages transcribed concurrently.
// MaxRetries: retries per page on rate limiting (attempts = MaxRetries + 1).
// RetryDelay: fixed wait between page retries.
type ParserConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// ChunkingConfig bounds chunk sizes, in characters.
//
// ChunkSize:             hard upper bound for one chunk.
// MinCharactersPerChunk: a natural break is only taken past this many characters.
type ChunkingConfig struct {
	ChunkSize             int
	MinCharactersPerChunk int
}

func (c ChunkingConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.MinCharactersPerChunk < 0 {
		return fmt.Errorf("min characters per chunk must not be negative, got %d", c.MinCharactersPerChunk)
	}
	return nil
}

// RunnerConfig controls scheduling and whole-run retries.
//
// MaxConcurrent: pipeline runs allowed at once across all owners.
// MaxAttempts:   runs per job before a retryable failure becomes terminal.
// BackoffBase:   first exponential backoff step.
// BackoffMax:    cap for any wait, including server-suggested ones.
// BackoffJitter: random extra wait added to exponential steps.
type RunnerConfig struct {
	MaxConcurrent int
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	BackoffJitter time.Duration
}

// IngestConfig groups the pipeline tuning knobs.
type IngestConfig struct {
	Parser               ParserConfig
	Chunking             ChunkingConfig
	Runner               RunnerConfig
	MetadataSnippetChars int
	EmbedDim             int
	Bucket               string
}

func NewIngestConfig(cfg *config.Config) *IngestConfig {
	return &IngestConfig{
		Parser: ParserConfig{
			Workers:    cfg.ParserWorkers,
			MaxRetries: cfg.PageMaxRetries,
			RetryDelay: cfg.PageRetryDelay,
		},
		Chunking: ChunkingConfig{
			ChunkSize:             cfg.ChunkSize,
			MinCharactersPerChunk: cfg.MinChunkChars,
		},
		Runner: RunnerConfig{
			MaxConcurrent: cfg.MaxConcurrentJobs,
			MaxAttempts:   cfg.JobMaxAttempts,
			BackoffBase:   cfg.JobBackoffBase,
			BackoffMax:    cfg.JobBackoffMax,
			BackoffJitter: cfg.JobBackoffJitter,
		},
		MetadataSnippetChars: cfg.MetadataSnippetChars,
		EmbedDim:             cfg.EmbedDim,
		Bucket:               cfg.BucketName,
	}
}
