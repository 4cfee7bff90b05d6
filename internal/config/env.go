package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	SslCertPath  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	S3Endpoint   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	VisionModel  string
	Port         string
	JWTSecret    string
	LogLevel     string

	AllowedOrigins []string

	ChunkSize            int
	MinChunkChars        int
	ParserWorkers        int
	PageMaxRetries       int
	PageRetryDelay       time.Duration
	MetadataSnippetChars int
	EmbedBatchSize       int
	LLMCallTimeout       time.Duration

	MaxConcurrentJobs int
	JobMaxAttempts    int
	JobBackoffBase    time.Duration
	JobBackoffMax     time.Duration
	JobBackoffJitter  time.Duration
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SslCertPath:  getEnv("SSL_CERT_PATH", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "financial-pdfs"),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		GenModel:     getEnv("GEN_MODEL", "gemini-2.0-flash-lite"),
		VisionModel:  getEnv("VISION_MODEL", "gemini-2.0-flash-lite"),
		Port:         getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		ChunkSize:            getEnvInt("CHUNK_SIZE", 4096),
		MinChunkChars:        getEnvInt("MIN_CHUNK_CHARS", 1024),
		ParserWorkers:        getEnvInt("PARSER_WORKERS", 4),
		PageMaxRetries:       getEnvInt("PAGE_MAX_RETRIES", 5),
		PageRetryDelay:       getEnvDuration("PAGE_RETRY_DELAY", 10*time.Second),
		MetadataSnippetChars: getEnvInt("METADATA_SNIPPET_CHARS", 16000),
		EmbedBatchSize:       getEnvInt("EMBED_BATCH_SIZE", 100),
		LLMCallTimeout:       getEnvDuration("LLM_CALL_TIMEOUT", 2*time.Minute),

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 2),
		JobMaxAttempts:    getEnvInt("JOB_MAX_ATTEMPTS", 3),
		JobBackoffBase:    getEnvDuration("JOB_BACKOFF_BASE", 5*time.Second),
		JobBackoffMax:     getEnvDuration("JOB_BACKOFF_MAX", 2*time.Minute),
		JobBackoffJitter:  getEnvDuration("JOB_BACKOFF_JITTER", 3*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	return cfg
}

// Validate reports the first setting that would make the service unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET not set"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.MinChunkChars < 0 {
		errs = append(errs, fmt.Errorf("MIN_CHUNK_CHARS must not be negative, got %d", c.MinChunkChars))
	}
	if c.ParserWorkers <= 0 {
		errs = append(errs, fmt.Errorf("PARSER_WORKERS must be positive, got %d", c.ParserWorkers))
	}
	if c.MaxConcurrentJobs <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_JOBS must be positive, got %d", c.MaxConcurrentJobs))
	}
	if c.JobMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("JOB_MAX_ATTEMPTS must be positive, got %d", c.JobMaxAttempts))
	}
	return errors.Join(errs...)
}

// NewLogger builds the JSON logger used across the service and installs it as default.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("env value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("env value is not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
