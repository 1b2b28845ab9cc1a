// Package config holds the runtime settings of the studybible command.
//
// Config is embedded into the kong command line, so every field can be given
// as a flag or through its STUDYBIBLE_* environment variable. Variables may
// also come from a .env file loaded with LoadDotEnv before parsing.
package config

import (
	stderrors "errors"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/spirit-led-software/theaistudybible-sub004/core/errors"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/logging"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/vector"
)

// DotEnvFile is loaded by the command when present.
const DotEnvFile = ".env"

// Config is the runtime configuration.
type Config struct {
	DatabaseURL string `name:"database" env:"STUDYBIBLE_DATABASE_URL" default:"studybible.db" help:"SQLite path or postgres:// URL of the translation store"`
	MaxConns    int32  `name:"max-conns" env:"STUDYBIBLE_DATABASE_MAX_CONNS" default:"8" help:"Connection pool size for PostgreSQL"`
	VectorPath  string `name:"vector-db" env:"STUDYBIBLE_VECTOR_PATH" default:"studybible-vectors.db" help:"SQLite path of the embedding document store"`

	LogLevel  string `name:"log-level" env:"STUDYBIBLE_LOG_LEVEL" default:"info" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" env:"STUDYBIBLE_LOG_FORMAT" default:"json" help:"Log format (json, text)"`

	EmbeddingModel      string `name:"embedding-model" env:"STUDYBIBLE_EMBEDDING_MODEL" default:"blake3-hash" help:"Embedding model"`
	EmbeddingDimensions int    `name:"embedding-dimensions" env:"STUDYBIBLE_EMBEDDING_DIMENSIONS" default:"256" help:"Embedding vector size"`
	ChunkSize           int    `name:"chunk-size" env:"STUDYBIBLE_CHUNK_SIZE" default:"2000" help:"Minimum characters per embedding document"`
	ChunkOverlap        int    `name:"chunk-overlap" env:"STUDYBIBLE_CHUNK_OVERLAP" default:"200" help:"Characters of preceding verses repeated in each document"`

	VerseBatchSize int `name:"verse-batch-size" env:"STUDYBIBLE_VERSE_BATCH_SIZE" default:"5" help:"Chapters whose verses are written concurrently"`
	LinkBatchSize  int `name:"link-batch-size" env:"STUDYBIBLE_LINK_BATCH_SIZE" default:"10" help:"Concurrent link updates in the repair pass"`
}

// LoadDotEnv sets environment variables from the given files. Missing files
// are skipped; variables already set are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.NewIO("load", p, err)
		}
	}
	return nil
}

// IsPostgres reports whether DatabaseURL points at PostgreSQL.
func (c *Config) IsPostgres() bool {
	u := strings.ToLower(c.DatabaseURL)
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}

// Validate checks the configuration. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.NewValidation("database", "must be set"))
	}
	if c.IsPostgres() && c.MaxConns < 1 {
		errs = append(errs, errors.NewValidation("max-conns", "must be at least 1"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, &errors.ValidationError{Field: "log-level", Value: c.LogLevel, Message: err.Error()})
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		errs = append(errs, &errors.ValidationError{Field: "log-format", Value: c.LogFormat, Message: err.Error()})
	}
	if c.EmbeddingModel != (vector.HashEmbedder{}).Model() {
		errs = append(errs, &errors.ValidationError{Field: "embedding-model", Value: c.EmbeddingModel, Message: "unsupported model"})
	}
	if c.EmbeddingDimensions < 1 {
		errs = append(errs, errors.NewValidation("embedding-dimensions", "must be positive"))
	}
	if c.ChunkSize < 1 {
		errs = append(errs, errors.NewValidation("chunk-size", "must be positive"))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, errors.NewValidation("chunk-overlap", "must be at least 0 and below chunk-size"))
	}
	if c.VerseBatchSize < 1 {
		errs = append(errs, errors.NewValidation("verse-batch-size", "must be positive"))
	}
	if c.LinkBatchSize < 1 {
		errs = append(errs, errors.NewValidation("link-batch-size", "must be positive"))
	}
	return stderrors.Join(errs...)
}

// InitLogging configures the global logger from LogLevel and LogFormat.
func (c *Config) InitLogging() error {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(c.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}
