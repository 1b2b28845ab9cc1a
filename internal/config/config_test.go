package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/spirit-led-software/theaistudybible-sub004/core/errors"
)

func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	var cli struct {
		Config `embed:""`
	}
	parser, err := kong.New(&cli, kong.Exit(func(int) { t.Fatal("kong exited") }))
	if err != nil {
		t.Fatalf("kong.New() error = %v", err)
	}
	if _, err := parser.Parse(args); err != nil {
		t.Fatalf("Parse(%v) error = %v", args, err)
	}
	return &cli.Config
}

func TestDefaults(t *testing.T) {
	c := parse(t)
	if c.DatabaseURL != "studybible.db" || c.VectorPath != "studybible-vectors.db" {
		t.Errorf("paths = %q, %q", c.DatabaseURL, c.VectorPath)
	}
	if c.ChunkSize != 2000 || c.ChunkOverlap != 200 || c.VerseBatchSize != 5 || c.LinkBatchSize != 10 {
		t.Errorf("defaults = %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}
	if c.IsPostgres() {
		t.Error("default database should be SQLite")
	}
}

func TestEnvAndFlags(t *testing.T) {
	t.Setenv("STUDYBIBLE_DATABASE_URL", "postgres://user@localhost/bible")
	t.Setenv("STUDYBIBLE_CHUNK_SIZE", "500")

	c := parse(t, "--chunk-overlap=50", "--log-format=text")
	if !c.IsPostgres() {
		t.Errorf("IsPostgres() = false for %q", c.DatabaseURL)
	}
	if c.ChunkSize != 500 || c.ChunkOverlap != 50 || c.LogFormat != "text" {
		t.Errorf("config = %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabaseURL: "x.db", LogLevel: "info", LogFormat: "json",
			EmbeddingModel: "blake3-hash", EmbeddingDimensions: 8,
			ChunkSize: 100, ChunkOverlap: 10, VerseBatchSize: 1, LinkBatchSize: 1,
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty database", func(c *Config) { c.DatabaseURL = " " }, "database"},
		{"postgres pool", func(c *Config) { c.DatabaseURL = "postgresql://h/db"; c.MaxConns = 0 }, "max-conns"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log-level"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log-format"},
		{"model", func(c *Config) { c.EmbeddingModel = "ada" }, "embedding-model"},
		{"dimensions", func(c *Config) { c.EmbeddingDimensions = 0 }, "embedding-dimensions"},
		{"overlap too large", func(c *Config) { c.ChunkOverlap = 100 }, "chunk-overlap"},
		{"verse batch", func(c *Config) { c.VerseBatchSize = 0 }, "verse-batch-size"},
		{"link batch", func(c *Config) { c.LinkBatchSize = -1 }, "link-batch-size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			var ve *errors.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Error("error should match ErrInvalidInput")
			}
		})
	}

	c := valid()
	c.ChunkSize = 0
	c.LinkBatchSize = 0
	if err := c.Validate(); err == nil {
		t.Error("Validate() should fail")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("STUDYBIBLE_TEST_DOTENV=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("STUDYBIBLE_TEST_DOTENV") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("STUDYBIBLE_TEST_DOTENV"); got != "from-file" {
		t.Errorf("STUDYBIBLE_TEST_DOTENV = %q", got)
	}
}

func TestInitLogging(t *testing.T) {
	c := &Config{LogLevel: "debug", LogFormat: "text"}
	if err := c.InitLogging(); err != nil {
		t.Fatal(err)
	}
	c.LogLevel = "nope"
	if err := c.InitLogging(); err == nil {
		t.Error("InitLogging() should reject an unknown level")
	}
}
