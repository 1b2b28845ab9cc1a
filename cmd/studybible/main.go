// Command studybible imports Digital Bible Library bundles into a translation
// store and maintains the imported translations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/spirit-led-software/theaistudybible-sub004/core/errors"
	"github.com/spirit-led-software/theaistudybible-sub004/core/sqlite"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/chunk"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/config"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/importer"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/linker"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/store"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/store/pgstore"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/store/sqlitestore"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/vector"
)

const version = "0.1.0"

// stdout receives command results. Logs go to stderr.
var stdout io.Writer = os.Stdout

// CLI defines the command-line interface for studybible.
type CLI struct {
	config.Config `embed:""`

	Import  ImportCmd  `cmd:"" help:"Import a DBL bundle"`
	Links   LinksGroup `cmd:"" help:"Verse, chapter and book link maintenance"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// LinksGroup contains link maintenance operations.
type LinksGroup struct {
	Repair LinksRepairCmd `cmd:"" help:"Fill missing links across book and chapter boundaries"`
}

// ImportCmd imports a bundle.
type ImportCmd struct {
	Bundle           string `arg:"" help:"Path to the bundle (.zip or xz-compressed .zip)" type:"existingfile"`
	Publication      string `help:"Publication id (default: the default publication, else the first)"`
	Overwrite        bool   `help:"Replace an existing translation with the same abbreviation"`
	Embeddings       bool   `help:"Generate embedding documents for every chapter"`
	CleanupOnFailure bool   `name:"cleanup-on-failure" help:"Delete the partially imported translation if the import fails"`
	JSON             bool   `help:"Print the result as JSON"`
}

// Run executes the import command.
func (c *ImportCmd) Run(cfg *config.Config) error {
	ctx := context.Background()
	if err := setup(cfg); err != nil {
		return err
	}

	data, err := os.ReadFile(c.Bundle)
	if err != nil {
		return errors.NewIO("read", c.Bundle, err)
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	im := importer.New(s, nil, nil, nil)
	im.VerseBatchSize = cfg.VerseBatchSize
	im.LinkBatchSize = cfg.LinkBatchSize

	// Overwrites also need the vector store, to remove old documents.
	if c.Embeddings || c.Overwrite {
		vs, err := vector.OpenSQLite(cfg.VectorPath)
		if err != nil {
			return err
		}
		defer vs.Close()
		emb := vector.HashEmbedder{Dim: cfg.EmbeddingDimensions}
		vs.Model = emb.Model()
		im.Vectors = vs
		im.Embedder = emb
		im.Chunker = &chunk.Generator{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap}
	}

	res, err := im.Import(ctx, data, importer.Options{
		PublicationID:      c.Publication,
		Overwrite:          c.Overwrite,
		GenerateEmbeddings: c.Embeddings,
		CleanupOnFailure:   c.CleanupOnFailure,
	})
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(stdout, "imported %s (%s) publication %s\n", res.Abbreviation, res.BibleID, res.PublicationID)
	fmt.Fprintf(stdout, "  books:     %d\n", res.Books)
	fmt.Fprintf(stdout, "  chapters:  %d\n", res.Chapters)
	fmt.Fprintf(stdout, "  verses:    %d\n", res.Verses)
	if c.Embeddings {
		fmt.Fprintf(stdout, "  documents: %d\n", res.Documents)
	}
	if res.Replaced != "" {
		fmt.Fprintf(stdout, "  replaced:  %s\n", res.Replaced)
	}
	fmt.Fprintf(stdout, "  duration:  %s\n", res.Duration.Round(time.Millisecond))
	return nil
}

// LinksRepairCmd runs the link repair pass on an imported translation.
type LinksRepairCmd struct {
	Abbreviation string `arg:"" help:"Abbreviation of the translation"`
}

// Run executes the repair command.
func (c *LinksRepairCmd) Run(cfg *config.Config) error {
	ctx := context.Background()
	if err := setup(cfg); err != nil {
		return err
	}
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	bible, err := s.GetBibleByAbbreviation(ctx, c.Abbreviation)
	if err != nil {
		return err
	}
	l := &linker.Linker{Store: s, BatchSize: cfg.LinkBatchSize}
	stats, err := l.Repair(ctx, bible.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "repaired %s: %d/%d chapters, %d/%d verses updated\n",
		bible.Abbreviation, stats.ChaptersUpdated, stats.ChaptersExamined, stats.VersesUpdated, stats.VersesExamined)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "studybible version %s (sqlite driver: %s, %s)\n", version, info.DriverType, info.Package)
	return nil
}

func setup(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return cfg.InitLogging()
}

// openStore opens PostgreSQL for postgres:// URLs and SQLite otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.IsPostgres() {
		return pgstore.Connect(ctx, cfg.DatabaseURL, cfg.MaxConns)
	}
	return sqlitestore.Open(cfg.DatabaseURL)
}

func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("studybible"),
		kong.Description("Scripture bundle importer"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Bind(&cli.Config),
	}, options...)
	return kong.New(cli, options...)
}

func main() {
	if err := config.LoadDotEnv(config.DotEnvFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}
