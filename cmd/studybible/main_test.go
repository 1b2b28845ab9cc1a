package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/spirit-led-software/theaistudybible-sub004/core/errors"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/formats/dbl/dbltest"
)

// run parses args and runs the selected command, returning what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	old := stdout
	stdout = &out
	defer func() { stdout = old }()

	var cli CLI
	parser, err := newParser(&cli, kong.Exit(func(int) { t.Fatalf("exit while running %v", args) }))
	if err != nil {
		t.Fatalf("newParser() error = %v", err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return "", err
	}
	err = ctx.Run()
	return out.String(), err
}

func writeBundle(t *testing.T, dir string) string {
	t.Helper()
	data := dbltest.Build(t, dbltest.Bundle{
		Abbreviation: "CLI",
		Name:         "Command Line Bible",
		Books: []dbltest.Book{
			{Code: "RUT", Abbr: "Rut", Short: "Ruth", Long: "Ruth", Chapters: 2, Verses: 4},
			{Code: "JON", Abbr: "Jon", Short: "Jonah", Long: "Jonah", Chapters: 1, Verses: 5},
		},
	})
	path := filepath.Join(dir, "bundle.zip")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportAndRepair(t *testing.T) {
	dir := t.TempDir()
	bundle := writeBundle(t, dir)
	db := filepath.Join(dir, "bible.db")
	vectors := filepath.Join(dir, "vectors.db")
	common := []string{"--database", db, "--vector-db", vectors, "--log-level", "error"}

	out, err := run(t, append(common, "import", bundle, "--embeddings", "--chunk-size=30", "--chunk-overlap=5")...)
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	for _, want := range []string{"imported CLI", "books:     2", "chapters:  3", "verses:    13", "documents:"} {
		if !strings.Contains(out, want) {
			t.Errorf("import output missing %q:\n%s", want, out)
		}
	}

	_, err = run(t, append(common, "import", bundle)...)
	if !errors.Is(err, errors.ErrAlreadyExists) {
		t.Fatalf("second import error = %v, want conflict", err)
	}

	out, err = run(t, append(common, "import", bundle, "--overwrite", "--json")...)
	if err != nil {
		t.Fatalf("overwrite import error = %v", err)
	}
	if !strings.Contains(out, `"Replaced"`) || !strings.Contains(out, `"Verses": 13`) {
		t.Errorf("json output = %s", out)
	}

	out, err = run(t, append(common, "links", "repair", "CLI")...)
	if err != nil {
		t.Fatalf("links repair error = %v", err)
	}
	if !strings.Contains(out, "repaired CLI: 0/2 chapters, 0/2 verses updated") {
		t.Errorf("repair output = %q", out)
	}

	if _, err := run(t, append(common, "links", "repair", "NONE")...); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("repair of unknown translation error = %v", err)
	}
}

func TestImportInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	bundle := writeBundle(t, dir)

	_, err := run(t, "--database", filepath.Join(dir, "x.db"), "--chunk-size=10", "--chunk-overlap=10", "import", bundle)
	if err == nil || !strings.Contains(err.Error(), "chunk-overlap") {
		t.Errorf("error = %v, want chunk-overlap validation error", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "studybible version "+version) {
		t.Errorf("version output = %q", out)
	}
}
