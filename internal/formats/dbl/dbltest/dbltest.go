// Package dbltest builds in-memory DBL bundles for tests.
package dbltest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"
)

// Book is one book of a generated bundle.
type Book struct {
	Code  string // USX code, e.g. "GEN"
	Abbr  string
	Short string
	Long  string

	// USX is the book document. When empty, Chapters and Verses generate one.
	USX      string
	Chapters int
	Verses   int
}

// Bundle describes a generated bundle.
type Bundle struct {
	Abbreviation      string
	AbbreviationLocal string
	Name              string
	Language          string
	Books             []Book

	// PublicationID defaults to "p1".
	PublicationID string

	// Prefix wraps every entry in a top-level directory.
	Prefix string

	// Omit drops required entries (license.xml, metadata.xml).
	Omit []string
}

// Zip builds a zip archive from name → content.
func Zip(t testing.TB, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// XZ compresses data into an xz stream.
func XZ(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

// Build returns the zip bytes for b.
func Build(t testing.TB, b Bundle) []byte {
	t.Helper()
	return Zip(t, Files(b))
}

// Files returns the entries of b without archiving them.
func Files(b Bundle) map[string]string {
	if b.PublicationID == "" {
		b.PublicationID = "p1"
	}
	if b.AbbreviationLocal == "" {
		b.AbbreviationLocal = b.Abbreviation
	}
	if b.Language == "" {
		b.Language = "eng"
	}

	files := map[string]string{
		"license.xml":  `<license id="lic"><dateLicense>2024-01-01</dateLicense></license>`,
		"metadata.xml": Metadata(b),
	}
	for _, book := range b.Books {
		doc := book.USX
		if doc == "" {
			doc = USX(book.Code, book.Chapters, book.Verses)
		}
		files["release/USX_1/"+book.Code+".usx"] = doc
	}
	for _, name := range b.Omit {
		delete(files, name)
	}
	if b.Prefix != "" {
		wrapped := make(map[string]string, len(files))
		for name, data := range files {
			wrapped[strings.TrimSuffix(b.Prefix, "/")+"/"+name] = data
		}
		files = wrapped
	}
	return files
}

// Metadata renders the metadata.xml document for b.
func Metadata(b Bundle) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="utf-8"?>
<DBLMetadata id="2880c78491b2f8ce" revision="3" type="text" typeVersion="2.0">
  <identification>
    <name>%s</name>
    <nameLocal>%s</nameLocal>
    <description>%s test translation</description>
    <descriptionLocal>%s local description</descriptionLocal>
    <abbreviation>%s</abbreviation>
    <abbreviationLocal>%s</abbreviationLocal>
  </identification>
  <language>
    <iso>%s</iso>
    <name>English</name>
    <script>Latin</script>
    <scriptDirection>LTR</scriptDirection>
  </language>
  <countries>
    <country><iso>US</iso><name>United States</name></country>
  </countries>
  <copyright>
    <fullStatement><statementContent type="xhtml"><p>Public domain.</p></statementContent></fullStatement>
  </copyright>
  <names>
`, b.Name, b.Name, b.Name, b.Name, b.Abbreviation, b.AbbreviationLocal, b.Language)
	for _, book := range b.Books {
		fmt.Fprintf(&sb, "    <name id=\"book-%s\"><abbr>%s</abbr><short>%s</short><long>%s</long></name>\n",
			strings.ToLower(book.Code), book.Abbr, book.Short, book.Long)
	}
	fmt.Fprintf(&sb, "  </names>\n  <publications>\n    <publication id=%q default=\"true\">\n      <name>Full</name>\n      <structure>\n", b.PublicationID)
	for _, book := range b.Books {
		fmt.Fprintf(&sb, "        <content name=\"book-%s\" src=\"release/USX_1/%s.usx\" role=\"%s\"/>\n",
			strings.ToLower(book.Code), book.Code, book.Code)
	}
	sb.WriteString("      </structure>\n    </publication>\n  </publications>\n</DBLMetadata>\n")
	return sb.String()
}

// USX generates a book with the given number of chapters, each holding
// verses verses of text "<CODE> c:v".
func USX(code string, chapters, verses int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<usx version=\"3.0\">\n  <book code=%q style=\"id\"/>\n", code)
	for c := 1; c <= chapters; c++ {
		fmt.Fprintf(&sb, "  <chapter number=\"%d\" style=\"c\" sid=\"%s %d\"/>\n  <para style=\"p\">", c, code, c)
		for v := 1; v <= verses; v++ {
			fmt.Fprintf(&sb, "<verse number=\"%d\" style=\"v\" sid=\"%s %d:%d\"/>%s %d:%d text.<verse eid=\"%s %d:%d\"/>",
				v, code, c, v, code, c, v, code, c, v)
		}
		fmt.Fprintf(&sb, "</para>\n  <chapter eid=\"%s %d\"/>\n", code, c)
	}
	sb.WriteString("</usx>\n")
	return sb.String()
}
