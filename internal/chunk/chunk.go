// Package chunk turns a chapter's verses into overlapping text windows for
// embedding.
package chunk

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

// Category tags every generated document.
const Category = "bible"

// Verse is the plain text of one verse.
type Verse struct {
	ID     string
	Number int
	Text   string
}

// Source identifies the chapter the verses belong to.
type Source struct {
	BibleAbbreviation      string // used in URLs and metadata
	BibleAbbreviationLocal string // used in the display name
	BookCode               string
	BookShortName          string
	ChapterID              string
	ChapterNumber          int
}

// Metadata is stored alongside each document.
type Metadata struct {
	Category          string   `json:"category"`
	BibleAbbreviation string   `json:"bibleAbbreviation"`
	Name              string   `json:"name"`
	URL               string   `json:"url"`
	IndexDate         string   `json:"indexDate"`
	VerseRange        string   `json:"verseRange"`
	VerseIDs          []string `json:"verseIds"`
	BookAbbreviation  string   `json:"bookAbbreviation"`
	ChapterNumber     int      `json:"chapterNumber"`
}

// Map returns the metadata as a generic map for document stores.
func (m Metadata) Map() map[string]any {
	return map[string]any{
		"category":          m.Category,
		"bibleAbbreviation": m.BibleAbbreviation,
		"name":              m.Name,
		"url":               m.URL,
		"indexDate":         m.IndexDate,
		"verseRange":        m.VerseRange,
		"verseIds":          m.VerseIDs,
		"bookAbbreviation":  m.BookAbbreviation,
		"chapterNumber":     m.ChapterNumber,
	}
}

// Document is one embeddable window.
type Document struct {
	ID       string
	Content  string
	Metadata Metadata
}

// Generator slices verses into windows of at least ChunkSize characters,
// each prefixed by at least ChunkOverlap characters of the verses before it.
// Sizes count runes of the joined verse text.
type Generator struct {
	ChunkSize    int
	ChunkOverlap int

	// Now stamps IndexDate. Defaults to time.Now.
	Now func() time.Time
}

// Generate returns the documents for one chapter. Verses must be in
// ascending order. Every verse id is attributed to exactly one document;
// overlap text is display context only.
func (g *Generator) Generate(src Source, verses []Verse) []Document {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	indexDate := now().UTC().Format(time.RFC3339)

	var docs []Document
	for i := 0; i < len(verses); {
		verseStart := verses[i].Number

		// Look back for overlap text.
		var back []string
		size := 0
		for j := i - 1; j >= 0 && size < g.ChunkOverlap; j-- {
			text := strings.TrimSpace(verses[j].Text)
			back = append(back, text)
			size += utf8.RuneCountInString(text)
			verseStart = verses[j].Number
		}
		parts := make([]string, 0, len(back)+8)
		for j := len(back) - 1; j >= 0; j-- {
			parts = append(parts, back[j])
		}

		// Walk forward, always taking at least one verse.
		var ids []string
		verseEnd := verses[i].Number
		for j := i; j < len(verses); j++ {
			if len(ids) > 0 && size >= g.ChunkSize {
				break
			}
			text := strings.TrimSpace(verses[j].Text)
			parts = append(parts, text)
			size += utf8.RuneCountInString(text)
			ids = append(ids, verses[j].ID)
			verseEnd = verses[j].Number
		}

		name := displayName(src, verseStart, verseEnd)
		docs = append(docs, Document{
			ID:      documentID(src.ChapterID, ids),
			Content: joinNonEmpty(parts) + " - " + name,
			Metadata: Metadata{
				Category:          Category,
				BibleAbbreviation: src.BibleAbbreviation,
				Name:              name,
				URL:               fmt.Sprintf("/bible/%s/%s/%d", src.BibleAbbreviation, src.BookCode, src.ChapterNumber),
				IndexDate:         indexDate,
				VerseRange:        fmt.Sprintf("%d-%d", verseStart, verseEnd),
				VerseIDs:          ids,
				BookAbbreviation:  src.BookCode,
				ChapterNumber:     src.ChapterNumber,
			},
		})

		if len(ids) == 0 {
			i++
			continue
		}
		i += len(ids)
	}
	return docs
}

func displayName(src Source, start, end int) string {
	return fmt.Sprintf("%s %d:%d-%d (%s)", src.BookShortName, src.ChapterNumber, start, end, src.BibleAbbreviationLocal)
}

// documentID derives a stable id from the chapter and its attributed verses.
func documentID(chapterID string, verseIDs []string) string {
	h := blake3.New()
	h.Write([]byte(chapterID))
	for _, id := range verseIDs {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func joinNonEmpty(parts []string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
