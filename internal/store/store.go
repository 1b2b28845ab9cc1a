// Package store defines the persisted translation entities and the storage
// interface the importer and linker work against.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Level names one of the three linked entity lists.
type Level int

const (
	// LevelBook is the book list of a translation.
	LevelBook Level = iota
	// LevelChapter is the translation-wide chapter list.
	LevelChapter
	// LevelVerse is the translation-wide verse list.
	LevelVerse
)

func (l Level) String() string {
	switch l {
	case LevelBook:
		return "book"
	case LevelChapter:
		return "chapter"
	case LevelVerse:
		return "verse"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Table returns the table holding entities of this level.
func (l Level) Table() string {
	switch l {
	case LevelBook:
		return "books"
	case LevelChapter:
		return "chapters"
	default:
		return "verses"
	}
}

// Bible is one imported translation.
type Bible struct {
	ID                string
	Abbreviation      string
	AbbreviationLocal string
	Name              string
	NameLocal         string
	Description       string
	DescriptionLocal  string
	LanguageISO       string
	LanguageScript    string
	Countries         []string
	Copyright         string
	PublicationID     string
	SourceHash        string
	CreatedAt         time.Time
}

// Book is one book of a translation. Empty PreviousID or NextID means the
// link is unset.
type Book struct {
	ID           string
	BibleID      string
	Number       int
	Code         string
	Abbreviation string
	ShortName    string
	LongName     string
	PreviousID   string
	NextID       string
}

// Chapter is one chapter. Content holds the serialized content tree.
type Chapter struct {
	ID           string
	BibleID      string
	BookID       string
	Number       int
	Abbreviation string
	Name         string
	Content      json.RawMessage
	PreviousID   string
	NextID       string
}

// Verse is one verse. Content holds the serialized verse-scoped content tree.
type Verse struct {
	ID           string
	BibleID      string
	BookID       string
	ChapterID    string
	Number       int
	Abbreviation string
	Name         string
	Content      json.RawMessage
	PreviousID   string
	NextID       string
}

// Link-list accessors used by the linker.

func (b *Book) LinkID() string { return b.ID }
func (b *Book) SetLinks(prev, next string) { b.PreviousID, b.NextID = prev, next }
func (c *Chapter) LinkID() string { return c.ID }
func (c *Chapter) SetLinks(prev, next string) { c.PreviousID, c.NextID = prev, next }
func (v *Verse) LinkID() string { return v.ID }
func (v *Verse) SetLinks(prev, next string) { v.PreviousID, v.NextID = prev, next }

// Store persists translations. Lookups of missing rows return a
// *errors.NotFoundError; backend failures are returned as
// *errors.UpstreamError.
type Store interface {
	CreateBible(ctx context.Context, b *Bible) error
	GetBibleByAbbreviation(ctx context.Context, abbreviation string) (*Bible, error)

	// DeleteBible removes a translation with all its books, chapters,
	// verses and chapter document references.
	DeleteBible(ctx context.Context, id string) error

	CreateBooks(ctx context.Context, books []*Book) error
	CreateChapters(ctx context.Context, chapters []*Chapter) error
	CreateVerses(ctx context.Context, verses []*Verse) error

	// UpdateLinks sets both link columns of one entity.
	UpdateLinks(ctx context.Context, level Level, id, previousID, nextID string) error

	GetBook(ctx context.Context, id string) (*Book, error)
	GetChapter(ctx context.Context, id string) (*Chapter, error)

	// List methods return rows ordered by number.
	ListBooks(ctx context.Context, bibleID string) ([]*Book, error)
	ListChapters(ctx context.Context, bookID string) ([]*Chapter, error)
	ListVerses(ctx context.Context, chapterID string) ([]*Verse, error)

	FirstChapter(ctx context.Context, bookID string) (*Chapter, error)
	LastChapter(ctx context.Context, bookID string) (*Chapter, error)
	FirstVerse(ctx context.Context, chapterID string) (*Verse, error)
	LastVerse(ctx context.Context, chapterID string) (*Verse, error)

	// ListUnlinkedChapters and ListUnlinkedVerses return rows of the
	// translation with a missing previous or next link, without content.
	ListUnlinkedChapters(ctx context.Context, bibleID string) ([]*Chapter, error)
	ListUnlinkedVerses(ctx context.Context, bibleID string) ([]*Verse, error)

	AddChapterDocuments(ctx context.Context, chapterID string, documentIDs []string) error
	ListChapterDocumentIDs(ctx context.Context, bibleID string) ([]string, error)

	Close() error
}
