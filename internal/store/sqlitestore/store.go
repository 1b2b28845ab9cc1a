// Package sqlitestore implements store.Store on SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spirit-led-software/theaistudybible-sub004/core/errors"
	"github.com/spirit-led-software/theaistudybible-sub004/core/sqlite"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/logging"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/store"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const service = "sqlite"

// Store is a store.Store backed by a SQLite database.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. Use sqlite.MemoryPath for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewUpstream(service, "open", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlitestore: db is nil")
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return errors.NewUpstream(service, "migrate "+entry.Name(), err)
		}
	}
	return nil
}

// call times one store operation and classifies its error.
func (s *Store) call(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	logging.StoreCall(ctx, service, op, time.Since(start))
	if err == nil || errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrAlreadyExists) {
		return err
	}
	return errors.NewUpstream(service, op, err)
}

// nullable maps an unset link to SQL NULL.
func nullable(id string) any {
	if id == "" {
		return nil
	}
	return id
}

type scanner interface {
	Scan(dest ...any) error
}

// CreateBible inserts a translation. A duplicate abbreviation is a
// *errors.ConflictError.
func (s *Store) CreateBible(ctx context.Context, b *store.Bible) error {
	return s.call(ctx, "create_bible", func() error {
		if existing, err := s.getBible(ctx, b.Abbreviation); err == nil {
			return errors.NewConflict("bible", b.Abbreviation, existing.ID)
		} else if !errors.Is(err, errors.ErrNotFound) {
			return err
		}

		countries, err := json.Marshal(b.Countries)
		if err != nil {
			return err
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = time.Now().UTC()
		}
		_, err = s.db.ExecContext(ctx, `INSERT INTO bibles (id, abbreviation, abbreviation_local, name, name_local,
			description, description_local, language_iso, language_script, countries, copyright, publication_id,
			source_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.Abbreviation, b.AbbreviationLocal, b.Name, b.NameLocal, b.Description, b.DescriptionLocal,
			b.LanguageISO, b.LanguageScript, string(countries), b.Copyright, b.PublicationID,
			b.SourceHash, b.CreatedAt.Format(time.RFC3339Nano))
		return err
	})
}

// GetBibleByAbbreviation returns the translation with the given abbreviation.
func (s *Store) GetBibleByAbbreviation(ctx context.Context, abbreviation string) (*store.Bible, error) {
	var b *store.Bible
	err := s.call(ctx, "get_bible", func() error {
		var err error
		b, err = s.getBible(ctx, abbreviation)
		return err
	})
	return b, err
}

func (s *Store) getBible(ctx context.Context, abbreviation string) (*store.Bible, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, abbreviation, abbreviation_local, name, name_local, description,
		description_local, language_iso, language_script, countries, copyright, publication_id, source_hash,
		created_at FROM bibles WHERE abbreviation = ?`, abbreviation)

	var (
		b         store.Bible
		countries string
		created   string
	)
	err := row.Scan(&b.ID, &b.Abbreviation, &b.AbbreviationLocal, &b.Name, &b.NameLocal, &b.Description,
		&b.DescriptionLocal, &b.LanguageISO, &b.LanguageScript, &countries, &b.Copyright, &b.PublicationID,
		&b.SourceHash, &created)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("bible", abbreviation)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(countries), &b.Countries); err != nil {
		return nil, fmt.Errorf("decode countries: %w", err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	return &b, nil
}

// DeleteBible removes a translation and everything under it in one
// transaction.
func (s *Store) DeleteBible(ctx context.Context, id string) error {
	return s.call(ctx, "delete_bible", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmts := []string{
			`DELETE FROM chapter_documents WHERE chapter_id IN (SELECT id FROM chapters WHERE bible_id = ?)`,
			`DELETE FROM verses WHERE bible_id = ?`,
			`DELETE FROM chapters WHERE bible_id = ?`,
			`DELETE FROM books WHERE bible_id = ?`,
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM bibles WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errors.NewNotFound("bible", id)
		}
		return tx.Commit()
	})
}

// insertAll runs one prepared insert per row inside a transaction.
func (s *Store) insertAll(ctx context.Context, query string, n int, args func(i int) []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateBooks inserts books.
func (s *Store) CreateBooks(ctx context.Context, books []*store.Book) error {
	if len(books) == 0 {
		return nil
	}
	return s.call(ctx, "create_books", func() error {
		return s.insertAll(ctx, `INSERT INTO books (id, bible_id, number, code, abbreviation, short_name, long_name,
			previous_id, next_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(books), func(i int) []any {
			b := books[i]
			return []any{b.ID, b.BibleID, b.Number, b.Code, b.Abbreviation, b.ShortName, b.LongName,
				nullable(b.PreviousID), nullable(b.NextID)}
		})
	})
}

// CreateChapters inserts chapters.
func (s *Store) CreateChapters(ctx context.Context, chapters []*store.Chapter) error {
	if len(chapters) == 0 {
		return nil
	}
	return s.call(ctx, "create_chapters", func() error {
		return s.insertAll(ctx, `INSERT INTO chapters (id, bible_id, book_id, number, abbreviation, name, content,
			previous_id, next_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(chapters), func(i int) []any {
			c := chapters[i]
			return []any{c.ID, c.BibleID, c.BookID, c.Number, c.Abbreviation, c.Name, string(c.Content),
				nullable(c.PreviousID), nullable(c.NextID)}
		})
	})
}

// CreateVerses inserts verses.
func (s *Store) CreateVerses(ctx context.Context, verses []*store.Verse) error {
	if len(verses) == 0 {
		return nil
	}
	return s.call(ctx, "create_verses", func() error {
		return s.insertAll(ctx, `INSERT INTO verses (id, bible_id, book_id, chapter_id, number, abbreviation, name,
			content, previous_id, next_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(verses), func(i int) []any {
			v := verses[i]
			return []any{v.ID, v.BibleID, v.BookID, v.ChapterID, v.Number, v.Abbreviation, v.Name,
				string(v.Content), nullable(v.PreviousID), nullable(v.NextID)}
		})
	})
}

// UpdateLinks sets the previous and next ids of one entity.
func (s *Store) UpdateLinks(ctx context.Context, level store.Level, id, previousID, nextID string) error {
	return s.call(ctx, "update_"+level.String()+"_links", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE `+level.Table()+` SET previous_id = ?, next_id = ? WHERE id = ?`,
			nullable(previousID), nullable(nextID), id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errors.NewNotFound(level.String(), id)
		}
		return nil
	})
}

const (
	bookColumns    = `id, bible_id, number, code, abbreviation, short_name, long_name, previous_id, next_id`
	chapterColumns = `id, bible_id, book_id, number, abbreviation, name, content, previous_id, next_id`
	verseColumns   = `id, bible_id, book_id, chapter_id, number, abbreviation, name, content, previous_id, next_id`

	// Link columns only, for the repair pass.
	chapterLinkColumns = `id, bible_id, book_id, number, abbreviation, name, '', previous_id, next_id`
	verseLinkColumns   = `id, bible_id, book_id, chapter_id, number, abbreviation, name, '', previous_id, next_id`
)

func scanBook(row scanner) (*store.Book, error) {
	var (
		b          store.Book
		prev, next sql.NullString
	)
	if err := row.Scan(&b.ID, &b.BibleID, &b.Number, &b.Code, &b.Abbreviation, &b.ShortName, &b.LongName,
		&prev, &next); err != nil {
		return nil, err
	}
	b.PreviousID, b.NextID = prev.String, next.String
	return &b, nil
}

func scanChapter(row scanner) (*store.Chapter, error) {
	var (
		c          store.Chapter
		content    string
		prev, next sql.NullString
	)
	if err := row.Scan(&c.ID, &c.BibleID, &c.BookID, &c.Number, &c.Abbreviation, &c.Name, &content,
		&prev, &next); err != nil {
		return nil, err
	}
	if content != "" {
		c.Content = json.RawMessage(content)
	}
	c.PreviousID, c.NextID = prev.String, next.String
	return &c, nil
}

func scanVerse(row scanner) (*store.Verse, error) {
	var (
		v          store.Verse
		content    string
		prev, next sql.NullString
	)
	if err := row.Scan(&v.ID, &v.BibleID, &v.BookID, &v.ChapterID, &v.Number, &v.Abbreviation, &v.Name,
		&content, &prev, &next); err != nil {
		return nil, err
	}
	if content != "" {
		v.Content = json.RawMessage(content)
	}
	v.PreviousID, v.NextID = prev.String, next.String
	return &v, nil
}

// queryOne runs a single-row query, mapping no rows to NotFoundError.
func queryOne[T any](ctx context.Context, db *sql.DB, scan func(scanner) (*T, error), resource, id, query string, args ...any) (*T, error) {
	out, err := scan(db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(resource, id)
	}
	return out, err
}

func queryAll[T any](ctx context.Context, db *sql.DB, scan func(scanner) (*T, error), query string, args ...any) ([]*T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// GetBook returns one book.
func (s *Store) GetBook(ctx context.Context, id string) (b *store.Book, err error) {
	err = s.call(ctx, "get_book", func() error {
		b, err = queryOne(ctx, s.db, scanBook, "book", id, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
		return err
	})
	return b, err
}

// GetChapter returns one chapter with its content.
func (s *Store) GetChapter(ctx context.Context, id string) (c *store.Chapter, err error) {
	err = s.call(ctx, "get_chapter", func() error {
		c, err = queryOne(ctx, s.db, scanChapter, "chapter", id, `SELECT `+chapterColumns+` FROM chapters WHERE id = ?`, id)
		return err
	})
	return c, err
}

// ListBooks returns the books of a translation in order.
func (s *Store) ListBooks(ctx context.Context, bibleID string) (books []*store.Book, err error) {
	err = s.call(ctx, "list_books", func() error {
		books, err = queryAll(ctx, s.db, scanBook, `SELECT `+bookColumns+` FROM books WHERE bible_id = ? ORDER BY number`, bibleID)
		return err
	})
	return books, err
}

// ListChapters returns the chapters of a book in order.
func (s *Store) ListChapters(ctx context.Context, bookID string) (chapters []*store.Chapter, err error) {
	err = s.call(ctx, "list_chapters", func() error {
		chapters, err = queryAll(ctx, s.db, scanChapter, `SELECT `+chapterColumns+` FROM chapters WHERE book_id = ? ORDER BY number`, bookID)
		return err
	})
	return chapters, err
}

// ListVerses returns the verses of a chapter in order.
func (s *Store) ListVerses(ctx context.Context, chapterID string) (verses []*store.Verse, err error) {
	err = s.call(ctx, "list_verses", func() error {
		verses, err = queryAll(ctx, s.db, scanVerse, `SELECT `+verseColumns+` FROM verses WHERE chapter_id = ? ORDER BY number`, chapterID)
		return err
	})
	return verses, err
}

func (s *Store) edgeChapter(ctx context.Context, op, bookID, order string) (c *store.Chapter, err error) {
	err = s.call(ctx, op, func() error {
		c, err = queryOne(ctx, s.db, scanChapter, "chapter", "book "+bookID,
			`SELECT `+chapterLinkColumns+` FROM chapters WHERE book_id = ? ORDER BY number `+order+` LIMIT 1`, bookID)
		return err
	})
	return c, err
}

func (s *Store) edgeVerse(ctx context.Context, op, chapterID, order string) (v *store.Verse, err error) {
	err = s.call(ctx, op, func() error {
		v, err = queryOne(ctx, s.db, scanVerse, "verse", "chapter "+chapterID,
			`SELECT `+verseLinkColumns+` FROM verses WHERE chapter_id = ? ORDER BY number `+order+` LIMIT 1`, chapterID)
		return err
	})
	return v, err
}

// FirstChapter returns the lowest-numbered chapter of a book, without content.
func (s *Store) FirstChapter(ctx context.Context, bookID string) (*store.Chapter, error) {
	return s.edgeChapter(ctx, "first_chapter", bookID, "ASC")
}

// LastChapter returns the highest-numbered chapter of a book, without content.
func (s *Store) LastChapter(ctx context.Context, bookID string) (*store.Chapter, error) {
	return s.edgeChapter(ctx, "last_chapter", bookID, "DESC")
}

// FirstVerse returns the lowest-numbered verse of a chapter, without content.
func (s *Store) FirstVerse(ctx context.Context, chapterID string) (*store.Verse, error) {
	return s.edgeVerse(ctx, "first_verse", chapterID, "ASC")
}

// LastVerse returns the highest-numbered verse of a chapter, without content.
func (s *Store) LastVerse(ctx context.Context, chapterID string) (*store.Verse, error) {
	return s.edgeVerse(ctx, "last_verse", chapterID, "DESC")
}

// ListUnlinkedChapters returns chapters missing a link.
func (s *Store) ListUnlinkedChapters(ctx context.Context, bibleID string) (chapters []*store.Chapter, err error) {
	err = s.call(ctx, "list_unlinked_chapters", func() error {
		chapters, err = queryAll(ctx, s.db, scanChapter, `SELECT `+chapterLinkColumns+` FROM chapters
			WHERE bible_id = ? AND (previous_id IS NULL OR next_id IS NULL) ORDER BY book_id, number`, bibleID)
		return err
	})
	return chapters, err
}

// ListUnlinkedVerses returns verses missing a link.
func (s *Store) ListUnlinkedVerses(ctx context.Context, bibleID string) (verses []*store.Verse, err error) {
	err = s.call(ctx, "list_unlinked_verses", func() error {
		verses, err = queryAll(ctx, s.db, scanVerse, `SELECT `+verseLinkColumns+` FROM verses
			WHERE bible_id = ? AND (previous_id IS NULL OR next_id IS NULL) ORDER BY chapter_id, number`, bibleID)
		return err
	})
	return verses, err
}

// AddChapterDocuments records embedding documents generated for a chapter.
func (s *Store) AddChapterDocuments(ctx context.Context, chapterID string, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	return s.call(ctx, "add_chapter_documents", func() error {
		return s.insertAll(ctx, `INSERT OR IGNORE INTO chapter_documents (chapter_id, document_id) VALUES (?, ?)`,
			len(documentIDs), func(i int) []any {
				return []any{chapterID, documentIDs[i]}
			})
	})
}

// ListChapterDocumentIDs returns every embedding document id recorded for the
// chapters of a translation.
func (s *Store) ListChapterDocumentIDs(ctx context.Context, bibleID string) (ids []string, err error) {
	err = s.call(ctx, "list_chapter_documents", func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT cd.document_id FROM chapter_documents cd
			JOIN chapters c ON c.id = cd.chapter_id WHERE c.bible_id = ? ORDER BY cd.document_id`, bibleID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}
