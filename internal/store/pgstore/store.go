// Package pgstore implements store.Store on PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spirit-led-software/theaistudybible-sub004/core/errors"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/logging"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/store"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const service = "postgres"

// Store is a store.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Connect creates a pool for databaseURL, checks the connection and
// applies the schema.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*Store, error) {
	if databaseURL == "" {
		return nil, errors.NewValidation("database_url", "is required")
	}
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.NewValidation("database_url", err.Error())
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.NewUpstream(service, "connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewUpstream(service, "ping", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logging.InfoContext(ctx, "postgres connected", "host", config.ConnConfig.Host)
	return s, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return errors.NewUpstream(service, "acquire migration connection", err)
	}
	defer conn.Release()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := conn.Exec(ctx, string(data)); err != nil {
			return errors.NewUpstream(service, "migrate "+entry.Name(), err)
		}
	}
	return nil
}

func (s *Store) call(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	logging.StoreCall(ctx, service, op, time.Since(start))
	if err == nil || errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrAlreadyExists) {
		return err
	}
	return errors.NewUpstream(service, op, err)
}

func nullable(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
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
		if b.CreatedAt.IsZero() {
			b.CreatedAt = time.Now().UTC()
		}
		countries := b.Countries
		if countries == nil {
			countries = []string{}
		}
		_, err := s.pool.Exec(ctx, `INSERT INTO bibles (id, abbreviation, abbreviation_local, name, name_local,
			description, description_local, language_iso, language_script, countries, copyright, publication_id,
			source_hash, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			b.ID, b.Abbreviation, b.AbbreviationLocal, b.Name, b.NameLocal, b.Description, b.DescriptionLocal,
			b.LanguageISO, b.LanguageScript, countries, b.Copyright, b.PublicationID, b.SourceHash, b.CreatedAt)
		return err
	})
}

// GetBibleByAbbreviation returns the translation with the given abbreviation.
func (s *Store) GetBibleByAbbreviation(ctx context.Context, abbreviation string) (b *store.Bible, err error) {
	err = s.call(ctx, "get_bible", func() error {
		b, err = s.getBible(ctx, abbreviation)
		return err
	})
	return b, err
}

func (s *Store) getBible(ctx context.Context, abbreviation string) (*store.Bible, error) {
	var b store.Bible
	err := s.pool.QueryRow(ctx, `SELECT id, abbreviation, abbreviation_local, name, name_local, description,
		description_local, language_iso, language_script, countries, copyright, publication_id, source_hash,
		created_at FROM bibles WHERE abbreviation = $1`, abbreviation).Scan(
		&b.ID, &b.Abbreviation, &b.AbbreviationLocal, &b.Name, &b.NameLocal, &b.Description,
		&b.DescriptionLocal, &b.LanguageISO, &b.LanguageScript, &b.Countries, &b.Copyright, &b.PublicationID,
		&b.SourceHash, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFound("bible", abbreviation)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBible removes a translation and everything under it in one
// transaction.
func (s *Store) DeleteBible(ctx context.Context, id string) error {
	return s.call(ctx, "delete_bible", func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		stmts := []string{
			`DELETE FROM chapter_documents WHERE chapter_id IN (SELECT id FROM chapters WHERE bible_id = $1)`,
			`DELETE FROM verses WHERE bible_id = $1`,
			`DELETE FROM chapters WHERE bible_id = $1`,
			`DELETE FROM books WHERE bible_id = $1`,
		}
		for _, q := range stmts {
			if _, err := tx.Exec(ctx, q, id); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM bibles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errors.NewNotFound("bible", id)
		}
		return tx.Commit(ctx)
	})
}

// insertAll queues one insert per row and sends them as a single batch in a
// transaction.
func (s *Store) insertAll(ctx context.Context, query string, n int, args func(i int) []any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i := 0; i < n; i++ {
		batch.Queue(query, args(i)...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateBooks inserts books.
func (s *Store) CreateBooks(ctx context.Context, books []*store.Book) error {
	if len(books) == 0 {
		return nil
	}
	return s.call(ctx, "create_books", func() error {
		return s.insertAll(ctx, `INSERT INTO books (id, bible_id, number, code, abbreviation, short_name, long_name,
			previous_id, next_id) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, len(books), func(i int) []any {
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
			previous_id, next_id) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, len(chapters), func(i int) []any {
			c := chapters[i]
			return []any{c.ID, c.BibleID, c.BookID, c.Number, c.Abbreviation, c.Name, c.Content,
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
			content, previous_id, next_id) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, len(verses), func(i int) []any {
			v := verses[i]
			return []any{v.ID, v.BibleID, v.BookID, v.ChapterID, v.Number, v.Abbreviation, v.Name,
				v.Content, nullable(v.PreviousID), nullable(v.NextID)}
		})
	})
}

// UpdateLinks sets the previous and next ids of one entity.
func (s *Store) UpdateLinks(ctx context.Context, level store.Level, id, previousID, nextID string) error {
	return s.call(ctx, "update_"+level.String()+"_links", func() error {
		tag, err := s.pool.Exec(ctx,
			`UPDATE `+level.Table()+` SET previous_id = $1, next_id = $2 WHERE id = $3`,
			nullable(previousID), nullable(nextID), id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errors.NewNotFound(level.String(), id)
		}
		return nil
	})
}

const (
	bookColumns    = `id, bible_id, number, code, abbreviation, short_name, long_name, previous_id, next_id`
	chapterColumns = `id, bible_id, book_id, number, abbreviation, name, content, previous_id, next_id`
	verseColumns   = `id, bible_id, book_id, chapter_id, number, abbreviation, name, content, previous_id, next_id`

	chapterLinkColumns = `id, bible_id, book_id, number, abbreviation, name, NULL::jsonb, previous_id, next_id`
	verseLinkColumns   = `id, bible_id, book_id, chapter_id, number, abbreviation, name, NULL::jsonb, previous_id, next_id`
)

func scanBook(row pgx.Row) (*store.Book, error) {
	var (
		b          store.Book
		prev, next *string
	)
	if err := row.Scan(&b.ID, &b.BibleID, &b.Number, &b.Code, &b.Abbreviation, &b.ShortName, &b.LongName,
		&prev, &next); err != nil {
		return nil, err
	}
	b.PreviousID, b.NextID = deref(prev), deref(next)
	return &b, nil
}

func scanChapter(row pgx.Row) (*store.Chapter, error) {
	var (
		c          store.Chapter
		content    []byte
		prev, next *string
	)
	if err := row.Scan(&c.ID, &c.BibleID, &c.BookID, &c.Number, &c.Abbreviation, &c.Name, &content,
		&prev, &next); err != nil {
		return nil, err
	}
	if content != nil {
		c.Content = json.RawMessage(content)
	}
	c.PreviousID, c.NextID = deref(prev), deref(next)
	return &c, nil
}

func scanVerse(row pgx.Row) (*store.Verse, error) {
	var (
		v          store.Verse
		content    []byte
		prev, next *string
	)
	if err := row.Scan(&v.ID, &v.BibleID, &v.BookID, &v.ChapterID, &v.Number, &v.Abbreviation, &v.Name,
		&content, &prev, &next); err != nil {
		return nil, err
	}
	if content != nil {
		v.Content = json.RawMessage(content)
	}
	v.PreviousID, v.NextID = deref(prev), deref(next)
	return &v, nil
}

func queryOne[T any](ctx context.Context, pool *pgxpool.Pool, scan func(pgx.Row) (*T, error), resource, id, query string, args ...any) (*T, error) {
	out, err := scan(pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NewNotFound(resource, id)
	}
	return out, err
}

func queryAll[T any](ctx context.Context, pool *pgxpool.Pool, scan func(pgx.Row) (*T, error), query string, args ...any) ([]*T, error) {
	rows, err := pool.Query(ctx, query, args...)
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
		b, err = queryOne(ctx, s.pool, scanBook, "book", id, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
		return err
	})
	return b, err
}

// GetChapter returns one chapter with its content.
func (s *Store) GetChapter(ctx context.Context, id string) (c *store.Chapter, err error) {
	err = s.call(ctx, "get_chapter", func() error {
		c, err = queryOne(ctx, s.pool, scanChapter, "chapter", id, `SELECT `+chapterColumns+` FROM chapters WHERE id = $1`, id)
		return err
	})
	return c, err
}

// ListBooks returns the books of a translation in order.
func (s *Store) ListBooks(ctx context.Context, bibleID string) (books []*store.Book, err error) {
	err = s.call(ctx, "list_books", func() error {
		books, err = queryAll(ctx, s.pool, scanBook, `SELECT `+bookColumns+` FROM books WHERE bible_id = $1 ORDER BY number`, bibleID)
		return err
	})
	return books, err
}

// ListChapters returns the chapters of a book in order.
func (s *Store) ListChapters(ctx context.Context, bookID string) (chapters []*store.Chapter, err error) {
	err = s.call(ctx, "list_chapters", func() error {
		chapters, err = queryAll(ctx, s.pool, scanChapter, `SELECT `+chapterColumns+` FROM chapters WHERE book_id = $1 ORDER BY number`, bookID)
		return err
	})
	return chapters, err
}

// ListVerses returns the verses of a chapter in order.
func (s *Store) ListVerses(ctx context.Context, chapterID string) (verses []*store.Verse, err error) {
	err = s.call(ctx, "list_verses", func() error {
		verses, err = queryAll(ctx, s.pool, scanVerse, `SELECT `+verseColumns+` FROM verses WHERE chapter_id = $1 ORDER BY number`, chapterID)
		return err
	})
	return verses, err
}

func (s *Store) edgeChapter(ctx context.Context, op, bookID, order string) (c *store.Chapter, err error) {
	err = s.call(ctx, op, func() error {
		c, err = queryOne(ctx, s.pool, scanChapter, "chapter", "book "+bookID,
			`SELECT `+chapterLinkColumns+` FROM chapters WHERE book_id = $1 ORDER BY number `+order+` LIMIT 1`, bookID)
		return err
	})
	return c, err
}

func (s *Store) edgeVerse(ctx context.Context, op, chapterID, order string) (v *store.Verse, err error) {
	err = s.call(ctx, op, func() error {
		v, err = queryOne(ctx, s.pool, scanVerse, "verse", "chapter "+chapterID,
			`SELECT `+verseLinkColumns+` FROM verses WHERE chapter_id = $1 ORDER BY number `+order+` LIMIT 1`, chapterID)
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
		chapters, err = queryAll(ctx, s.pool, scanChapter, `SELECT `+chapterLinkColumns+` FROM chapters
			WHERE bible_id = $1 AND (previous_id IS NULL OR next_id IS NULL) ORDER BY book_id, number`, bibleID)
		return err
	})
	return chapters, err
}

// ListUnlinkedVerses returns verses missing a link.
func (s *Store) ListUnlinkedVerses(ctx context.Context, bibleID string) (verses []*store.Verse, err error) {
	err = s.call(ctx, "list_unlinked_verses", func() error {
		verses, err = queryAll(ctx, s.pool, scanVerse, `SELECT `+verseLinkColumns+` FROM verses
			WHERE bible_id = $1 AND (previous_id IS NULL OR next_id IS NULL) ORDER BY chapter_id, number`, bibleID)
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
		return s.insertAll(ctx, `INSERT INTO chapter_documents (chapter_id, document_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, len(documentIDs), func(i int) []any {
			return []any{chapterID, documentIDs[i]}
		})
	})
}

// ListChapterDocumentIDs returns every embedding document id recorded for the
// chapters of a translation.
func (s *Store) ListChapterDocumentIDs(ctx context.Context, bibleID string) (ids []string, err error) {
	err = s.call(ctx, "list_chapter_documents", func() error {
		rows, err := s.pool.Query(ctx, `SELECT cd.document_id FROM chapter_documents cd
			JOIN chapters c ON c.id = cd.chapter_id WHERE c.bible_id = $1 ORDER BY cd.document_id`, bibleID)
		if err != nil {
			return err
		}
		ids, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	return ids, err
}
