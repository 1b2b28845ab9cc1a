// Package importer loads a DBL bundle into a store.
//
// An import walks the states
//
//	validate_archive → resolve_publication → overwrite_existing →
//	create_bible → (parse_book → persist_chapters → persist_verses → embed)* →
//	link_repair → done
//
// and stops at the first error. Each state is logged with the import id.
package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spirit-led-software/theaistudybible-sub004/core/content"
	"github.com/spirit-led-software/theaistudybible-sub004/core/errors"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/chunk"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/formats/dbl"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/formats/usx"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/linker"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/logging"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/store"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/vector"
)

// Import states, as logged.
const (
	StageValidateArchive    = "validate_archive"
	StageResolvePublication = "resolve_publication"
	StageOverwriteExisting  = "overwrite_existing"
	StageCreateBible        = "create_bible"
	StageParseBook          = "parse_book"
	StagePersistChapters    = "persist_chapters"
	StagePersistVerses      = "persist_verses"
	StageLinkRepair         = "link_repair"
	StageDone               = "done"
)

// DefaultVerseBatchSize is the number of chapters whose verses are written
// concurrently.
const DefaultVerseBatchSize = 5

// Options control one import.
type Options struct {
	// PublicationID selects the publication. Empty picks the default one, or
	// the first one declared.
	PublicationID string

	// Overwrite replaces an existing translation with the same abbreviation.
	Overwrite bool

	// GenerateEmbeddings chunks every chapter and stores the embedded
	// documents.
	GenerateEmbeddings bool

	// CleanupOnFailure deletes the partially written translation and its
	// documents when the import fails after the bible row was created.
	CleanupOnFailure bool
}

// Result summarizes a finished import.
type Result struct {
	ImportID      string
	BibleID       string
	Abbreviation  string
	PublicationID string
	Books         int
	Chapters      int
	Verses        int
	Documents     int
	Replaced      string // id of the overwritten translation, if any
	Repair        *linker.RepairStats
	Duration      time.Duration
}

// Importer runs imports against a store and, when embeddings are requested,
// a vector store.
type Importer struct {
	Store store.Store

	// Vectors and Embedder are needed only for imports with
	// GenerateEmbeddings, and to clean up documents on overwrite.
	Vectors  vector.Store
	Embedder vector.Embedder
	Chunker  *chunk.Generator

	VerseBatchSize int
	LinkBatchSize  int

	// NewID generates entity and content ids. Defaults to uuid.NewString.
	NewID func() string
}

// New returns an Importer with default batch sizes.
func New(s store.Store, vectors vector.Store, embedder vector.Embedder, chunker *chunk.Generator) *Importer {
	return &Importer{
		Store:          s,
		Vectors:        vectors,
		Embedder:       embedder,
		Chunker:        chunker,
		VerseBatchSize: DefaultVerseBatchSize,
		LinkBatchSize:  linker.DefaultBatchSize,
	}
}

// Import loads a bundle. The bundle may be a zip archive or an xz-compressed
// zip archive.
func (im *Importer) Import(ctx context.Context, bundle []byte, opts Options) (*Result, error) {
	importID := uuid.NewString()
	ctx = logging.WithImportID(ctx, importID)

	r := &run{
		im:     im,
		opts:   opts,
		start:  time.Now(),
		result: &Result{ImportID: importID},
		newID:  im.NewID,
		stage:  StageValidateArchive,
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	if err := r.execute(ctx, bundle); err != nil {
		logging.ImportFailed(ctx, r.stage, err)
		return nil, err
	}
	return r.result, nil
}

// run is the state of one import.
type run struct {
	im     *Importer
	opts   Options
	start  time.Time
	result *Result
	newID  func() string
	stage  string

	bundle *dbl.Bundle
	pub    *dbl.Publication
	bible  *store.Bible
}

// book is a publication entry resolved against the bundle.
type book struct {
	row *store.Book
	src string
}

func (r *run) enter(ctx context.Context, stage string, args ...any) {
	r.stage = stage
	logging.ImportStage(ctx, stage, args...)
}

func (r *run) execute(ctx context.Context, data []byte) (err error) {
	r.enter(ctx, StageValidateArchive, "bytes", len(data))
	if r.opts.GenerateEmbeddings && (r.im.Vectors == nil || r.im.Embedder == nil || r.im.Chunker == nil) {
		return errors.NewValidation("embeddings", "a vector store, embedder and chunker are required")
	}
	r.bundle, err = dbl.Open(data)
	if err != nil {
		return err
	}
	md := r.bundle.Metadata
	abbreviation := strings.TrimSpace(md.Identification.Abbreviation)

	r.enter(ctx, StageResolvePublication, "abbreviation", abbreviation, "publication_id", r.opts.PublicationID)
	r.pub, err = md.Publication(r.opts.PublicationID)
	if err != nil {
		return err
	}
	books, err := r.resolveBooks()
	if err != nil {
		return err
	}

	release, ok := abbreviationLocks.tryAcquire(abbreviation)
	if !ok {
		return &errors.ConflictError{Resource: "import", Key: abbreviation, Reason: "another import of this translation is running"}
	}
	defer release()

	r.enter(ctx, StageOverwriteExisting, "overwrite", r.opts.Overwrite)
	existing, err := r.im.Store.GetBibleByAbbreviation(ctx, abbreviation)
	switch {
	case err == nil:
		if !r.opts.Overwrite {
			return errors.NewConflict("bible", abbreviation, existing.ID)
		}
		if err := r.overwrite(ctx, existing); err != nil {
			return err
		}
		r.result.Replaced = existing.ID
	case errors.Is(err, errors.ErrNotFound):
	default:
		return err
	}

	r.enter(ctx, StageCreateBible)
	bible := r.newBible(abbreviation)
	if err := r.im.Store.CreateBible(ctx, bible); err != nil {
		return err
	}
	r.bible = bible
	r.result.BibleID = bible.ID
	r.result.Abbreviation = bible.Abbreviation
	r.result.PublicationID = r.pub.ID
	defer func() {
		if err != nil && r.opts.CleanupOnFailure {
			r.cleanup(ctx)
		}
	}()

	rows := make([]*store.Book, len(books))
	for i, b := range books {
		b.row.BibleID = bible.ID
		rows[i] = b.row
	}
	linker.Chain(rows)
	if err := r.im.Store.CreateBooks(ctx, rows); err != nil {
		return err
	}
	r.result.Books = len(rows)

	for _, b := range books {
		if err := r.importBook(ctx, b); err != nil {
			return err
		}
	}

	r.enter(ctx, StageLinkRepair)
	l := &linker.Linker{Store: r.im.Store, BatchSize: r.im.LinkBatchSize}
	r.result.Repair, err = l.Repair(ctx, bible.ID)
	if err != nil {
		return err
	}

	r.result.Duration = time.Since(r.start)
	r.enter(ctx, StageDone,
		"bible_id", bible.ID,
		"books", r.result.Books,
		"chapters", r.result.Chapters,
		"verses", r.result.Verses,
		"documents", r.result.Documents,
		"duration_ms", r.result.Duration.Milliseconds(),
	)
	return nil
}

// resolveBooks maps the publication structure to book rows, numbered from 1
// in declaration order.
func (r *run) resolveBooks() ([]book, error) {
	md := r.bundle.Metadata
	if len(r.pub.Structure) == 0 {
		return nil, errors.NewNotFound("publication content", r.pub.ID)
	}
	books := make([]book, 0, len(r.pub.Structure))
	for i, c := range r.pub.Structure {
		name, err := md.Name(c.Name)
		if err != nil {
			return nil, err
		}
		if !r.bundle.Has(c.Src) {
			return nil, errors.NewNotFound("book document", c.Src)
		}
		code := c.BookCode()
		if code == "" {
			code = strings.ToUpper(name.Abbr)
		}
		books = append(books, book{
			src: c.Src,
			row: &store.Book{
				ID:           r.newID(),
				Number:       i + 1,
				Code:         code,
				Abbreviation: name.Abbr,
				ShortName:    name.Short,
				LongName:     name.Long,
			},
		})
	}
	return books, nil
}

func (r *run) newBible(abbreviation string) *store.Bible {
	id := r.bundle.Metadata.Identification
	local := strings.TrimSpace(id.AbbreviationLocal)
	if local == "" {
		local = abbreviation
	}
	return &store.Bible{
		ID:                r.newID(),
		Abbreviation:      abbreviation,
		AbbreviationLocal: local,
		Name:              strings.TrimSpace(id.Name),
		NameLocal:         strings.TrimSpace(id.NameLocal),
		Description:       strings.TrimSpace(id.Description),
		DescriptionLocal:  strings.TrimSpace(id.DescriptionLocal),
		LanguageISO:       r.bundle.Metadata.Language.ISO,
		LanguageScript:    r.bundle.Metadata.Language.Script,
		Countries:         r.bundle.Metadata.CountryCodes(),
		Copyright:         r.bundle.Metadata.Copyright.Text(),
		PublicationID:     r.pub.ID,
		SourceHash:        r.bundle.SourceHash,
		CreatedAt:         time.Now().UTC(),
	}
}

// overwrite deletes an existing translation. Its embedding documents are
// removed on a best-effort basis at the same time as the rows.
func (r *run) overwrite(ctx context.Context, existing *store.Bible) error {
	docIDs, err := r.im.Store.ListChapterDocumentIDs(ctx, existing.ID)
	if err != nil {
		return err
	}
	logging.InfoContext(ctx, "replacing translation", "bible_id", existing.ID, "documents", len(docIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.im.Store.DeleteBible(gctx, existing.ID)
	})
	g.Go(func() error {
		r.deleteDocuments(gctx, docIDs)
		return nil
	})
	return g.Wait()
}

func (r *run) deleteDocuments(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if r.im.Vectors == nil {
		logging.WarnContext(ctx, "no vector store configured, embedding documents left behind", "documents", len(ids))
		return
	}
	if err := r.im.Vectors.DeleteDocuments(ctx, ids); err != nil {
		logging.WarnContext(ctx, "deleting embedding documents failed", "documents", len(ids), "error", err)
	}
}

// cleanup removes what a failed import wrote. It runs detached from ctx so a
// cancelled import still cleans up.
func (r *run) cleanup(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	logging.WarnContext(ctx, "cleaning up failed import", "bible_id", r.bible.ID)

	docIDs, err := r.im.Store.ListChapterDocumentIDs(ctx, r.bible.ID)
	if err != nil {
		logging.WarnContext(ctx, "listing documents for cleanup failed", "bible_id", r.bible.ID, "error", err)
	}
	r.deleteDocuments(ctx, docIDs)
	if err := r.im.Store.DeleteBible(ctx, r.bible.ID); err != nil {
		logging.ErrorContext(ctx, "cleanup failed", "bible_id", r.bible.ID, "error", err)
	}
}

// importBook parses one book and writes its chapters and verses.
func (r *run) importBook(ctx context.Context, b book) error {
	r.enter(ctx, StageParseBook, "book", b.row.Code, "src", b.src)
	data, err := r.bundle.ReadFile(b.src)
	if err != nil {
		return err
	}
	p := &usx.Parser{NewID: r.newID, Source: b.src}
	parsed, err := p.Parse(data)
	if err != nil {
		return err
	}

	r.enter(ctx, StagePersistChapters, "book", b.row.Code, "chapters", len(parsed))
	numbers := parsed.Numbers()
	chapters := make([]*store.Chapter, len(numbers))
	for i, num := range numbers {
		pc := parsed[num]
		raw, err := content.Marshal(pc.Contents)
		if err != nil {
			return errors.Wrapf(err, "encoding %s %d", b.row.Code, num)
		}
		chapters[i] = &store.Chapter{
			ID:           pc.ID,
			BibleID:      r.bible.ID,
			BookID:       b.row.ID,
			Number:       num,
			Abbreviation: fmt.Sprintf("%s.%d", b.row.Code, num),
			Name:         fmt.Sprintf("%s %d", b.row.ShortName, num),
			Content:      raw,
		}
	}
	linker.Chain(chapters)
	if err := r.im.Store.CreateChapters(ctx, chapters); err != nil {
		return err
	}
	r.result.Chapters += len(chapters)

	r.enter(ctx, StagePersistVerses, "book", b.row.Code)
	size := r.im.VerseBatchSize
	if size <= 0 {
		size = DefaultVerseBatchSize
	}
	for start := 0; start < len(chapters); start += size {
		batch := chapters[start:min(start+size, len(chapters))]
		verses := make([]int, len(batch))
		docs := make([]int, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, ch := range batch {
			g.Go(func() error {
				var err error
				verses[i], docs[i], err = r.importChapter(gctx, b.row, ch, parsed[ch.Number])
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for i := range batch {
			r.result.Verses += verses[i]
			r.result.Documents += docs[i]
		}
	}
	return nil
}

// importChapter writes the verses of one chapter and, if requested, its
// embedding documents. It returns the number of each written.
func (r *run) importChapter(ctx context.Context, bk *store.Book, ch *store.Chapter, parsed *usx.Chapter) (int, int, error) {
	numbers := parsed.VerseNumbers()
	rows := make([]*store.Verse, len(numbers))
	for i, num := range numbers {
		pv := parsed.Verses[num]
		raw, err := content.Marshal(pv.Contents)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "encoding %s %d:%d", bk.Code, ch.Number, num)
		}
		rows[i] = &store.Verse{
			ID:           pv.ID,
			BibleID:      r.bible.ID,
			BookID:       bk.ID,
			ChapterID:    ch.ID,
			Number:       num,
			Abbreviation: fmt.Sprintf("%s.%d.%d", bk.Code, ch.Number, num),
			Name:         fmt.Sprintf("%s %d:%d", bk.ShortName, ch.Number, num),
			Content:      raw,
		}
	}
	linker.Chain(rows)
	if err := r.im.Store.CreateVerses(ctx, rows); err != nil {
		return 0, 0, err
	}
	if !r.opts.GenerateEmbeddings || len(numbers) == 0 {
		return len(rows), 0, nil
	}

	verses := make([]chunk.Verse, len(numbers))
	for i, num := range numbers {
		pv := parsed.Verses[num]
		verses[i] = chunk.Verse{ID: pv.ID, Number: num, Text: content.PlainText(pv.Contents...)}
	}
	src := chunk.Source{
		BibleAbbreviation:      r.bible.Abbreviation,
		BibleAbbreviationLocal: r.bible.AbbreviationLocal,
		BookCode:               bk.Code,
		BookShortName:          bk.ShortName,
		ChapterID:              ch.ID,
		ChapterNumber:          ch.Number,
	}
	n, err := r.embed(ctx, ch.ID, r.im.Chunker.Generate(src, verses))
	if err != nil {
		return 0, 0, err
	}
	return len(rows), n, nil
}

// embed stores chunk documents with their embeddings and records them
// against the chapter.
func (r *run) embed(ctx context.Context, chapterID string, chunks []chunk.Document) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := r.im.Embedder.Embed(ctx, texts)
	if err != nil {
		return 0, errors.NewUpstream("embedder", "embed", err)
	}
	if len(vecs) != len(chunks) {
		return 0, errors.NewUpstream("embedder", "embed", fmt.Errorf("got %d embeddings for %d texts", len(vecs), len(chunks)))
	}

	docs := make([]vector.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vector.Document{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  c.Metadata.Map(),
			Embedding: vecs[i],
		}
	}
	ids, err := r.im.Vectors.AddDocuments(ctx, docs)
	if err != nil {
		return 0, err
	}
	if err := r.im.Store.AddChapterDocuments(ctx, chapterID, ids); err != nil {
		return 0, err
	}
	logging.DebugContext(ctx, "chapter embedded", "chapter_id", chapterID, "documents", len(ids))
	return len(ids), nil
}
