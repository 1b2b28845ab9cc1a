// Package linker maintains the translation-wide doubly linked lists of books,
// chapters and verses.
//
// Links inside one book are assigned in memory with Chain before the rows are
// written. Seams between books (and so between the last chapter of one book
// and the first of the next) are filled afterwards by Repair, which reads the
// persisted rows.
package linker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spirit-led-software/theaistudybible-sub004/core/errors"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/logging"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/store"
)

// DefaultBatchSize bounds concurrent link updates in Repair.
const DefaultBatchSize = 10

// Linkable is an entity carrying previous/next ids.
type Linkable interface {
	LinkID() string
	SetLinks(previousID, nextID string)
}

// Chain links items in slice order. The first item gets no previous id and
// the last no next id.
func Chain[T Linkable](items []T) {
	for i, item := range items {
		var prev, next string
		if i > 0 {
			prev = items[i-1].LinkID()
		}
		if i < len(items)-1 {
			next = items[i+1].LinkID()
		}
		item.SetLinks(prev, next)
	}
}

// RepairStats counts the links written by Repair.
type RepairStats struct {
	ChaptersExamined int
	ChaptersUpdated  int
	VersesExamined   int
	VersesUpdated    int
	Duration         time.Duration
}

// Linker runs the repair pass against a store.
type Linker struct {
	Store     store.Store
	BatchSize int
}

// New returns a Linker using the default batch size.
func New(s store.Store) *Linker {
	return &Linker{Store: s, BatchSize: DefaultBatchSize}
}

func (l *Linker) batchSize() int {
	if l.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return l.BatchSize
}

// Repair fills every missing chapter and verse link of a translation that has
// a neighbour across a book or chapter boundary. Chapters go first because
// the verse seams are found through chapter links. Running it again changes
// nothing.
func (l *Linker) Repair(ctx context.Context, bibleID string) (*RepairStats, error) {
	start := time.Now()
	stats := &RepairStats{}

	chapters, err := l.Store.ListUnlinkedChapters(ctx, bibleID)
	if err != nil {
		return nil, err
	}
	stats.ChaptersExamined = len(chapters)
	stats.ChaptersUpdated, err = runBatches(ctx, chapters, l.batchSize(), l.repairChapter)
	if err != nil {
		return nil, err
	}

	verses, err := l.Store.ListUnlinkedVerses(ctx, bibleID)
	if err != nil {
		return nil, err
	}
	stats.VersesExamined = len(verses)
	stats.VersesUpdated, err = runBatches(ctx, verses, l.batchSize(), l.repairVerse)
	if err != nil {
		return nil, err
	}

	stats.Duration = time.Since(start)
	logging.InfoContext(ctx, "links repaired",
		"bible_id", bibleID,
		"chapters_examined", stats.ChaptersExamined,
		"chapters_updated", stats.ChaptersUpdated,
		"verses_examined", stats.VersesExamined,
		"verses_updated", stats.VersesUpdated,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

// runBatches applies fn to items, at most size at a time. A batch must finish
// before the next starts. It returns how many calls reported a change.
func runBatches[T any](ctx context.Context, items []T, size int, fn func(context.Context, T) (bool, error)) (int, error) {
	updated := 0
	for startIdx := 0; startIdx < len(items); startIdx += size {
		end := min(startIdx+size, len(items))
		batch := items[startIdx:end]
		changed := make([]bool, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, item := range batch {
			g.Go(func() error {
				ok, err := fn(gctx, item)
				changed[i] = ok
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return updated, err
		}
		for _, ok := range changed {
			if ok {
				updated++
			}
		}
	}
	return updated, nil
}

// repairChapter links a chapter to the last chapter of the previous book and
// the first chapter of the next book where its own links are missing.
func (l *Linker) repairChapter(ctx context.Context, c *store.Chapter) (bool, error) {
	prev, next := c.PreviousID, c.NextID
	if prev != "" && next != "" {
		return false, nil
	}
	book, err := l.Store.GetBook(ctx, c.BookID)
	if err != nil {
		return false, err
	}

	if prev == "" && book.PreviousID != "" {
		edge, err := l.Store.LastChapter(ctx, book.PreviousID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return false, err
		}
		if edge != nil {
			prev = edge.ID
		}
	}
	if next == "" && book.NextID != "" {
		edge, err := l.Store.FirstChapter(ctx, book.NextID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return false, err
		}
		if edge != nil {
			next = edge.ID
		}
	}

	if prev == c.PreviousID && next == c.NextID {
		return false, nil
	}
	if err := l.Store.UpdateLinks(ctx, store.LevelChapter, c.ID, prev, next); err != nil {
		return false, err
	}
	return true, nil
}

// repairVerse links a verse to the last verse of the previous chapter and
// the first verse of the next chapter where its own links are missing.
func (l *Linker) repairVerse(ctx context.Context, v *store.Verse) (bool, error) {
	prev, next := v.PreviousID, v.NextID
	if prev != "" && next != "" {
		return false, nil
	}
	chapter, err := l.Store.GetChapter(ctx, v.ChapterID)
	if err != nil {
		return false, err
	}

	if prev == "" && chapter.PreviousID != "" {
		edge, err := l.Store.LastVerse(ctx, chapter.PreviousID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return false, err
		}
		if edge != nil {
			prev = edge.ID
		}
	}
	if next == "" && chapter.NextID != "" {
		edge, err := l.Store.FirstVerse(ctx, chapter.NextID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return false, err
		}
		if edge != nil {
			next = edge.ID
		}
	}

	if prev == v.PreviousID && next == v.NextID {
		return false, nil
	}
	if err := l.Store.UpdateLinks(ctx, store.LevelVerse, v.ID, prev, next); err != nil {
		return false, err
	}
	return true, nil
}
