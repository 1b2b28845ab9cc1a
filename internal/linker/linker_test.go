package linker

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/spirit-led-software/theaistudybible-sub004/core/sqlite"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/store"
	"github.com/spirit-led-software/theaistudybible-sub004/internal/store/sqlitestore"
)

func TestChain(t *testing.T) {
	books := []*store.Book{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	Chain(books)

	want := [][2]string{{"", "b"}, {"a", "c"}, {"b", ""}}
	for i, b := range books {
		if b.PreviousID != want[i][0] || b.NextID != want[i][1] {
			t.Errorf("book %s links = %q/%q, want %q/%q", b.ID, b.PreviousID, b.NextID, want[i][0], want[i][1])
		}
	}

	single := []*store.Verse{{ID: "only", PreviousID: "stale", NextID: "stale"}}
	Chain(single)
	if single[0].PreviousID != "" || single[0].NextID != "" {
		t.Errorf("single verse links = %q/%q", single[0].PreviousID, single[0].NextID)
	}

	Chain([]*store.Chapter{})
}

// seedTranslation writes books × chapters × verses the way the importer
// does: books chained together, chapters and verses chained within their
// book and chapter only.
func seedTranslation(t *testing.T, s store.Store, books, chapters, verses int) {
	t.Helper()
	ctx := context.Background()

	if err := s.CreateBible(ctx, &store.Bible{ID: "bible", Abbreviation: "TST"}); err != nil {
		t.Fatal(err)
	}
	var bookRows []*store.Book
	for b := 1; b <= books; b++ {
		bookRows = append(bookRows, &store.Book{ID: fmt.Sprintf("b%d", b), BibleID: "bible", Number: b, Code: fmt.Sprintf("B%d", b)})
	}
	Chain(bookRows)
	if err := s.CreateBooks(ctx, bookRows); err != nil {
		t.Fatal(err)
	}

	for _, book := range bookRows {
		var chapterRows []*store.Chapter
		for c := 1; c <= chapters; c++ {
			chapterRows = append(chapterRows, &store.Chapter{
				ID: fmt.Sprintf("%s.c%d", book.ID, c), BibleID: "bible", BookID: book.ID, Number: c, Content: json.RawMessage(`[]`),
			})
		}
		Chain(chapterRows)
		if err := s.CreateChapters(ctx, chapterRows); err != nil {
			t.Fatal(err)
		}
		for _, ch := range chapterRows {
			var verseRows []*store.Verse
			for v := 1; v <= verses; v++ {
				verseRows = append(verseRows, &store.Verse{
					ID: fmt.Sprintf("%s.v%d", ch.ID, v), BibleID: "bible", BookID: book.ID, ChapterID: ch.ID,
					Number: v, Content: json.RawMessage(`[]`),
				})
			}
			Chain(verseRows)
			if err := s.CreateVerses(ctx, verseRows); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func openStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(sqlite.MemoryPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// walk follows next links from the head of each level and returns the ids in
// list order, checking previous links on the way.
func walkVerses(t *testing.T, s store.Store) []string {
	t.Helper()
	ctx := context.Background()

	all := map[string]*store.Verse{}
	books, _ := s.ListBooks(ctx, "bible")
	for _, b := range books {
		chapters, _ := s.ListChapters(ctx, b.ID)
		for _, c := range chapters {
			verses, _ := s.ListVerses(ctx, c.ID)
			for _, v := range verses {
				all[v.ID] = v
			}
		}
	}

	var head *store.Verse
	heads := 0
	for _, v := range all {
		if v.PreviousID == "" {
			head = v
			heads++
		}
	}
	if heads != 1 {
		t.Fatalf("found %d verses without a previous link, want 1", heads)
	}

	var order []string
	prev := ""
	for v := head; v != nil; v = all[v.NextID] {
		if v.PreviousID != prev {
			t.Fatalf("verse %s previous = %q, want %q", v.ID, v.PreviousID, prev)
		}
		order = append(order, v.ID)
		prev = v.ID
		if len(order) > len(all) {
			t.Fatal("verse list has a cycle")
		}
	}
	if len(order) != len(all) {
		t.Fatalf("walked %d verses, want %d", len(order), len(all))
	}
	return order
}

func TestRepairStitchesBooks(t *testing.T) {
	s := openStore(t)
	seedTranslation(t, s, 2, 1, 3)
	ctx := context.Background()

	stats, err := New(s).Repair(ctx, "bible")
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if stats.ChaptersExamined != 2 || stats.ChaptersUpdated != 2 {
		t.Errorf("chapter stats = %+v", stats)
	}

	c1, _ := s.GetChapter(ctx, "b1.c1")
	c2, _ := s.GetChapter(ctx, "b2.c1")
	if c1.NextID != c2.ID || c2.PreviousID != c1.ID {
		t.Errorf("chapter links c1.next=%q c2.prev=%q", c1.NextID, c2.PreviousID)
	}
	if c1.PreviousID != "" || c2.NextID != "" {
		t.Errorf("translation head/tail got invented links: %q %q", c1.PreviousID, c2.NextID)
	}

	want := []string{
		"b1.c1.v1", "b1.c1.v2", "b1.c1.v3",
		"b2.c1.v1", "b2.c1.v2", "b2.c1.v3",
	}
	if got := walkVerses(t, s); !reflect.DeepEqual(got, want) {
		t.Errorf("verse order = %v, want %v", got, want)
	}
}

func TestRepairIdempotent(t *testing.T) {
	s := openStore(t)
	seedTranslation(t, s, 3, 4, 5)
	ctx := context.Background()

	l := &Linker{Store: s, BatchSize: 3}
	if _, err := l.Repair(ctx, "bible"); err != nil {
		t.Fatal(err)
	}
	first := walkVerses(t, s)
	if len(first) != 3*4*5 {
		t.Fatalf("walked %d verses, want 60", len(first))
	}

	stats, err := l.Repair(ctx, "bible")
	if err != nil {
		t.Fatal(err)
	}
	if stats.ChaptersUpdated != 0 || stats.VersesUpdated != 0 {
		t.Errorf("second pass updated rows: %+v", stats)
	}
	// Only the translation head and tail remain unlinked on one side.
	if stats.ChaptersExamined != 2 || stats.VersesExamined != 2 {
		t.Errorf("second pass examined %d chapters and %d verses, want 2 and 2", stats.ChaptersExamined, stats.VersesExamined)
	}
	if second := walkVerses(t, s); !reflect.DeepEqual(first, second) {
		t.Error("second pass changed the verse order")
	}
}

func TestRepairSingleBook(t *testing.T) {
	s := openStore(t)
	seedTranslation(t, s, 1, 2, 2)

	stats, err := New(s).Repair(context.Background(), "bible")
	if err != nil {
		t.Fatal(err)
	}
	if stats.ChaptersUpdated != 0 {
		t.Errorf("chapters updated = %d, want 0", stats.ChaptersUpdated)
	}
	if stats.VersesUpdated != 2 {
		t.Errorf("verses updated = %d, want 2 (the chapter seam)", stats.VersesUpdated)
	}
	walkVerses(t, s)
}

func TestRunBatchesStopsOnError(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6}
	_, err := runBatches(context.Background(), items, 2, func(_ context.Context, n int) (bool, error) {
		if n == 3 {
			return false, fmt.Errorf("boom")
		}
		return true, nil
	})
	if err == nil {
		t.Fatal("runBatches() expected error")
	}

	updated, err := runBatches(context.Background(), items, 4, func(_ context.Context, n int) (bool, error) {
		return n%2 == 0, nil
	})
	if err != nil || updated != 3 {
		t.Errorf("runBatches() = %d, %v; want 3, nil", updated, err)
	}
}
