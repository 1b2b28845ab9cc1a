package chunk

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

var fixedNow = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func testSource() Source {
	return Source{
		BibleAbbreviation:      "engWEBP",
		BibleAbbreviationLocal: "WEB",
		BookCode:               "GEN",
		BookShortName:          "Genesis",
		ChapterID:              "chapter-1",
		ChapterNumber:          1,
	}
}

// makeVerses returns n verses of exactly width runes each.
func makeVerses(n, width int) []Verse {
	verses := make([]Verse, n)
	for i := range verses {
		text := fmt.Sprintf("v%02d", i+1)
		text += strings.Repeat("x", width-len(text))
		verses[i] = Verse{ID: fmt.Sprintf("verse-%d", i+1), Number: i + 1, Text: text}
	}
	return verses
}

func TestGenerateCoversEveryVerseOnce(t *testing.T) {
	verses := makeVerses(30, 20)
	g := &Generator{ChunkSize: 500, ChunkOverlap: 50, Now: fixedNow}
	docs := g.Generate(testSource(), verses)

	if len(docs) < 2 {
		t.Fatalf("Generate() returned %d documents, want more than 1", len(docs))
	}

	var got []string
	for _, d := range docs {
		got = append(got, d.Metadata.VerseIDs...)
	}
	if len(got) != len(verses) {
		t.Fatalf("attributed %d verse ids, want %d", len(got), len(verses))
	}
	for i, id := range got {
		if id != verses[i].ID {
			t.Fatalf("verse id %d = %q, want %q", i, id, verses[i].ID)
		}
	}
}

func TestGenerateOverlap(t *testing.T) {
	verses := makeVerses(30, 20)
	g := &Generator{ChunkSize: 500, ChunkOverlap: 50, Now: fixedNow}
	docs := g.Generate(testSource(), verses)
	if len(docs) != 2 {
		t.Fatalf("Generate() returned %d documents, want 2", len(docs))
	}

	first, second := docs[0], docs[1]
	if n := len(first.Metadata.VerseIDs); n != 25 {
		t.Errorf("first document has %d verses, want 25", n)
	}
	if first.Metadata.VerseRange != "1-25" {
		t.Errorf("first range = %q, want 1-25", first.Metadata.VerseRange)
	}
	if !strings.HasPrefix(first.Content, verses[0].Text) {
		t.Errorf("first document should start at verse 1: %q", first.Content[:30])
	}

	// The second window looks back three verses (60 runes) for context.
	if second.Metadata.VerseRange != "23-30" {
		t.Errorf("second range = %q, want 23-30", second.Metadata.VerseRange)
	}
	if second.Metadata.VerseIDs[0] != "verse-26" {
		t.Errorf("second document first verse id = %q, want verse-26", second.Metadata.VerseIDs[0])
	}
	if !strings.HasPrefix(second.Content, verses[22].Text+" "+verses[23].Text) {
		t.Errorf("second document should open with overlap text: %q", second.Content[:50])
	}
	for _, id := range first.Metadata.VerseIDs {
		for _, other := range second.Metadata.VerseIDs {
			if id == other {
				t.Errorf("verse %s attributed to both documents", id)
			}
		}
	}
}

func TestGenerateNaming(t *testing.T) {
	verses := []Verse{
		{ID: "a", Number: 1, Text: "  In the beginning. "},
		{ID: "b", Number: 2, Text: ""},
		{ID: "c", Number: 3, Text: "The earth was formless."},
	}
	g := &Generator{ChunkSize: 1000, Now: fixedNow}
	docs := g.Generate(testSource(), verses)
	if len(docs) != 1 {
		t.Fatalf("Generate() returned %d documents, want 1", len(docs))
	}
	d := docs[0]

	wantName := "Genesis 1:1-3 (WEB)"
	if d.Metadata.Name != wantName {
		t.Errorf("Name = %q, want %q", d.Metadata.Name, wantName)
	}
	wantContent := "In the beginning. The earth was formless. - " + wantName
	if d.Content != wantContent {
		t.Errorf("Content = %q, want %q", d.Content, wantContent)
	}
	if d.Metadata.URL != "/bible/engWEBP/GEN/1" {
		t.Errorf("URL = %q", d.Metadata.URL)
	}
	if d.Metadata.IndexDate != "2024-05-01T12:00:00Z" {
		t.Errorf("IndexDate = %q", d.Metadata.IndexDate)
	}
	if d.Metadata.Category != Category || d.Metadata.BookAbbreviation != "GEN" || d.Metadata.ChapterNumber != 1 {
		t.Errorf("Metadata = %+v", d.Metadata)
	}

	m := d.Metadata.Map()
	if m["verseRange"] != "1-3" || m["bibleAbbreviation"] != "engWEBP" {
		t.Errorf("Map() = %v", m)
	}
}

func TestGenerateStableIDs(t *testing.T) {
	verses := makeVerses(12, 30)
	g := &Generator{ChunkSize: 100, ChunkOverlap: 30, Now: fixedNow}

	a := g.Generate(testSource(), verses)
	b := g.Generate(testSource(), verses)
	if len(a) != len(b) {
		t.Fatalf("document counts differ: %d vs %d", len(a), len(b))
	}
	seen := map[string]bool{}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("document %d id changed between runs", i)
		}
		if seen[a[i].ID] {
			t.Errorf("duplicate document id %s", a[i].ID)
		}
		seen[a[i].ID] = true
	}

	other := testSource()
	other.ChapterID = "chapter-2"
	if c := g.Generate(other, verses); c[0].ID == a[0].ID {
		t.Error("document id should depend on the chapter")
	}
}

func TestGenerateSmallChunks(t *testing.T) {
	verses := makeVerses(4, 10)
	g := &Generator{Now: fixedNow}
	docs := g.Generate(testSource(), verses)
	if len(docs) != 4 {
		t.Fatalf("zero chunk size should give one verse per document, got %d", len(docs))
	}
	for i, d := range docs {
		if want := fmt.Sprintf("%d-%d", i+1, i+1); d.Metadata.VerseRange != want {
			t.Errorf("document %d range = %q, want %q", i, d.Metadata.VerseRange, want)
		}
	}

	if docs := g.Generate(testSource(), nil); len(docs) != 0 {
		t.Errorf("Generate(nil) = %d documents, want 0", len(docs))
	}
}
