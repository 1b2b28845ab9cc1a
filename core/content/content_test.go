package content

import (
	"strings"
	"testing"
)

func sampleTree() []Content {
	return []Content{
		Paragraph{
			ID:    "p1",
			Attrs: Attrs{"style": "p"},
			Contents: []Content{
				Verse{ID: "v1", Number: 1, Attrs: Attrs{"style": "v"}},
				Text{ID: "t1", VerseNumber: 1, Text: "In the beginning "},
				Char{
					ID:          "c1",
					VerseNumber: 1,
					Attrs:       Attrs{"style": "nd"},
					Contents: []Content{
						Text{ID: "t2", VerseNumber: 1, Text: "God"},
					},
				},
				Text{ID: "t3", VerseNumber: 1, Text: " created the heavens and the earth."},
				Note{
					ID:          "n1",
					VerseNumber: 1,
					Attrs:       Attrs{"style": "x", "caller": "-"},
					Contents: []Content{
						Reference{ID: "r1", VerseNumber: 1, Text: "John 1:1", Attrs: Attrs{"loc": "JHN 1:1"}, Target: &Target{Book: "JHN", Chapter: 1, Verse: 1}},
					},
				},
			},
		},
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText(sampleTree()...)
	want := "In the beginning God created the heavens and the earth."
	if got != want {
		t.Errorf("PlainText() = %q, want %q", got, want)
	}

	if got := PlainText(); got != "" {
		t.Errorf("PlainText() of nothing = %q, want empty", got)
	}
}

func TestVerseNumbers(t *testing.T) {
	tree := append(sampleTree(), Paragraph{ID: "p2", Contents: []Content{
		Verse{ID: "v2", Number: 2},
		Text{ID: "t4", VerseNumber: 2, Text: "And the earth was without form."},
	}})

	got := VerseNumbers(tree)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("VerseNumbers() = %v, want [1 2]", got)
	}
}

func TestWalkSkipsChildren(t *testing.T) {
	var kinds []Kind
	Walk(sampleTree(), func(n Content) bool {
		kinds = append(kinds, n.Kind())
		return n.Kind() != KindNote
	})

	for _, k := range kinds {
		if k == KindReference {
			t.Fatal("Walk visited a child of a skipped note")
		}
	}
	if kinds[0] != KindParagraph {
		t.Errorf("first kind = %q, want para", kinds[0])
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	data, err := Marshal(sampleTree())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"type":"para"`) {
		t.Errorf("expected type discriminator in %s", data)
	}

	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("decoded %d nodes, want 1", len(decoded))
	}

	p, ok := decoded[0].(Paragraph)
	if !ok {
		t.Fatalf("decoded[0] is %T, want Paragraph", decoded[0])
	}
	if p.Attrs.Style() != "p" {
		t.Errorf("style = %q, want p", p.Attrs.Style())
	}
	if len(p.Contents) != 5 {
		t.Fatalf("paragraph has %d children, want 5", len(p.Contents))
	}
	if v, ok := p.Contents[0].(Verse); !ok || v.Number != 1 {
		t.Errorf("first child = %#v, want verse 1", p.Contents[0])
	}
	n, ok := p.Contents[4].(Note)
	if !ok {
		t.Fatalf("fifth child is %T, want Note", p.Contents[4])
	}
	ref, ok := n.Contents[0].(Reference)
	if !ok {
		t.Fatalf("note child is %T, want Reference", n.Contents[0])
	}
	if ref.Target == nil || ref.Target.Book != "JHN" {
		t.Errorf("reference target = %+v, want JHN", ref.Target)
	}

	if PlainText(decoded...) != PlainText(sampleTree()...) {
		t.Error("plain text changed across encoding")
	}
}

func TestMarshalNil(t *testing.T) {
	data, err := Marshal(nil)
	if err != nil {
		t.Fatalf("Marshal(nil) failed: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("Marshal(nil) = %s, want []", data)
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	if _, err := Unmarshal([]byte(`[{"type":"table","id":"x"}]`)); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := Unmarshal([]byte(`{"type":"text"}`)); err == nil {
		t.Error("expected error for non-list input")
	}
}

func TestAttrsClone(t *testing.T) {
	a := Attrs{"style": "p"}
	b := a.Clone()
	b["style"] = "q1"
	if a.Style() != "p" {
		t.Error("Clone shares storage with the original")
	}
	if Attrs(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}
