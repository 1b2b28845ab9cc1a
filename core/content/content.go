// Package content defines the content tree stored for every chapter and verse
// of an imported translation.
//
// A tree is a list of Content values. Each value is one of six node kinds:
//
//   - Paragraph: a block of text with a USX paragraph style
//   - Char: an inline styled run (bold, italic, words of Jesus, ...)
//   - Note: a footnote or cross-reference callout
//   - Verse: a verse boundary marker (never has children)
//   - Reference: a cross-reference pointer such as "GEN 1:1"
//   - Text: a run of reading text
//
// Trees are immutable once built. Producers (the USX parser) enforce every
// structural invariant; this package only describes and serializes nodes.
package content

// Kind discriminates the node variants.
type Kind string

// Node kinds, also used as the "type" field of the JSON form.
const (
	KindText      Kind = "text"
	KindReference Kind = "ref"
	KindVerse     Kind = "verse"
	KindChar      Kind = "char"
	KindNote      Kind = "note"
	KindParagraph Kind = "para"
)

// Attrs holds the source element attributes (style, caller, loc, ...).
type Attrs map[string]string

// Style returns the "style" attribute.
func (a Attrs) Style() string {
	return a["style"]
}

// Clone returns an independent copy of the attribute map.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Content is implemented by every node variant.
type Content interface {
	Kind() Kind
	NodeID() string
}

// Container is implemented by the variants that own child nodes.
type Container interface {
	Content
	Children() []Content
}

// Text is a run of reading text.
type Text struct {
	ID          string `json:"id"`
	VerseNumber int    `json:"verseNumber"`
	Text        string `json:"text"`
	Attrs       Attrs  `json:"attrs,omitempty"`
}

// Reference is a cross-reference pointer. Text is the displayed label and
// Attrs["loc"] the raw target; Target is the parsed form of loc when it
// could be understood.
type Reference struct {
	ID          string  `json:"id"`
	VerseNumber int     `json:"verseNumber"`
	Text        string  `json:"text"`
	Attrs       Attrs   `json:"attrs,omitempty"`
	Target      *Target `json:"target,omitempty"`
}

// Verse marks the start of a verse. Siblings that follow it belong to that
// verse until the next marker.
type Verse struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Attrs  Attrs  `json:"attrs,omitempty"`
}

// Char is an inline styled span.
type Char struct {
	ID          string    `json:"id"`
	VerseNumber int       `json:"verseNumber"`
	Attrs       Attrs     `json:"attrs,omitempty"`
	Contents    []Content `json:"contents"`
}

// Note is a footnote or cross-reference callout.
type Note struct {
	ID          string    `json:"id"`
	VerseNumber int       `json:"verseNumber"`
	Attrs       Attrs     `json:"attrs,omitempty"`
	Contents    []Content `json:"contents"`
}

// Paragraph is a block-level element.
type Paragraph struct {
	ID       string    `json:"id"`
	Attrs    Attrs     `json:"attrs,omitempty"`
	Contents []Content `json:"contents"`
}

func (Text) Kind() Kind      { return KindText }
func (Reference) Kind() Kind { return KindReference }
func (Verse) Kind() Kind     { return KindVerse }
func (Char) Kind() Kind      { return KindChar }
func (Note) Kind() Kind      { return KindNote }
func (Paragraph) Kind() Kind { return KindParagraph }

func (n Text) NodeID() string      { return n.ID }
func (n Reference) NodeID() string { return n.ID }
func (n Verse) NodeID() string     { return n.ID }
func (n Char) NodeID() string      { return n.ID }
func (n Note) NodeID() string      { return n.ID }
func (n Paragraph) NodeID() string { return n.ID }

func (n Char) Children() []Content      { return n.Contents }
func (n Note) Children() []Content      { return n.Contents }
func (n Paragraph) Children() []Content { return n.Contents }

// Walk visits nodes depth-first in document order. Returning false from fn
// skips the children of that node.
func Walk(nodes []Content, fn func(Content) bool) {
	for _, n := range nodes {
		if !fn(n) {
			continue
		}
		if c, ok := n.(Container); ok {
			Walk(c.Children(), fn)
		}
	}
}
