package content

import (
	"encoding/json"
	"fmt"
)

// The variants marshal with a "type" discriminator so a stored tree can be
// decoded back into concrete node types.

func (n Text) MarshalJSON() ([]byte, error) {
	type alias Text
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindText, alias(n)})
}

func (n Reference) MarshalJSON() ([]byte, error) {
	type alias Reference
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindReference, alias(n)})
}

func (n Verse) MarshalJSON() ([]byte, error) {
	type alias Verse
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindVerse, alias(n)})
}

func (n Char) MarshalJSON() ([]byte, error) {
	type alias Char
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindChar, alias(n)})
}

func (n Note) MarshalJSON() ([]byte, error) {
	type alias Note
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindNote, alias(n)})
}

func (n Paragraph) MarshalJSON() ([]byte, error) {
	type alias Paragraph
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindParagraph, alias(n)})
}

// envelope is the union of every variant's JSON fields.
type envelope struct {
	Type        Kind              `json:"type"`
	ID          string            `json:"id"`
	VerseNumber int               `json:"verseNumber"`
	Number      int               `json:"number"`
	Text        string            `json:"text"`
	Attrs       Attrs             `json:"attrs"`
	Target      *Target           `json:"target"`
	Contents    []json.RawMessage `json:"contents"`
}

// Marshal encodes a content tree.
func Marshal(nodes []Content) ([]byte, error) {
	if nodes == nil {
		nodes = []Content{}
	}
	return json.Marshal(nodes)
}

// Unmarshal decodes a content tree produced by Marshal.
func Unmarshal(data []byte) ([]Content, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding content list: %w", err)
	}
	return decodeList(raw)
}

func decodeList(raw []json.RawMessage) ([]Content, error) {
	out := make([]Content, 0, len(raw))
	for _, r := range raw {
		n, err := decodeNode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func decodeNode(data json.RawMessage) (Content, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decoding content node: %w", err)
	}

	switch e.Type {
	case KindText:
		return Text{ID: e.ID, VerseNumber: e.VerseNumber, Text: e.Text, Attrs: e.Attrs}, nil
	case KindReference:
		return Reference{ID: e.ID, VerseNumber: e.VerseNumber, Text: e.Text, Attrs: e.Attrs, Target: e.Target}, nil
	case KindVerse:
		return Verse{ID: e.ID, Number: e.Number, Attrs: e.Attrs}, nil
	}

	children, err := decodeList(e.Contents)
	if err != nil {
		return nil, err
	}
	switch e.Type {
	case KindChar:
		return Char{ID: e.ID, VerseNumber: e.VerseNumber, Attrs: e.Attrs, Contents: children}, nil
	case KindNote:
		return Note{ID: e.ID, VerseNumber: e.VerseNumber, Attrs: e.Attrs, Contents: children}, nil
	case KindParagraph:
		return Paragraph{ID: e.ID, Attrs: e.Attrs, Contents: children}, nil
	default:
		return nil, fmt.Errorf("unknown content type %q", e.Type)
	}
}
