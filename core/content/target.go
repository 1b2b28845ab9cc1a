package content

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Target is the parsed form of a reference location such as "GEN 1:1",
// "1SA 2:3-5" or "PSA 23".
type Target struct {
	Book     string `json:"book"`
	Chapter  int    `json:"chapter"`
	Verse    int    `json:"verse,omitempty"`
	VerseEnd int    `json:"verseEnd,omitempty"`
}

// targetGrammar is the participle grammar for USX loc attributes.
//
//nolint:govet // participle grammar tags are not standard struct tags
type targetGrammar struct {
	BookPrefix string       `@Int?`
	BookName   string       `@Ident`
	Chapter    int          `@Int`
	VerseRef   *targetVerse `( ":" @@ )?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type targetVerse struct {
	Verse int  `@Int`
	Range *int `( "-" @Int )?`
}

var targetLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z]+`},
	{Name: "Punct", Pattern: `[:\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var targetParser = participle.MustBuild[targetGrammar](
	participle.Lexer(targetLexer),
	participle.Elide("Whitespace"),
)

// ParseTarget parses a reference location.
func ParseTarget(loc string) (*Target, error) {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return nil, fmt.Errorf("empty reference location")
	}

	parsed, err := targetParser.ParseString("", loc)
	if err != nil {
		return nil, fmt.Errorf("invalid reference location %q: %w", loc, err)
	}

	t := &Target{
		Book:    strings.ToUpper(parsed.BookPrefix + parsed.BookName),
		Chapter: parsed.Chapter,
	}
	if parsed.VerseRef != nil {
		t.Verse = parsed.VerseRef.Verse
		if parsed.VerseRef.Range != nil {
			t.VerseEnd = *parsed.VerseRef.Range
		}
	}
	return t, nil
}

// String formats the target back into "BOOK C:V[-E]" form.
func (t *Target) String() string {
	var sb strings.Builder
	sb.WriteString(t.Book)
	sb.WriteString(" ")
	sb.WriteString(strconv.Itoa(t.Chapter))
	if t.Verse > 0 {
		sb.WriteString(":")
		sb.WriteString(strconv.Itoa(t.Verse))
		if t.VerseEnd > 0 {
			sb.WriteString("-")
			sb.WriteString(strconv.Itoa(t.VerseEnd))
		}
	}
	return sb.String()
}
