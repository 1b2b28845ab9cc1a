package dbl

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/spirit-led-software/theaistudybible-sub004/core/errors"
	corexml "github.com/spirit-led-software/theaistudybible-sub004/core/xml"
)

// Metadata is the DBL metadata.xml document.
type Metadata struct {
	XMLName     xml.Name `xml:"DBLMetadata"`
	ID          string   `xml:"id,attr"`
	Revision    string   `xml:"revision,attr"`
	Type        string   `xml:"type,attr"`
	TypeVersion string   `xml:"typeVersion,attr"`

	Identification Identification `xml:"identification"`
	Language       Language       `xml:"language"`
	Countries      []Country      `xml:"countries>country"`
	Copyright      Copyright      `xml:"copyright"`
	Names          []Name         `xml:"names>name"`
	Publications   []Publication  `xml:"publications>publication"`
}

// Identification names the translation.
type Identification struct {
	Name              string `xml:"name"`
	NameLocal         string `xml:"nameLocal"`
	Description       string `xml:"description"`
	DescriptionLocal  string `xml:"descriptionLocal"`
	Abbreviation      string `xml:"abbreviation"`
	AbbreviationLocal string `xml:"abbreviationLocal"`
	Scope             string `xml:"scope"`
}

// Language describes the translation language.
type Language struct {
	ISO             string `xml:"iso"`
	Name            string `xml:"name"`
	NameLocal       string `xml:"nameLocal"`
	Script          string `xml:"script"`
	ScriptDirection string `xml:"scriptDirection"`
}

// Country is one entry of the countries list.
type Country struct {
	ISO  string `xml:"iso"`
	Name string `xml:"name"`
}

// Copyright holds the rights statement. DBL 1.x uses <statement>, 2.x uses
// <fullStatement><statementContent>.
type Copyright struct {
	Statement     statement `xml:"statement"`
	FullStatement statement `xml:"fullStatement>statementContent"`
}

type statement struct {
	Inner string `xml:",innerxml"`
}

// Text returns the statement with markup removed.
func (c Copyright) Text() string {
	inner := c.FullStatement.Inner
	if strings.TrimSpace(inner) == "" {
		inner = c.Statement.Inner
	}
	return stripMarkup(inner)
}

// Name is the display names of one book.
type Name struct {
	ID    string `xml:"id,attr"`
	Abbr  string `xml:"abbr"`
	Short string `xml:"short"`
	Long  string `xml:"long"`
}

// Publication is one publishable arrangement of the bundle's books.
type Publication struct {
	ID                string    `xml:"id,attr"`
	Default           bool      `xml:"default,attr"`
	Name              string    `xml:"name"`
	NameLocal         string    `xml:"nameLocal"`
	Abbreviation      string    `xml:"abbreviation"`
	AbbreviationLocal string    `xml:"abbreviationLocal"`
	Structure         []Content `xml:"structure>content"`
}

// Content points at one book document.
type Content struct {
	Name string `xml:"name,attr"`
	Src  string `xml:"src,attr"`
	Role string `xml:"role,attr"`
}

// BookCode returns the USX book code carried by the content role.
func (c Content) BookCode() string {
	fields := strings.Fields(c.Role)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// ParseMetadata decodes a metadata.xml document.
func ParseMetadata(data []byte) (*Metadata, error) {
	if err := corexml.Validate(data); err != nil {
		return nil, &errors.FormatError{Source: MetadataFile, Message: "invalid metadata document", Err: err}
	}
	var md Metadata
	if err := xml.Unmarshal(data, &md); err != nil {
		return nil, &errors.FormatError{Source: MetadataFile, Message: "invalid metadata document", Err: err}
	}
	if strings.TrimSpace(md.Identification.Abbreviation) == "" {
		return nil, errors.NewFormat(MetadataFile, "identification has no abbreviation")
	}
	return &md, nil
}

// Publication resolves the publication to import: the one with the given id,
// else the default one, else the first declared.
func (m *Metadata) Publication(id string) (*Publication, error) {
	if id != "" {
		for i := range m.Publications {
			if m.Publications[i].ID == id {
				return &m.Publications[i], nil
			}
		}
		return nil, errors.NewNotFound("publication", id)
	}
	for i := range m.Publications {
		if m.Publications[i].Default {
			return &m.Publications[i], nil
		}
	}
	if len(m.Publications) == 0 {
		return nil, errors.NewNotFound("publication", "(any)")
	}
	return &m.Publications[0], nil
}

// Name returns the display names registered under id.
func (m *Metadata) Name(id string) (*Name, error) {
	for i := range m.Names {
		if m.Names[i].ID == id {
			return &m.Names[i], nil
		}
	}
	return nil, errors.NewNotFound("book name", id)
}

// CountryCodes returns the ISO codes of the countries list.
func (m *Metadata) CountryCodes() []string {
	out := make([]string, 0, len(m.Countries))
	for _, c := range m.Countries {
		if c.ISO != "" {
			out = append(out, c.ISO)
		}
	}
	return out
}

func stripMarkup(s string) string {
	dec := xml.NewDecoder(strings.NewReader("<r>" + s + "</r>"))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	var buf bytes.Buffer
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return strings.TrimSpace(s)
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" {
				buf.WriteByte(' ')
			}
		}
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}
