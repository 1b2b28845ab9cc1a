// Package usx parses one book's USX document into per-chapter and per-verse
// content trees.
package usx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/spirit-led-software/theaistudybible-sub004/core/content"
	"github.com/spirit-led-software/theaistudybible-sub004/core/errors"
	"github.com/spirit-led-software/theaistudybible-sub004/core/xml"
)

// rootExpr locates the USX root element.
var rootExpr = xml.MustCompile("/usx")

// Chapters maps chapter number to its parsed content.
type Chapters map[int]*Chapter

// Chapter is the parsed content of one chapter. Contents holds the whole
// chapter tree; Verses holds, per verse, the slice of that tree belonging to
// the verse.
type Chapter struct {
	ID       string
	Number   int
	Contents []content.Content
	Verses   map[int]*Verse
}

// Verse is the verse-scoped projection of a chapter's content.
type Verse struct {
	ID       string
	Number   int
	Contents []content.Content
}

// Numbers returns the chapter numbers in ascending order.
func (c Chapters) Numbers() []int {
	out := make([]int, 0, len(c))
	for n := range c {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// VerseNumbers returns the verse numbers of the chapter in ascending order.
func (c *Chapter) VerseNumbers() []int {
	out := make([]int, 0, len(c.Verses))
	for n := range c.Verses {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Parser converts USX documents. The zero value is ready to use.
type Parser struct {
	// NewID generates ids for chapters, verses and content nodes.
	// Defaults to uuid.NewString.
	NewID func() string

	// Source names the document in error messages.
	Source string
}

// Parse parses a USX document.
func (p *Parser) Parse(data []byte) (Chapters, error) {
	doc, err := xml.Parse(data)
	if err != nil {
		return nil, &errors.FormatError{Source: p.Source, Message: "invalid XML", Err: err}
	}
	return p.ParseDocument(doc)
}

// ParseDocument parses an already decoded USX document. Any sequencing
// violation or unknown element fails the whole book.
func (p *Parser) ParseDocument(doc *xml.Document) (Chapters, error) {
	root := doc.Select(rootExpr)
	if root == nil {
		root = doc.Root()
	}
	if root == nil {
		return nil, errors.NewFormat(p.Source, "document has no root element")
	}

	newID := p.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	st := &state{
		source:   p.Source,
		newID:    newID,
		chapters: make(map[int]*chapterState),
	}

	for _, n := range root.Nodes() {
		if err := st.bookNode(n); err != nil {
			return nil, err
		}
	}
	if len(st.chapters) == 0 {
		return nil, st.fail("document contains no chapters")
	}

	out := make(Chapters, len(st.chapters))
	for num, ch := range st.chapters {
		out[num] = ch.freeze()
	}
	return out, nil
}

// node is the mutable form of a content node while its scope is open.
type node struct {
	kind        content.Kind
	id          string
	verseNumber int
	number      int
	text        string
	attrs       content.Attrs
	target      *content.Target
	children    []*node

	// parent is the container that was open in the same scope when this
	// node was opened.
	parent     *node
	registered bool
}

// emptyCopy returns a fresh container with the same identity and
// attributes but no children, parented to parent.
func (n *node) emptyCopy(parent *node) *node {
	return &node{
		kind:        n.kind,
		id:          n.id,
		verseNumber: n.verseNumber,
		attrs:       n.attrs.Clone(),
		parent:      parent,
	}
}

func (n *node) freeze() content.Content {
	switch n.kind {
	case content.KindText:
		return content.Text{ID: n.id, VerseNumber: n.verseNumber, Text: n.text, Attrs: n.attrs.Clone()}
	case content.KindReference:
		r := content.Reference{ID: n.id, VerseNumber: n.verseNumber, Text: n.text, Attrs: n.attrs.Clone()}
		if n.target != nil {
			t := *n.target
			r.Target = &t
		}
		return r
	case content.KindVerse:
		return content.Verse{ID: n.id, Number: n.number, Attrs: n.attrs.Clone()}
	case content.KindChar:
		return content.Char{ID: n.id, VerseNumber: n.verseNumber, Attrs: n.attrs.Clone(), Contents: freezeAll(n.children)}
	case content.KindNote:
		return content.Note{ID: n.id, VerseNumber: n.verseNumber, Attrs: n.attrs.Clone(), Contents: freezeAll(n.children)}
	default:
		return content.Paragraph{ID: n.id, Attrs: n.attrs.Clone(), Contents: freezeAll(n.children)}
	}
}

func freezeAll(nodes []*node) []content.Content {
	out := make([]content.Content, len(nodes))
	for i, n := range nodes {
		out[i] = n.freeze()
	}
	return out
}

// list is a top-level content list: a chapter's or a verse's.
type list struct {
	nodes []*node
}

// scope is one of the two projections being built. The chapter scope and
// the verse scope never share node values.
type scope struct {
	open *node // innermost open container
	root *list // nil while the scope has nowhere to record content
}

// attach appends n to the innermost open container, or to the top-level
// list when nothing is open.
func (s *scope) attach(n *node) {
	if s.root == nil {
		return
	}
	if s.open == nil {
		s.root.nodes = append(s.root.nodes, n)
		return
	}
	s.open.children = append(s.open.children, n)
	s.register(s.open)
}

// register records a container in its parent (or the top-level list) the
// first time it receives content, walking up unregistered ancestors.
func (s *scope) register(n *node) {
	for n != nil && !n.registered {
		n.registered = true
		if n.parent == nil {
			s.root.nodes = append(s.root.nodes, n)
			return
		}
		n.parent.children = append(n.parent.children, n)
		n = n.parent
	}
}

func (s *scope) push(n *node) {
	n.parent = s.open
	s.open = n
}

// pop closes the innermost container. An empty container is still recorded.
func (s *scope) pop() {
	n := s.open
	if n == nil {
		return
	}
	s.open = n.parent
	if !n.registered && s.root != nil {
		s.register(n)
	}
}

// renew replaces every open container with an empty copy so content after a
// verse marker lands in the new verse instead of the previous one.
func (s *scope) renew(root *list) {
	var chain []*node
	for n := s.open; n != nil; n = n.parent {
		chain = append(chain, n)
	}
	var parent *node
	for i := len(chain) - 1; i >= 0; i-- {
		parent = chain[i].emptyCopy(parent)
	}
	s.open = parent
	s.root = root
}

type chapterState struct {
	id     string
	number int
	list   list
	verses map[int]*verseState
}

type verseState struct {
	id     string
	number int
	list   list
}

func (c *chapterState) freeze() *Chapter {
	ch := &Chapter{
		ID:       c.id,
		Number:   c.number,
		Contents: freezeAll(c.list.nodes),
		Verses:   make(map[int]*Verse, len(c.verses)),
	}
	for num, v := range c.verses {
		ch.Verses[num] = &Verse{ID: v.id, Number: v.number, Contents: freezeAll(v.list.nodes)}
	}
	return ch
}

type state struct {
	source string
	newID  func() string
	book   string

	chapterNumber int
	verseNumber   int
	chapter       *chapterState
	chapters      map[int]*chapterState

	chapterScope scope
	verseScope   scope
}

func (st *state) fail(format string, args ...any) error {
	return &errors.FormatError{
		Source:  st.source,
		Book:    st.book,
		Chapter: st.chapterNumber,
		Verse:   st.verseNumber,
		Message: fmt.Sprintf(format, args...),
	}
}

// bookNode handles a direct child of the root element.
func (st *state) bookNode(n *xml.Node) error {
	if n.IsText() {
		return st.text(n.Data(), true)
	}
	if !n.IsElement() {
		return nil
	}

	name := n.Name()
	switch {
	case name == "book":
		st.book = strings.TrimSpace(n.Attr("code"))
		return nil
	case ignoredElements[name]:
		return nil
	case name == "chapter":
		return st.startChapter(n)
	case name == "para":
		return st.paragraph(n)
	case name == "verse":
		// USX 2 allows verse markers between paragraphs.
		return st.startVerse(n)
	default:
		return st.fail("unexpected element <%s> at book level", name)
	}
}

// inlineNode handles content inside a paragraph, character run or note.
func (st *state) inlineNode(n *xml.Node) error {
	if n.IsText() {
		return st.text(n.Data(), false)
	}
	if !n.IsElement() {
		return nil
	}

	name := n.Name()
	switch {
	case ignoredElements[name]:
		return nil
	case name == "verse":
		return st.startVerse(n)
	case name == "char":
		return st.container(n, content.KindChar)
	case name == "note":
		return st.container(n, content.KindNote)
	case name == "ref":
		return st.reference(n)
	default:
		return st.fail("unexpected element <%s> inside content", name)
	}
}

func (st *state) startChapter(n *xml.Node) error {
	if !n.HasAttr("number") {
		// <chapter eid="..."/> closes a chapter; nothing to do.
		return nil
	}
	num, err := leadingInt(n.Attr("number"))
	if err != nil {
		return st.fail("invalid chapter number %q", n.Attr("number"))
	}
	if num != st.chapterNumber+1 {
		return st.fail("expected chapter %d, got %d", st.chapterNumber+1, num)
	}

	st.chapterNumber = num
	st.verseNumber = 0
	st.chapter = &chapterState{
		id:     st.newID(),
		number: num,
		verses: make(map[int]*verseState),
	}
	st.chapters[num] = st.chapter
	st.chapterScope = scope{root: &st.chapter.list}
	st.verseScope = scope{}
	return nil
}

func (st *state) startVerse(n *xml.Node) error {
	if !n.HasAttr("number") {
		// <verse eid="..."/> closes a verse.
		return nil
	}
	if st.chapter == nil {
		return st.fail("verse marker before the first chapter")
	}
	raw := n.Attr("number")
	start, end, err := verseRange(raw)
	if err != nil {
		return st.fail("invalid verse number %q", raw)
	}
	if start != st.verseNumber+1 {
		return st.fail("expected verse %d, got %s", st.verseNumber+1, raw)
	}

	st.verseNumber = end
	v := &verseState{id: st.newID(), number: start}
	st.chapter.verses[start] = v
	st.verseScope.renew(&v.list)

	marker := func() *node {
		return &node{
			kind:   content.KindVerse,
			id:     v.id,
			number: start,
			attrs:  content.Attrs(n.Attributes()),
		}
	}
	st.chapterScope.attach(marker())
	st.verseScope.attach(marker())
	return nil
}

func (st *state) paragraph(n *xml.Node) error {
	if isIgnoredParaStyle(n.Attr("style")) {
		return nil
	}
	if st.chapter == nil {
		return st.fail("paragraph (style %q) before the first chapter", n.Attr("style"))
	}
	return st.container(n, content.KindParagraph)
}

// container opens a paragraph, character run or note in both scopes,
// descends into its children and closes it again.
func (st *state) container(n *xml.Node, kind content.Kind) error {
	if st.chapter == nil {
		return st.fail("<%s> before the first chapter", n.Name())
	}
	id := st.newID()
	attrs := content.Attrs(n.Attributes())
	open := func() *node {
		nd := &node{kind: kind, id: id, attrs: attrs.Clone()}
		if kind != content.KindParagraph {
			nd.verseNumber = st.verseNumber
		}
		return nd
	}

	st.chapterScope.push(open())
	st.verseScope.push(open())
	for _, child := range n.Nodes() {
		if err := st.inlineNode(child); err != nil {
			return err
		}
	}
	st.verseScope.pop()
	st.chapterScope.pop()
	return nil
}

func (st *state) reference(n *xml.Node) error {
	if st.chapter == nil {
		return st.fail("reference before the first chapter")
	}
	id := st.newID()
	attrs := content.Attrs(n.Attributes())
	text := collapseSpace(n.InnerText())
	var target *content.Target
	if loc := attrs["loc"]; loc != "" {
		// An unreadable loc keeps its raw attribute and has no target.
		target, _ = content.ParseTarget(loc)
	}

	leaf := func() *node {
		nd := &node{
			kind:        content.KindReference,
			id:          id,
			verseNumber: st.verseNumber,
			text:        text,
			attrs:       attrs.Clone(),
		}
		if target != nil {
			t := *target
			nd.target = &t
		}
		return nd
	}
	st.chapterScope.attach(leaf())
	st.verseScope.attach(leaf())
	return nil
}

func (st *state) text(raw string, bookLevel bool) error {
	text, ok := normalizeText(raw)
	if !ok {
		return nil
	}
	if bookLevel && strings.TrimSpace(text) == "" {
		return nil
	}
	if st.chapter == nil {
		return st.fail("text %q before the first chapter", truncate(text, 20))
	}

	id := st.newID()
	leaf := func() *node {
		return &node{kind: content.KindText, id: id, verseNumber: st.verseNumber, text: text}
	}
	st.chapterScope.attach(leaf())
	st.verseScope.attach(leaf())
	return nil
}

// normalizeText collapses whitespace runs to one space. Whitespace-only runs
// that contain a line break are source formatting and are dropped.
func normalizeText(s string) (string, bool) {
	if strings.TrimSpace(s) == "" {
		if s == "" || strings.ContainsAny(s, "\r\n") {
			return "", false
		}
		return " ", true
	}
	return collapseSpace(s), true
}

func collapseSpace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			sb.WriteByte(' ')
			space = false
		}
		sb.WriteRune(r)
	}
	if space {
		sb.WriteByte(' ')
	}
	return sb.String()
}

// leadingInt parses the digits at the start of s ("3", "3a").
func leadingInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("no number in %q", s)
	}
	return strconv.Atoi(s[:i])
}

// verseRange parses a verse number or bridge ("4", "4-6").
func verseRange(s string) (int, int, error) {
	first, last, bridged := strings.Cut(s, "-")
	start, err := leadingInt(first)
	if err != nil {
		return 0, 0, err
	}
	if !bridged {
		return start, start, nil
	}
	end, err := leadingInt(last)
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("invalid verse bridge %q", s)
	}
	return start, end, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
