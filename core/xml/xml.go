// Package xml provides a small DOM over antchfx/xmlquery for reading bundle
// documents: well-formedness checks, precompiled XPath lookups and ordered
// traversal of mixed element/text content.
//
// Security Notes:
//   - XXE (External Entity) attacks are mitigated by using Go's xml.Decoder
//     which doesn't fetch external entities by default, and we explicitly
//     disable entity expansion in Validate.
//   - The xmlquery library is used for parsing, which uses Go's encoding/xml
//     internally and inherits its security properties.
package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Document represents a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node represents an element or a text run.
type Node struct {
	node *xmlquery.Node
}

// Expr is a compiled XPath expression.
type Expr struct {
	expr *xpath.Expr
	src  string
}

// MustCompile compiles an XPath expression and panics if it is invalid.
// It is meant for package-level expressions.
func MustCompile(expr string) *Expr {
	e, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return e
}

// Compile compiles an XPath expression.
func Compile(expr string) (*Expr, error) {
	e, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return &Expr{expr: e, src: expr}, nil
}

// String returns the source of the expression.
func (e *Expr) String() string {
	return e.src
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Validate checks that data is well-formed XML.
//
// Security: entity expansion is disabled (CWE-611).
func Validate(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Entity = map[string]string{}

	sawElement := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("malformed XML: %w", err)
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawElement = true
		}
	}
	if !sawElement {
		return fmt.Errorf("malformed XML: no root element")
	}
	return nil
}

// Root returns the root element of the document.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// Select returns the first node matching expr, or nil.
func (d *Document) Select(expr *Expr) *Node {
	n := xmlquery.QuerySelector(d.root, expr.expr)
	if n == nil {
		return nil
	}
	return &Node{node: n}
}

// SelectAll returns every node matching expr in document order.
func (d *Document) SelectAll(expr *Expr) []*Node {
	nodes := xmlquery.QuerySelectorAll(d.root, expr.expr)
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = &Node{node: n}
	}
	return out
}

// IsElement reports whether the node is an element.
func (n *Node) IsElement() bool {
	return n.node != nil && n.node.Type == xmlquery.ElementNode
}

// IsText reports whether the node is character data (text or CDATA).
func (n *Node) IsText() bool {
	return n.node != nil && (n.node.Type == xmlquery.TextNode || n.node.Type == xmlquery.CharDataNode)
}

// Name returns the element name.
func (n *Node) Name() string {
	if n.node == nil || n.node.Type != xmlquery.ElementNode {
		return ""
	}
	return n.node.Data
}

// Data returns the raw character data of a text node.
func (n *Node) Data() string {
	if !n.IsText() {
		return ""
	}
	return n.node.Data
}

// InnerText returns all text content of the node and its descendants.
func (n *Node) InnerText() string {
	if n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// Nodes returns the element and text children in document order. Comments
// and processing instructions are skipped.
func (n *Node) Nodes() []*Node {
	if n.node == nil {
		return nil
	}
	var out []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.ElementNode, xmlquery.TextNode, xmlquery.CharDataNode:
			out = append(out, &Node{node: child})
		}
	}
	return out
}

// Children returns the child element nodes.
func (n *Node) Children() []*Node {
	if n.node == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// Attributes returns all attributes of the node.
func (n *Node) Attributes() map[string]string {
	if n.node == nil || len(n.node.Attr) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(n.node.Attr))
	for _, attr := range n.node.Attr {
		attrs[attr.Name.Local] = attr.Value
	}
	return attrs
}

// Attr returns the value of a specific attribute.
func (n *Node) Attr(name string) string {
	if n.node == nil {
		return ""
	}
	return n.node.SelectAttr(name)
}

// HasAttr reports whether the attribute is present, even if empty.
func (n *Node) HasAttr(name string) bool {
	if n.node == nil {
		return false
	}
	for _, attr := range n.node.Attr {
		if attr.Name.Local == name {
			return true
		}
	}
	return false
}
