// Package pom reads Maven project descriptors and repository metadata documents.
package pom

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// ErrMalformed is returned for documents that cannot be parsed or lack required elements.
var ErrMalformed = errors.New("malformed document")

// Node is a read-only view of an XML element. The zero Node represents a missing element:
// every lookup on it yields another missing element or empty text.
type Node struct {
	el *etree.Element
}

// Root parses data and returns its root element, which must be named tag.
func Root(data []byte, tag string) (Node, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return Node{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return root(doc, tag)
}

func root(doc *etree.Document, tag string) (Node, error) {
	r := doc.Root()
	if r == nil {
		return Node{}, fmt.Errorf("%w: empty document", ErrMalformed)
	}
	if r.Tag != tag {
		return Node{}, fmt.Errorf("%w: expected root element %q, got %q", ErrMalformed, tag, r.Tag)
	}
	return Node{el: r}, nil
}

// Exists reports whether the node refers to an element.
func (n Node) Exists() bool {
	return n.el != nil
}

// Tag returns the local name of the element.
func (n Node) Tag() string {
	if n.el == nil {
		return ""
	}
	return n.el.Tag
}

// Element returns the first element at the slash separated path below n.
func (n Node) Element(path string) Node {
	if n.el == nil {
		return Node{}
	}
	return Node{el: n.el.FindElement(path)}
}

// Elements returns all elements at the slash separated path below n, in document order.
func (n Node) Elements(path string) []Node {
	if n.el == nil {
		return nil
	}
	found := n.el.FindElements(path)
	nodes := make([]Node, 0, len(found))
	for _, el := range found {
		nodes = append(nodes, Node{el: el})
	}
	return nodes
}

// Children returns the direct child elements of n.
func (n Node) Children() []Node {
	if n.el == nil {
		return nil
	}
	children := n.el.ChildElements()
	nodes := make([]Node, 0, len(children))
	for _, el := range children {
		nodes = append(nodes, Node{el: el})
	}
	return nodes
}

// Text returns the trimmed text of the element at path, or of n itself if path is empty.
// Missing elements have empty text.
func (n Node) Text(path string) string {
	target := n
	if path != "" {
		target = n.Element(path)
	}
	if target.el == nil {
		return ""
	}
	return strings.TrimSpace(target.el.Text())
}

// Last returns the last of nodes, or a missing node if there are none.
func Last(nodes []Node) Node {
	if len(nodes) == 0 {
		return Node{}
	}
	return nodes[len(nodes)-1]
}
