package parse

import (
	"crypto/sha256"
	"fmt"
)

// Span is a half-open byte range [Start, End) into a file's text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Span) Len() int {
	return s.End - s.Start
}

func (s Span) Contains(other Span) bool {
	return s.Start <= other.Start && other.End <= s.End
}

func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

type TokenClass string

const (
	ClassCode    TokenClass = "code"
	ClassString  TokenClass = "string"
	ClassComment TokenClass = "comment"
)

// Token is one classified region of source text. The worker emits tokens only
// for string and comment regions; everything uncovered is code.
type Token struct {
	Span  Span       `json:"span"`
	Class TokenClass `json:"class"`
}

type Diagnostic struct {
	Span    Span   `json:"span"`
	Message string `json:"message"`
}

// Node is one concrete-syntax-tree node as serialized by the worker. Kinds
// and field names follow the tree-sitter Python grammar. Node text is not
// carried on the wire; consumers slice the file text by span.
type Node struct {
	Kind     string  `json:"kind"`
	Field    string  `json:"field,omitempty"`
	Span     Span    `json:"span"`
	Children []*Node `json:"children,omitempty"`
}

// ChildByField returns the first child carrying the given field name.
func (n *Node) ChildByField(field string) *Node {
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// ChildOfKind returns the first child of the given kind.
func (n *Node) ChildOfKind(kind string) *Node {
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// Walk visits nodes in pre-order. Returning false from fn prunes the
// subtree below the current node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Tree is an immutable parsed file. Instances are shared read-only between
// all consumers of the same content hash.
type Tree struct {
	ID          int64        `json:"tree_id"`
	Path        string       `json:"path"`
	Text        string       `json:"-"`
	Root        *Node        `json:"root"`
	Tokens      []Token      `json:"tokens,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

func (t *Tree) TextOf(n *Node) string {
	if n == nil || n.Span.Start < 0 || n.Span.End > len(t.Text) {
		return ""
	}
	return t.Text[n.Span.Start:n.Span.End]
}

// ClassOf classifies a span against the token table. A span overlapping a
// string or comment token takes that token's class; otherwise it is code.
func (t *Tree) ClassOf(span Span) TokenClass {
	for _, tok := range t.Tokens {
		if tok.Span.Overlaps(span) {
			return tok.Class
		}
	}
	return ClassCode
}

// Hash returns the content hash used as the parse cache key.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum[:])
}
