// Package pyparse is the collaborator-side frontend: it parses Python
// source with tree-sitter and serializes the concrete syntax tree, token
// classification, and diagnostics into the wire form the analysis layer
// consumes.
package pyparse

import (
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"resym/internal/parse"
)

var pythonLanguage = sitter.NewLanguage(tree_sitter_python.Language())

// Pool recycles tree-sitter parser instances to avoid per-file
// allocation overhead. Safe for concurrent use.
type Pool struct {
	pool sync.Pool
}

func NewPool() *Pool {
	p := &Pool{}
	p.pool = sync.Pool{
		New: func() any {
			sp := sitter.NewParser()
			sp.SetLanguage(pythonLanguage)
			return sp
		},
	}
	return p
}

func (p *Pool) Get() *sitter.Parser {
	sp := p.pool.Get().(*sitter.Parser)
	sp.SetLanguage(pythonLanguage)
	return sp
}

// Put returns a parser for reuse. The parser is reset so no references to
// previous parse trees are retained; callers must not use sp afterwards.
func (p *Pool) Put(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	sp.Reset()
	p.pool.Put(sp)
}

// Result is one serialized parse.
type Result struct {
	Root        *parse.Node
	Tokens      []parse.Token
	Diagnostics []parse.Diagnostic
}

// ParseSource parses one file's text. Parsing is deterministic for
// identical input.
func (p *Pool) ParseSource(text []byte) *Result {
	sp := p.Get()
	defer p.Put(sp)

	tree := sp.Parse(text, nil)
	defer tree.Close()

	s := &serializer{}
	root := s.serialize(tree.RootNode(), "")
	return &Result{Root: root, Tokens: s.tokens, Diagnostics: s.diags}
}

type serializer struct {
	tokens []parse.Token
	diags  []parse.Diagnostic
}

// serialize converts a tree-sitter node to the wire tree. Unnamed nodes
// (punctuation, keywords) are dropped; field names are preserved so the
// analysis layer can look up children the way tree-sitter queries would.
func (s *serializer) serialize(n *sitter.Node, field string) *parse.Node {
	span := parse.Span{Start: int(n.StartByte()), End: int(n.EndByte())}
	out := &parse.Node{Kind: n.Kind(), Field: field, Span: span}

	switch n.Kind() {
	case "comment":
		s.tokens = append(s.tokens, parse.Token{Span: span, Class: parse.ClassComment})
	case "string_start", "string_content", "string_end":
		// Classifying the string pieces rather than the whole string node
		// keeps f-string interpolations classified as code.
		s.tokens = append(s.tokens, parse.Token{Span: span, Class: parse.ClassString})
	}

	if n.IsError() {
		s.diags = append(s.diags, parse.Diagnostic{Span: span, Message: "syntax error"})
	} else if n.IsMissing() {
		s.diags = append(s.diags, parse.Diagnostic{Span: span, Message: "missing " + n.Kind()})
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if !child.IsNamed() {
			continue
		}
		childField := n.FieldNameForChild(uint32(i))
		out.Children = append(out.Children, s.serialize(child, childField))
	}
	return out
}
