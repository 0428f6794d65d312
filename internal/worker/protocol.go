// Package worker implements the line-delimited JSON protocol to the
// CST-producing collaborator process: one JSON object per line in each
// direction, correlated by an integer id. The exchange is strictly
// request-response; the client may pipeline multiple in-flight ids.
package worker

import (
	"resym/internal/parse"
)

// Operation names.
const (
	OpParse      = "parse"
	OpScopes     = "scopes"
	OpReferences = "references"
	OpRewrite    = "rewrite"
)

// Error codes carried on failed responses.
const (
	ErrInternal    = "InternalError"
	ErrBadRequest  = "BadRequest"
	ErrUnknownTree = "UnknownTree"
	ErrParseFailed = "ParseFailed"
)

type Edit struct {
	Span    parse.Span `json:"span"`
	NewText string     `json:"new_text"`
}

type Request struct {
	ID        int64  `json:"id"`
	Op        string `json:"op"`
	Path      string `json:"path,omitempty"`
	Text      string `json:"text,omitempty"`
	TreeID    int64  `json:"tree_id,omitempty"`
	BindingID int64  `json:"binding_id,omitempty"`
	Edits     []Edit `json:"edits,omitempty"`
}

type Response struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`

	// parse
	TreeID      int64             `json:"tree_id,omitempty"`
	Root        *parse.Node       `json:"root,omitempty"`
	Tokens      []parse.Token     `json:"tokens,omitempty"`
	Diagnostics []parse.Diagnostic `json:"diagnostics,omitempty"`

	// scopes
	Scopes   []ScopeSketch   `json:"scopes,omitempty"`
	Bindings []BindingSketch `json:"bindings,omitempty"`

	// references
	References []ReferenceSketch `json:"references,omitempty"`

	// rewrite
	NewText string `json:"new_text,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ScopeSketch, BindingSketch and ReferenceSketch are the worker's syntactic
// view of a tree. They carry no cross-file semantics; the analysis layer is
// authoritative for binding resolution.
type ScopeSketch struct {
	ID     int64      `json:"id"`
	Kind   string     `json:"kind"`
	Span   parse.Span `json:"span"`
	Parent int64      `json:"parent"`
}

type BindingSketch struct {
	ID    int64      `json:"id"`
	Name  string     `json:"name"`
	Kind  string     `json:"kind"`
	Span  parse.Span `json:"span"`
	Scope int64      `json:"scope"`
}

type ReferenceSketch struct {
	Name string     `json:"name"`
	Span parse.Span `json:"span"`
}

// ScopesResult pairs the two halves of a scopes response.
type ScopesResult struct {
	Scopes   []ScopeSketch
	Bindings []BindingSketch
}
