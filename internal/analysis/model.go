// Package analysis builds the per-file semantic layer on top of parsed
// trees: lexical scopes, bindings, references, and the dynamic-access and
// text-literal annotations a rename plan depends on.
package analysis

import (
	"resym/internal/parse"
)

type ScopeKind int

const (
	ScopeModule ScopeKind = iota
	ScopeFunction
	ScopeClass
	ScopeLambda
	ScopeComprehension
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeModule:
		return "module"
	case ScopeFunction:
		return "function"
	case ScopeClass:
		return "class"
	case ScopeLambda:
		return "lambda"
	case ScopeComprehension:
		return "comprehension"
	}
	return "unknown"
}

type BindingKind int

const (
	BindParameter BindingKind = iota
	BindAssignment
	BindFunctionDef
	BindClassDef
	BindImport
	BindImportAlias
)

func (k BindingKind) String() string {
	switch k {
	case BindParameter:
		return "parameter"
	case BindAssignment:
		return "assignment"
	case BindFunctionDef:
		return "function"
	case BindClassDef:
		return "class"
	case BindImport:
		return "import"
	case BindImportAlias:
		return "import-alias"
	}
	return "unknown"
}

// Binding is one named declaration point. Every binding belongs to exactly
// one scope.
type Binding struct {
	Name  string
	Kind  BindingKind
	Scope *Scope
	Decl  parse.Span
	Path  string

	// Import is set for BindImport and BindImportAlias bindings.
	Import *ImportRef
}

// ImportRef records one imported name as written in source.
type ImportRef struct {
	// Module is the dotted module text after any relative prefix.
	Module string
	// Item is the imported name; empty for whole-module imports.
	Item string
	// Alias is the local name when the import is aliased.
	Alias string
	// Relative counts leading dots; 0 for absolute imports.
	Relative int
	// ItemSpan is the span of the original name token at the import
	// site. For aliased imports this differs from the binding's Decl,
	// which covers the alias token.
	ItemSpan parse.Span
	// StmtSpan covers the whole import statement.
	StmtSpan parse.Span
}

// Scope is one lexical scope. Name lookup walks parents toward the module
// scope, skipping class scopes when resolving free variables of functions
// nested inside them.
type Scope struct {
	Kind     ScopeKind
	Span     parse.Span
	Parent   *Scope
	Children []*Scope
	Symbols  map[string]*Binding

	// redirects carries global/nonlocal declarations: writes to a
	// redirected name target an existing binding elsewhere in the chain
	// instead of creating a local one.
	redirects map[string]*Binding
}

func newScope(kind ScopeKind, span parse.Span, parent *Scope) *Scope {
	s := &Scope{
		Kind:      kind,
		Span:      span,
		Parent:    parent,
		Symbols:   make(map[string]*Binding),
		redirects: make(map[string]*Binding),
	}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// Lookup resolves a name from this scope outward. The starting scope's own
// symbol table always participates; enclosing class scopes do not, per the
// free-variable rule.
func (s *Scope) Lookup(name string) *Binding {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur != s && cur.Kind == ScopeClass {
			continue
		}
		if b, ok := cur.redirects[name]; ok {
			return b
		}
		if b, ok := cur.Symbols[name]; ok {
			return b
		}
	}
	return nil
}

// LookupWith behaves like Lookup with one extra candidate binding visible
// in extraScope. The planner uses it to ask what a name would resolve to
// after a rename, without mutating any scope.
func (s *Scope) LookupWith(name string, extraScope *Scope, extra *Binding) *Binding {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur != s && cur.Kind == ScopeClass {
			continue
		}
		if b, ok := cur.redirects[name]; ok {
			return b
		}
		if b, ok := cur.Symbols[name]; ok {
			return b
		}
		if cur == extraScope {
			return extra
		}
	}
	return nil
}

// Redirect registers a global/nonlocal target for name in this scope.
func (s *Scope) Redirect(name string, target *Binding) {
	s.redirects[name] = target
}

func (s *Scope) Redirected(name string) (*Binding, bool) {
	b, ok := s.redirects[name]
	return b, ok
}

type RefKind int

const (
	RefRead RefKind = iota
	RefWrite
	RefCall
	RefAttributeTarget
)

func (k RefKind) String() string {
	switch k {
	case RefRead:
		return "read"
	case RefWrite:
		return "write"
	case RefCall:
		return "call"
	case RefAttributeTarget:
		return "attribute"
	}
	return "unknown"
}

// Reference is one use of a name. An unresolved identifier keeps a nil
// Binding rather than being dropped, so rename plans can still detect
// shadowing collisions against it.
type Reference struct {
	Name    string
	Span    parse.Span
	Scope   *Scope
	Binding *Binding
	Kind    RefKind

	// Heuristic marks attribute matches linked without a lexical
	// guarantee. They are excluded from plans unless the caller opts in.
	Heuristic bool
}

// WildcardImport is one `from mod import *` statement.
type WildcardImport struct {
	Module   string
	Relative int
	Span     parse.Span
}

// DynamicUseKind classifies a statically-unverifiable name access.
type DynamicUseKind int

const (
	DynAttrCall DynamicUseKind = iota // getattr/setattr/hasattr/delattr
	DynEval                           // eval/exec/compile
	DynHook                           // __getattr__-style hook definition
)

type DynamicUse struct {
	Kind DynamicUseKind
	// Func is the called primitive or defined hook name.
	Func string
	// Arg holds the literal string argument when Literal is true.
	Arg     string
	Literal bool
	Span    parse.Span
}

// File is the complete per-file analysis result. It is rebuilt per request
// and discarded unless retained by the caller.
type File struct {
	Path   string
	Module string
	Tree   *parse.Tree

	// Package is set for a package __init__ file, whose Module names the
	// package itself. Relative imports inside it resolve one level lower
	// than in a sibling module.
	Package bool

	ModuleScope *Scope
	Bindings    []*Binding
	References  []*Reference
	Wildcards   []*WildcardImport
	Dynamics    []DynamicUse

	// Errors carries per-statement resolution errors; they never abort
	// analysis of the rest of the file.
	Errors []error

	// ExportList is the statically-enumerated __all__, when present.
	// ExportsOpaque is set when __all__ exists but cannot be enumerated,
	// marking the module opaque for wildcard resolution.
	ExportList    []string
	ExportsOpaque bool

	// scopeOf maps scope-introducing nodes to their scopes; classScope
	// maps a class binding to the scope of its body; instanceOf records
	// `name = ClassName(...)` assignments for attribute heuristics.
	scopeOf    map[*parse.Node]*Scope
	classScope map[*Binding]*Scope
	instanceOf map[*Binding]string
}

// ClassScope returns the body scope of a class binding, when known.
func (f *File) ClassScope(b *Binding) *Scope {
	return f.classScope[b]
}

// Exports returns the module's wildcard-visible names and whether the set
// is statically enumerable.
func (f *File) Exports() (names []string, opaque bool) {
	if f.ExportsOpaque {
		return nil, true
	}
	if f.ExportList != nil {
		return f.ExportList, false
	}
	for name := range f.ModuleScope.Symbols {
		if len(name) > 0 && name[0] != '_' {
			names = append(names, name)
		}
	}
	return names, false
}
