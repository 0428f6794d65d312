package imports

import (
	"sort"

	"resym/internal/analysis"
	"resym/internal/core/errors"
)

// Graph is the resolved cross-file view over a set of analyzed files.
// Origins are computed eagerly for every import binding; resolution
// failures are recorded per binding and never abort the rest.
type Graph struct {
	byModule map[string]*analysis.File
	byPath   map[string]*analysis.File

	// origins maps import bindings to the binding they ultimately name.
	// Aliased imports resolve through their original item; re-export
	// chains are followed transitively.
	origins map[*analysis.Binding]*analysis.Binding

	// wildcardRefs attaches cross-file origins to references that only
	// resolve through a wildcard import.
	wildcardRefs map[*analysis.Reference]*analysis.Binding

	// OpaqueWildcards lists wildcard imports whose source module cannot
	// be statically enumerated, per importing file path.
	OpaqueWildcards map[string][]*analysis.WildcardImport

	// Errors carries resolution failures (unknown modules, escaped
	// relative imports, re-export cycles).
	Errors []error
}

// Resolve builds the project graph. Each file must already carry its
// Module name.
func Resolve(files []*analysis.File) *Graph {
	g := &Graph{
		byModule:        make(map[string]*analysis.File),
		byPath:          make(map[string]*analysis.File),
		origins:         make(map[*analysis.Binding]*analysis.Binding),
		wildcardRefs:    make(map[*analysis.Reference]*analysis.Binding),
		OpaqueWildcards: make(map[string][]*analysis.WildcardImport),
	}
	for _, f := range files {
		g.byModule[f.Module] = f
		g.byPath[f.Path] = f
	}
	for _, f := range files {
		for _, b := range f.Bindings {
			if b.Import == nil {
				continue
			}
			origin, err := g.chase(f, b, map[*analysis.Binding]bool{})
			if err != nil {
				g.Errors = append(g.Errors, err)
				continue
			}
			if origin != nil && origin != b {
				g.origins[b] = origin
			}
		}
	}
	for _, f := range files {
		g.resolveWildcards(f)
	}
	return g
}

// Origin maps any binding to the binding it ultimately names. Non-import
// bindings and imports of external modules map to themselves.
func (g *Graph) Origin(b *analysis.Binding) *analysis.Binding {
	if o, ok := g.origins[b]; ok {
		return o
	}
	return b
}

// WildcardOrigin returns the cross-file origin attached to a reference
// during the wildcard pass, when one exists.
func (g *Graph) WildcardOrigin(r *analysis.Reference) *analysis.Binding {
	return g.wildcardRefs[r]
}

// FileOf returns the analyzed file a binding was declared in.
func (g *Graph) FileOf(b *analysis.Binding) *analysis.File {
	return g.byPath[b.Path]
}

// Module returns the analyzed file for a dotted module name.
func (g *Graph) Module(name string) *analysis.File {
	return g.byModule[name]
}

// FileAt returns the analyzed file at a path.
func (g *Graph) FileAt(path string) *analysis.File {
	return g.byPath[path]
}

// DirectTarget resolves an import binding a single step, to the symbol it
// names in the imported module, without following re-export chains.
// Whole-module and external imports resolve to nil.
func (g *Graph) DirectTarget(b *analysis.Binding) *analysis.Binding {
	f := g.byPath[b.Path]
	if f == nil || b.Import == nil || b.Import.Item == "" {
		return nil
	}
	module, err := resolveModule(f, b.Import.Module, b.Import.Relative)
	if err != nil {
		return nil
	}
	target := g.byModule[module]
	if target == nil {
		return nil
	}
	return target.ModuleScope.Symbols[b.Import.Item]
}

// Files returns all analyzed files in deterministic path order.
func (g *Graph) Files() []*analysis.File {
	out := make([]*analysis.File, 0, len(g.byPath))
	for _, f := range g.byPath {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// chase follows one import binding to its origin. Imports of modules
// outside the project resolve to the import binding itself. A name
// imported from a module that lacks it in its module scope is a
// resolution error; a chain revisiting a binding is a cycle.
func (g *Graph) chase(f *analysis.File, b *analysis.Binding, visited map[*analysis.Binding]bool) (*analysis.Binding, error) {
	if visited[b] {
		err := errors.Newf(errors.CodeResolution, "import cycle through %s", b.Name)
		err = errors.AddContext(err, errors.CtxPath, b.Path)
		return nil, errors.AddContext(err, errors.CtxSymbol, b.Name)
	}
	visited[b] = true

	ref := b.Import
	module, err := resolveModule(f, ref.Module, ref.Relative)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, f.Path)
	}
	target := g.byModule[module]
	if target == nil {
		// External dependency; the import itself is the origin.
		return b, nil
	}
	if ref.Item == "" {
		// Whole-module import; there is no symbol origin to chase.
		return b, nil
	}
	origin, ok := target.ModuleScope.Symbols[ref.Item]
	if !ok {
		err := errors.Newf(errors.CodeResolution, "module %s has no symbol %s", module, ref.Item)
		err = errors.AddContext(err, errors.CtxModule, module)
		err = errors.AddContext(err, errors.CtxSymbol, ref.Item)
		return nil, errors.AddContext(err, errors.CtxPath, f.Path)
	}
	if origin.Import == nil {
		return origin, nil
	}
	// Re-export: keep chasing from the exporting file.
	return g.chase(target, origin, visited)
}

// resolveWildcards attaches origins to references that resolved to
// nothing lexically, trying each of the file's wildcard imports in
// order. Opaque and unknown source modules are recorded instead.
func (g *Graph) resolveWildcards(f *analysis.File) {
	if len(f.Wildcards) == 0 {
		return
	}
	sources := g.wildcardSources(f, f, map[*analysis.File]bool{f: true})

	for _, r := range f.References {
		if r.Binding != nil {
			continue
		}
		for _, s := range sources {
			if !exportsName(s, r.Name) {
				continue
			}
			origin := s.ModuleScope.Symbols[r.Name]
			if origin == nil {
				continue
			}
			// A wildcard can surface a name the source itself
			// imported; chase that too.
			if origin.Import != nil {
				chased, err := g.chase(s, origin, map[*analysis.Binding]bool{})
				if err == nil && chased != nil {
					origin = chased
				}
			}
			g.wildcardRefs[r] = origin
			break
		}
	}
}

// wildcardSources expands a file's wildcard imports transitively, in
// statement order, so names re-exported through wildcard chains still
// resolve. Opacity anywhere in the chain is attributed to the file the
// resolution started from.
func (g *Graph) wildcardSources(start, f *analysis.File, visited map[*analysis.File]bool) []*analysis.File {
	var out []*analysis.File
	for _, wc := range f.Wildcards {
		module, err := resolveModule(f, wc.Module, wc.Relative)
		if err != nil {
			g.Errors = append(g.Errors, errors.AddContext(err, errors.CtxPath, f.Path))
			continue
		}
		target := g.byModule[module]
		if target == nil {
			g.OpaqueWildcards[start.Path] = append(g.OpaqueWildcards[start.Path], wc)
			continue
		}
		if visited[target] {
			continue
		}
		visited[target] = true
		if _, opaque := target.Exports(); opaque {
			g.OpaqueWildcards[start.Path] = append(g.OpaqueWildcards[start.Path], wc)
			continue
		}
		out = append(out, target)
		out = append(out, g.wildcardSources(start, target, visited)...)
	}
	return out
}
