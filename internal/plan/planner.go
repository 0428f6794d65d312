package plan

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"resym/internal/analysis"
	"resym/internal/core/errors"
	"resym/internal/imports"
	"resym/internal/parse"
	"resym/internal/shared/observability"
)

// Options tunes plan construction.
type Options struct {
	// Strict escalates every warning into a rejecting conflict.
	Strict bool
	// AttributeHeuristics includes heuristic attribute matches as edits
	// instead of surfacing them as warnings only.
	AttributeHeuristics bool
	// FailedFiles lists paths whose analysis failed; their possible
	// references cannot be collected.
	FailedFiles []string
}

// Planner builds rename plans against one resolved project graph.
type Planner struct {
	graph *imports.Graph
	opts  Options
}

func New(g *imports.Graph, opts Options) *Planner {
	return &Planner{graph: g, opts: opts}
}

// Target names the symbol to rename: a file, the symbol's name, and
// optionally a byte offset disambiguating between same-named bindings.
type Target struct {
	Path   string
	Name   string
	Offset int
}

var identifierRe = regexp.MustCompile(`^[\p{L}_][\p{L}\p{Nd}_]*$`)

var pythonKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true,
	"class": true, "continue": true, "def": true, "del": true,
	"elif": true, "else": true, "except": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true, "import": true,
	"in": true, "is": true, "lambda": true, "nonlocal": true, "not": true,
	"or": true, "pass": true, "raise": true, "return": true, "try": true,
	"while": true, "with": true, "yield": true,
}

// Rename builds a plan renaming the targeted symbol to newName. A plan
// with conflicts is returned in StateRejected rather than as an error;
// only malformed requests error.
func (pl *Planner) Rename(target Target, newName string) (*Plan, error) {
	if !identifierRe.MatchString(newName) || pythonKeywords[newName] {
		err := errors.Newf(errors.CodeValidation, "%q is not a valid identifier", newName)
		return nil, errors.AddContext(err, errors.CtxSymbol, newName)
	}

	root, err := pl.locate(target)
	if err != nil {
		return nil, err
	}
	if root.Import != nil && root.Import.Item == "" && root.Import.Alias == "" {
		err := errors.New(errors.CodeNotSupported, "renaming a module requires renaming its file")
		return nil, errors.AddContext(err, errors.CtxSymbol, root.Name)
	}

	p := &Plan{
		ID:        uuid.NewString(),
		OldName:   root.Name,
		NewName:   newName,
		State:     StateCollecting,
		CreatedAt: time.Now().UTC(),
	}
	if newName == p.OldName {
		p.State = StateReady
		observability.PlansTotal.WithLabelValues(string(p.State)).Inc()
		return p, nil
	}

	renamed := pl.renameSet(root)
	pl.collect(p, renamed)

	p.State = StateValidating
	pl.validate(p, renamed, newName)

	if len(p.Conflicts) > 0 {
		p.State = StateRejected
	} else {
		p.State = StateReady
		observability.PlanEdits.Observe(float64(len(p.Edits)))
	}
	observability.PlansTotal.WithLabelValues(string(p.State)).Inc()
	return p, nil
}

// locate finds the binding the target names. With an offset the binding
// containing or referenced at that position wins; otherwise the name must
// be unambiguous within the file.
func (pl *Planner) locate(target Target) (*analysis.Binding, error) {
	f := pl.graph.FileAt(target.Path)
	if f == nil {
		err := errors.New(errors.CodeNotFound, "file not in project")
		return nil, errors.AddContext(err, errors.CtxPath, target.Path)
	}

	if target.Offset >= 0 {
		for _, b := range f.Bindings {
			if spanContains(b.Decl, target.Offset) && b.Name == target.Name {
				return pl.canonical(b), nil
			}
			if b.Import != nil && spanContains(b.Import.ItemSpan, target.Offset) {
				return pl.canonical(b), nil
			}
		}
		for _, r := range f.References {
			if !spanContains(r.Span, target.Offset) || r.Name != target.Name {
				continue
			}
			if r.Binding != nil {
				return pl.canonical(r.Binding), nil
			}
			if origin := pl.graph.WildcardOrigin(r); origin != nil {
				return origin, nil
			}
		}
		err := errors.Newf(errors.CodeNotFound, "no symbol %q at offset %d", target.Name, target.Offset)
		return nil, errors.AddContext(err, errors.CtxPath, target.Path)
	}

	var found []*analysis.Binding
	for _, b := range f.Bindings {
		if b.Name == target.Name {
			found = append(found, b)
		}
	}
	switch len(found) {
	case 0:
		err := errors.Newf(errors.CodeNotFound, "no binding named %q", target.Name)
		return nil, errors.AddContext(err, errors.CtxPath, target.Path)
	case 1:
		return pl.canonical(found[0]), nil
	}
	err := errors.Newf(errors.CodeValidation, "%q is bound %d times; an offset is required", target.Name, len(found))
	return nil, errors.AddContext(err, errors.CtxPath, target.Path)
}

// canonical maps an import binding to the declaration being renamed.
// Targeting an alias renames the alias itself and stays local; targeting
// anything else follows re-export chains to the origin.
func (pl *Planner) canonical(b *analysis.Binding) *analysis.Binding {
	if b.Kind == analysis.BindImportAlias {
		return b
	}
	return pl.graph.Origin(b)
}

// renameSet computes every binding whose name text changes: the root plus
// all plain (unaliased) importers, transitively. Aliased importers keep
// their local name; only their import statement's original item is
// rewritten, which collect handles separately.
func (pl *Planner) renameSet(root *analysis.Binding) map[*analysis.Binding]bool {
	set := map[*analysis.Binding]bool{root: true}
	for changed := true; changed; {
		changed = false
		for _, f := range pl.graph.Files() {
			for _, b := range f.Bindings {
				if b.Import == nil || set[b] || b.Kind == analysis.BindImportAlias {
					continue
				}
				if set[pl.graph.DirectTarget(b)] {
					set[b] = true
					changed = true
				}
			}
		}
	}
	return set
}

func (pl *Planner) collect(p *Plan, renamed map[*analysis.Binding]bool) {
	type site struct {
		path  string
		start int
	}
	seen := make(map[site]bool)
	add := func(path string, span parse.Span, text string) {
		k := site{path, span.Start}
		if seen[k] {
			return
		}
		seen[k] = true
		p.Edits = append(p.Edits, Edit{Path: path, Span: span, NewText: text})
	}

	for b := range renamed {
		add(b.Path, b.Decl, p.NewName)
	}

	for _, f := range pl.graph.Files() {
		for _, b := range f.Bindings {
			if b.Import == nil {
				continue
			}
			if renamed[pl.graph.DirectTarget(b)] {
				add(b.Path, b.Import.ItemSpan, p.NewName)
			}
		}
		for _, r := range f.References {
			resolved := r.Binding
			if resolved == nil {
				resolved = pl.graph.WildcardOrigin(r)
			}
			if resolved == nil || !renamed[resolved] {
				continue
			}
			if r.Heuristic {
				p.Warnings = append(p.Warnings, Warning{
					Kind:    WarnHeuristicAttribute,
					Path:    f.Path,
					Span:    r.Span,
					Message: fmt.Sprintf("attribute %s matched by receiver heuristic", r.Name),
				})
				if !pl.opts.AttributeHeuristics {
					continue
				}
			}
			add(f.Path, r.Span, p.NewName)
		}
	}

	pl.collectWarnings(p)
	pl.collectMentions(p)

	sort.Slice(p.Edits, func(i, j int) bool {
		if p.Edits[i].Path != p.Edits[j].Path {
			return p.Edits[i].Path < p.Edits[j].Path
		}
		return p.Edits[i].Span.Start > p.Edits[j].Span.Start
	})
}

func (pl *Planner) collectWarnings(p *Plan) {
	for _, f := range pl.graph.Files() {
		for _, d := range f.Dynamics {
			switch {
			case d.Literal && d.Kind == analysis.DynAttrCall && d.Arg == p.OldName:
				p.Warnings = append(p.Warnings, Warning{
					Kind: WarnDynamicAccess, Path: f.Path, Span: d.Span,
					Message: fmt.Sprintf("%s names %q dynamically", d.Func, p.OldName),
				})
			case d.Literal && d.Kind == analysis.DynEval && strings.Contains(d.Arg, p.OldName):
				p.Warnings = append(p.Warnings, Warning{
					Kind: WarnDynamicAccess, Path: f.Path, Span: d.Span,
					Message: fmt.Sprintf("%s evaluates code mentioning %q", d.Func, p.OldName),
				})
			case !d.Literal:
				// Computed arguments and dynamic-attribute hooks cannot
				// be proven to never produce the old name, anywhere in
				// the analyzed closure.
				p.Warnings = append(p.Warnings, Warning{
					Kind: WarnDynamicAccess, Path: f.Path, Span: d.Span,
					Message: fmt.Sprintf("%s may reach %q at runtime", d.Func, p.OldName),
				})
			}
		}

		for _, wc := range pl.graph.OpaqueWildcards[f.Path] {
			if !fileMentionsUnresolved(f, p.OldName) {
				continue
			}
			p.Warnings = append(p.Warnings, Warning{
				Kind: WarnOpaqueWildcard, Path: f.Path, Span: wc.Span,
				Message: fmt.Sprintf("wildcard import of %s cannot be enumerated; %q left untouched here", wc.Module, p.OldName),
			})
		}
	}

	for _, path := range pl.opts.FailedFiles {
		p.Warnings = append(p.Warnings, Warning{
			Kind: WarnIncompleteAnalysis, Path: path,
			Message: "analysis failed; references in this file were not collected",
		})
	}
}

func fileMentionsUnresolved(f *analysis.File, name string) bool {
	for _, r := range f.References {
		if r.Name == name && r.Binding == nil {
			return true
		}
	}
	return false
}

func (pl *Planner) collectMentions(p *Plan) {
	for _, path := range p.Files() {
		f := pl.graph.FileAt(path)
		if f == nil {
			continue
		}
		for _, m := range analysis.Mentions(f.Tree, p.OldName) {
			p.Mentions = append(p.Mentions, MentionSite{
				Path: path, Span: m.Span, Class: m.Class, Mention: m,
			})
		}
	}
}

// validate rejects a plan whose application would change name resolution
// anywhere, then applies strict-mode escalation and writability checks.
// Conflicts always take precedence over warnings: a plan with both is
// rejected, with warnings retained for review.
func (pl *Planner) validate(p *Plan, renamed map[*analysis.Binding]bool, newName string) {
	for rb := range renamed {
		if clash, ok := rb.Scope.Symbols[newName]; ok {
			p.Conflicts = append(p.Conflicts, Conflict{
				Path:    rb.Path,
				Span:    clash.Decl,
				Message: fmt.Sprintf("%q is already bound in the same scope", newName),
			})
		}
	}

	for _, f := range pl.graph.Files() {
		local := localRenamed(renamed, f.Path)
		for _, r := range f.References {
			if r.Heuristic {
				continue
			}
			// A wildcard-resolved reference being renamed must not
			// collide with any lexically visible newName.
			if r.Binding == nil {
				if origin := pl.graph.WildcardOrigin(r); origin != nil && renamed[origin] {
					if r.Scope.Lookup(newName) != nil {
						p.Conflicts = append(p.Conflicts, Conflict{
							Path:    f.Path,
							Span:    r.Span,
							Message: fmt.Sprintf("renamed reference would be captured by an existing %q", newName),
						})
					}
					continue
				}
				// An unresolved reference to newName (a builtin or free
				// name) must not start resolving to the renamed symbol.
				if r.Name == newName {
					for _, rb := range local {
						if r.Scope.LookupWith(newName, rb.Scope, rb) == rb {
							p.Conflicts = append(p.Conflicts, Conflict{
								Path:    f.Path,
								Span:    r.Span,
								Message: fmt.Sprintf("existing %q would be captured by the renamed symbol", newName),
							})
							break
						}
					}
				}
				continue
			}
			if len(local) == 0 && !renamed[r.Binding] {
				continue
			}
			// A renamed reference must still reach its own binding.
			if r.Binding != nil && renamed[r.Binding] {
				after := r.Scope.LookupWith(newName, r.Binding.Scope, r.Binding)
				if after != r.Binding {
					p.Conflicts = append(p.Conflicts, Conflict{
						Path:    f.Path,
						Span:    r.Span,
						Message: fmt.Sprintf("renamed reference would be captured by an existing %q", newName),
					})
				}
				continue
			}
			// An existing reference to newName must not start resolving
			// to the renamed binding.
			if r.Name != newName || r.Binding == nil {
				continue
			}
			for _, rb := range local {
				after := r.Scope.LookupWith(newName, rb.Scope, rb)
				if after == rb {
					p.Conflicts = append(p.Conflicts, Conflict{
						Path:    f.Path,
						Span:    r.Span,
						Message: fmt.Sprintf("existing %q would be captured by the renamed symbol", newName),
					})
					break
				}
			}
		}
	}

	for _, path := range p.Files() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o200 == 0 {
			p.Conflicts = append(p.Conflicts, Conflict{
				Path:    path,
				Message: "file is not writable",
			})
		}
	}

	if pl.opts.Strict {
		for _, w := range p.Warnings {
			p.Conflicts = append(p.Conflicts, Conflict{
				Path:    w.Path,
				Span:    w.Span,
				Message: fmt.Sprintf("strict mode: %s", w.Message),
			})
		}
	}
}

func localRenamed(renamed map[*analysis.Binding]bool, path string) []*analysis.Binding {
	var out []*analysis.Binding
	for b := range renamed {
		if b.Path == path {
			out = append(out, b)
		}
	}
	return out
}

func spanContains(s parse.Span, offset int) bool {
	return s.Start <= offset && offset < s.End
}
