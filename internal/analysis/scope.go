package analysis

import (
	"path/filepath"
	"strings"

	"resym/internal/core/errors"
	"resym/internal/parse"
)

// BuildScopes runs the first per-file pass: a single top-down traversal
// producing the scope tree and binding table. Scope bodies are processed
// breadth-first so every scope's own symbol table is complete before any
// nested scope resolves global/nonlocal redirects against it.
func BuildScopes(tree *parse.Tree, path string) *File {
	f := &File{
		Path:       path,
		Package:    filepath.Base(path) == "__init__.py",
		Tree:       tree,
		scopeOf:    make(map[*parse.Node]*Scope),
		classScope: make(map[*Binding]*Scope),
		instanceOf: make(map[*Binding]string),
	}
	b := &builder{file: f}

	f.ModuleScope = newScope(ScopeModule, tree.Root.Span, nil)
	f.scopeOf[tree.Root] = f.ModuleScope

	b.queue = append(b.queue, pendingScope{node: tree.Root, scope: f.ModuleScope})
	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]
		b.collectBody(next.node, next.scope)
	}
	return f
}

type pendingScope struct {
	node  *parse.Node
	scope *Scope
}

type builder struct {
	file  *File
	queue []pendingScope
}

// collectBody walks the statements owned by one scope, creating bindings
// and queueing nested scope bodies for later processing.
func (b *builder) collectBody(n *parse.Node, scope *Scope) {
	switch n.Kind {
	case "module":
		for _, c := range n.Children {
			b.collect(c, scope)
		}
	case "function_definition", "lambda":
		if body := n.ChildByField("body"); body != nil {
			b.collect(body, scope)
		}
	case "class_definition":
		if body := n.ChildByField("body"); body != nil {
			b.collect(body, scope)
		}
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		b.collectComprehension(n, scope)
	}
}

// collect handles one node within the current scope. Scope-introducing
// nodes create their scope immediately (so the name binds here and the
// scope tree is shaped) but defer their bodies.
func (b *builder) collect(n *parse.Node, scope *Scope) {
	switch n.Kind {
	case "function_definition":
		b.enterFunction(n, scope, ScopeFunction)
		return
	case "lambda":
		b.enterFunction(n, scope, ScopeLambda)
		return
	case "class_definition":
		b.enterClass(n, scope)
		return
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		comp := newScope(ScopeComprehension, n.Span, scope)
		b.file.scopeOf[n] = comp
		b.queue = append(b.queue, pendingScope{node: n, scope: comp})
		return

	case "assignment":
		b.collectAssignment(n, scope)
		return
	case "augmented_assignment":
		if left := n.ChildByField("left"); left != nil {
			b.bindTargets(left, scope)
		}
		if right := n.ChildByField("right"); right != nil {
			b.collect(right, scope)
		}
		return
	case "for_statement":
		if left := n.ChildByField("left"); left != nil {
			b.bindTargets(left, scope)
		}
		for _, c := range n.Children {
			if c.Field != "left" {
				b.collect(c, scope)
			}
		}
		return
	case "as_pattern":
		// with ... as x, except ... as e
		for _, c := range n.Children {
			if c.Field == "alias" {
				b.bindTargets(c, scope)
			} else {
				b.collect(c, scope)
			}
		}
		return
	case "named_expression":
		// Walrus targets bind in the nearest non-comprehension scope.
		if name := n.ChildByField("name"); name != nil && name.Kind == "identifier" {
			target := scope
			for target.Kind == ScopeComprehension {
				target = target.Parent
			}
			b.bindName(name, BindAssignment, target, nil)
		}
		if value := n.ChildByField("value"); value != nil {
			b.collect(value, scope)
		}
		return

	case "global_statement":
		for _, c := range n.Children {
			if c.Kind != "identifier" {
				continue
			}
			name := b.file.Tree.TextOf(c)
			module := b.moduleScope(scope)
			target, ok := module.Symbols[name]
			if !ok {
				target = b.newBinding(name, BindAssignment, module, c.Span, nil)
			}
			if scope != module {
				scope.Redirect(name, target)
			}
		}
		return
	case "nonlocal_statement":
		for _, c := range n.Children {
			if c.Kind != "identifier" {
				continue
			}
			name := b.file.Tree.TextOf(c)
			if target := enclosingFunctionBinding(scope, name); target != nil {
				scope.Redirect(name, target)
			} else {
				err := errors.Newf(errors.CodeResolution, "no binding for nonlocal %s", name)
				err = errors.AddContext(err, errors.CtxPath, b.file.Path)
				err = errors.AddContext(err, errors.CtxSpan, c.Span.String())
				b.file.Errors = append(b.file.Errors, err)
			}
		}
		return

	case "import_statement":
		b.collectImport(n, scope)
		return
	case "import_from_statement":
		b.collectFromImport(n, scope)
		return
	}

	for _, c := range n.Children {
		b.collect(c, scope)
	}
}

func (b *builder) enterFunction(n *parse.Node, scope *Scope, kind ScopeKind) {
	if kind == ScopeFunction {
		if name := n.ChildByField("name"); name != nil {
			b.bindName(name, BindFunctionDef, scope, nil)
		}
	}
	fn := newScope(kind, n.Span, scope)
	b.file.scopeOf[n] = fn
	if params := n.ChildByField("parameters"); params != nil {
		b.bindParameters(params, fn)
	}
	b.queue = append(b.queue, pendingScope{node: n, scope: fn})
}

func (b *builder) enterClass(n *parse.Node, scope *Scope) {
	var binding *Binding
	if name := n.ChildByField("name"); name != nil {
		binding = b.bindName(name, BindClassDef, scope, nil)
	}
	cls := newScope(ScopeClass, n.Span, scope)
	b.file.scopeOf[n] = cls
	if binding != nil {
		b.file.classScope[binding] = cls
	}
	b.queue = append(b.queue, pendingScope{node: n, scope: cls})
}

func (b *builder) collectComprehension(n *parse.Node, scope *Scope) {
	first := true
	for _, c := range n.Children {
		if c.Kind != "for_in_clause" {
			// Body expression and if_clause conditions. Walrus targets
			// and nested scopes in them still need the binding pass.
			b.collect(c, scope)
			continue
		}
		if left := c.ChildByField("left"); left != nil {
			b.bindTargets(left, scope)
		}
		if right := c.ChildByField("right"); right != nil {
			if first {
				// The outermost iterable is evaluated in the
				// enclosing scope.
				b.collect(right, scope.Parent)
			} else {
				b.collect(right, scope)
			}
		}
		first = false
	}
}

func (b *builder) collectAssignment(n *parse.Node, scope *Scope) {
	left := n.ChildByField("left")
	right := n.ChildByField("right")

	if left != nil {
		b.bindTargets(left, scope)
	}
	if right != nil {
		b.collect(right, scope)
	}

	// Track the export list and simple instance assignments.
	if left != nil && left.Kind == "identifier" {
		name := b.file.Tree.TextOf(left)
		if name == "__all__" && scope.Kind == ScopeModule {
			b.recordExportList(right)
		}
		if right != nil && right.Kind == "call" {
			if fn := right.ChildByField("function"); fn != nil && fn.Kind == "identifier" {
				if binding, ok := scope.Symbols[name]; ok {
					b.file.instanceOf[binding] = b.file.Tree.TextOf(fn)
				}
			}
		}
	}
}

// recordExportList captures a statically-enumerable __all__. Anything
// else makes the module opaque to wildcard resolution.
func (b *builder) recordExportList(right *parse.Node) {
	if right == nil || (right.Kind != "list" && right.Kind != "tuple") {
		b.file.ExportsOpaque = true
		return
	}
	var names []string
	for _, c := range right.Children {
		if c.Kind != "string" {
			b.file.ExportsOpaque = true
			return
		}
		value := ""
		for _, sc := range c.Children {
			if sc.Kind == "string_content" {
				value = b.file.Tree.TextOf(sc)
			}
		}
		if value == "" {
			b.file.ExportsOpaque = true
			return
		}
		names = append(names, value)
	}
	b.file.ExportList = names
}

func (b *builder) collectImport(n *parse.Node, scope *Scope) {
	for _, c := range n.Children {
		switch c.Kind {
		case "dotted_name":
			// `import a.b` binds the root package name.
			root := c
			if len(c.Children) > 0 {
				root = c.Children[0]
			}
			b.bindName(root, BindImport, scope, &ImportRef{
				Module:   b.file.Tree.TextOf(c),
				ItemSpan: root.Span,
				StmtSpan: n.Span,
			})
		case "identifier":
			b.bindName(c, BindImport, scope, &ImportRef{
				Module:   b.file.Tree.TextOf(c),
				ItemSpan: c.Span,
				StmtSpan: n.Span,
			})
		case "aliased_import":
			name := c.ChildByField("name")
			alias := c.ChildByField("alias")
			if name == nil || alias == nil {
				continue
			}
			b.bindName(alias, BindImportAlias, scope, &ImportRef{
				Module:   b.file.Tree.TextOf(name),
				Alias:    b.file.Tree.TextOf(alias),
				ItemSpan: name.Span,
				StmtSpan: n.Span,
			})
		}
	}
}

func (b *builder) collectFromImport(n *parse.Node, scope *Scope) {
	module, relative := fromModule(b.file.Tree, n)

	if wc := n.ChildOfKind("wildcard_import"); wc != nil {
		b.file.Wildcards = append(b.file.Wildcards, &WildcardImport{
			Module:   module,
			Relative: relative,
			Span:     n.Span,
		})
		return
	}

	for _, c := range n.Children {
		if c.Field != "name" {
			continue
		}
		switch c.Kind {
		case "identifier", "dotted_name":
			b.bindName(c, BindImport, scope, &ImportRef{
				Module:   module,
				Item:     b.file.Tree.TextOf(c),
				Relative: relative,
				ItemSpan: c.Span,
				StmtSpan: n.Span,
			})
		case "aliased_import":
			name := c.ChildByField("name")
			alias := c.ChildByField("alias")
			if name == nil || alias == nil {
				continue
			}
			b.bindName(alias, BindImportAlias, scope, &ImportRef{
				Module:   module,
				Item:     b.file.Tree.TextOf(name),
				Alias:    b.file.Tree.TextOf(alias),
				Relative: relative,
				ItemSpan: name.Span,
				StmtSpan: n.Span,
			})
		}
	}
}

// fromModule extracts the module text and relative depth of a
// from-import statement.
func fromModule(tree *parse.Tree, n *parse.Node) (string, int) {
	mn := n.ChildByField("module_name")
	if mn == nil {
		return "", 0
	}
	switch mn.Kind {
	case "dotted_name":
		return tree.TextOf(mn), 0
	case "relative_import":
		depth := 0
		module := ""
		for _, c := range mn.Children {
			switch c.Kind {
			case "import_prefix":
				depth = strings.Count(tree.TextOf(c), ".")
			case "dotted_name":
				module = tree.TextOf(c)
			}
		}
		return module, depth
	}
	return tree.TextOf(mn), 0
}

func (b *builder) bindParameters(params *parse.Node, scope *Scope) {
	for _, c := range params.Children {
		switch c.Kind {
		case "identifier":
			b.bindName(c, BindParameter, scope, nil)
		case "typed_parameter":
			if len(c.Children) > 0 {
				b.bindParameters(c, scope)
			}
		case "default_parameter", "typed_default_parameter":
			if name := c.ChildByField("name"); name != nil {
				b.bindName(name, BindParameter, scope, nil)
			}
		case "list_splat_pattern", "dictionary_splat_pattern", "tuple_pattern":
			b.bindParameters(c, scope)
		}
	}
}

// bindTargets creates assignment bindings for every plain name in an
// assignment-target pattern. Attribute and subscript targets bind nothing.
func (b *builder) bindTargets(n *parse.Node, scope *Scope) {
	switch n.Kind {
	case "identifier":
		b.bindName(n, BindAssignment, scope, nil)
	case "attribute", "subscript":
		return
	case "pattern_list", "tuple_pattern", "list_pattern", "list_splat_pattern":
		for _, c := range n.Children {
			b.bindTargets(c, scope)
		}
	}
}

// bindName creates a binding unless the name is redirected or already
// bound in this scope; the first declaration point wins.
func (b *builder) bindName(n *parse.Node, kind BindingKind, scope *Scope, imp *ImportRef) *Binding {
	name := b.file.Tree.TextOf(n)
	if target, ok := scope.Redirected(name); ok {
		return target
	}
	if existing, ok := scope.Symbols[name]; ok {
		return existing
	}
	return b.newBinding(name, kind, scope, n.Span, imp)
}

func (b *builder) newBinding(name string, kind BindingKind, scope *Scope, decl parse.Span, imp *ImportRef) *Binding {
	nb := &Binding{
		Name:   name,
		Kind:   kind,
		Scope:  scope,
		Decl:   decl,
		Path:   b.file.Path,
		Import: imp,
	}
	scope.Symbols[name] = nb
	b.file.Bindings = append(b.file.Bindings, nb)
	return nb
}

func (b *builder) moduleScope(scope *Scope) *Scope {
	cur := scope
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// enclosingFunctionBinding finds the nearest enclosing function-like
// scope already binding name, for nonlocal resolution. Module and class
// scopes never qualify.
func enclosingFunctionBinding(scope *Scope, name string) *Binding {
	for cur := scope.Parent; cur != nil; cur = cur.Parent {
		switch cur.Kind {
		case ScopeModule:
			return nil
		case ScopeClass:
			continue
		}
		if b, ok := cur.Symbols[name]; ok {
			return b
		}
	}
	return nil
}
