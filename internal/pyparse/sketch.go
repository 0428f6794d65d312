package pyparse

import (
	"resym/internal/parse"
	"resym/internal/worker"
)

// sketchScopes produces the worker's purely syntactic view of a tree's
// scopes and binding sites. The client's analysis layer is authoritative
// for resolution; this sketch exists so protocol consumers can inspect a
// single file without running the full semantic pass.
func sketchScopes(tree *storedTree) ([]worker.ScopeSketch, []worker.BindingSketch) {
	sk := &sketcher{text: tree.text}
	sk.visit(tree.root, -1)
	return sk.scopes, sk.bindings
}

type sketcher struct {
	text     string
	scopes   []worker.ScopeSketch
	bindings []worker.BindingSketch
	nextID   int64
}

func scopeKindFor(kind string) string {
	switch kind {
	case "module":
		return "module"
	case "function_definition":
		return "function"
	case "class_definition":
		return "class"
	case "lambda":
		return "lambda"
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		return "comprehension"
	}
	return ""
}

func (sk *sketcher) visit(n *parse.Node, scopeID int64) {
	if kind := scopeKindFor(n.Kind); kind != "" {
		id := sk.nextID
		sk.nextID++
		sk.scopes = append(sk.scopes, worker.ScopeSketch{ID: id, Kind: kind, Span: n.Span, Parent: scopeID})

		// def and class names bind in the enclosing scope.
		if name := n.ChildByField("name"); name != nil && scopeID >= 0 {
			bindKind := "function"
			if n.Kind == "class_definition" {
				bindKind = "class"
			}
			sk.bind(name, bindKind, scopeID)
		}
		if params := n.ChildByField("parameters"); params != nil {
			sk.bindIdentifiers(params, "parameter", id)
		}

		for _, c := range n.Children {
			if c.Field == "name" || c.Field == "parameters" {
				continue
			}
			sk.visit(c, id)
		}
		return
	}

	switch n.Kind {
	case "assignment", "augmented_assignment":
		if left := n.ChildByField("left"); left != nil {
			sk.bindIdentifiers(left, "assignment", scopeID)
		}
	case "for_statement":
		if left := n.ChildByField("left"); left != nil {
			sk.bindIdentifiers(left, "assignment", scopeID)
		}
	case "import_statement", "import_from_statement":
		for _, c := range n.Children {
			if c.Kind == "aliased_import" {
				if alias := c.ChildByField("alias"); alias != nil {
					sk.bind(alias, "import_alias", scopeID)
				}
			} else if c.Field == "name" && (c.Kind == "identifier" || c.Kind == "dotted_name") {
				sk.bind(c, "import", scopeID)
			}
		}
	}

	for _, c := range n.Children {
		sk.visit(c, scopeID)
	}
}

func (sk *sketcher) bind(n *parse.Node, kind string, scopeID int64) {
	sk.bindings = append(sk.bindings, worker.BindingSketch{
		ID:    int64(len(sk.bindings)),
		Name:  sk.text[n.Span.Start:n.Span.End],
		Kind:  kind,
		Span:  n.Span,
		Scope: scopeID,
	})
}

func (sk *sketcher) bindIdentifiers(n *parse.Node, kind string, scopeID int64) {
	n.Walk(func(c *parse.Node) bool {
		switch c.Kind {
		case "identifier":
			sk.bind(c, kind, scopeID)
			return false
		case "attribute", "subscript", "default_parameter", "typed_default_parameter":
			// Attribute and subscript targets do not bind names; for
			// defaulted parameters only the name child binds.
			if c.Kind == "default_parameter" || c.Kind == "typed_default_parameter" {
				if name := c.ChildByField("name"); name != nil {
					sk.bind(name, kind, scopeID)
				}
			}
			return false
		}
		return true
	})
}
