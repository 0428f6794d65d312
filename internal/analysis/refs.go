package analysis

import (
	"resym/internal/parse"
)

// CollectReferences runs the second per-file pass, attaching every name
// use to its binding via scope-chain lookup. Unresolved names are kept
// with a nil binding. BuildScopes must have run on the file first.
func CollectReferences(f *File) {
	c := &collector{file: f}
	c.walk(f.Tree.Root, f.ModuleScope, RefRead)
}

type collector struct {
	file *File
}

func (c *collector) walk(n *parse.Node, scope *Scope, kind RefKind) {
	switch n.Kind {
	case "function_definition":
		fn := c.file.scopeOf[n]
		if params := n.ChildByField("parameters"); params != nil {
			// Defaults and annotations evaluate where the def appears.
			c.walkParamExprs(params, scope)
		}
		if rt := n.ChildByField("return_type"); rt != nil {
			c.walk(rt, scope, RefRead)
		}
		if body := n.ChildByField("body"); body != nil && fn != nil {
			c.walk(body, fn, RefRead)
		}
		return
	case "lambda":
		fn := c.file.scopeOf[n]
		if params := n.ChildByField("parameters"); params != nil {
			c.walkParamExprs(params, scope)
		}
		if body := n.ChildByField("body"); body != nil && fn != nil {
			c.walk(body, fn, RefRead)
		}
		return
	case "class_definition":
		cls := c.file.scopeOf[n]
		if sup := n.ChildByField("superclasses"); sup != nil {
			c.walk(sup, scope, RefRead)
		}
		if body := n.ChildByField("body"); body != nil && cls != nil {
			c.walk(body, cls, RefRead)
		}
		return
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		c.walkComprehension(n, scope)
		return

	case "assignment", "augmented_assignment":
		for _, child := range n.Children {
			if child.Field == "left" {
				c.walkTarget(child, scope)
			} else {
				c.walk(child, scope, RefRead)
			}
		}
		return
	case "for_statement", "for_in_clause":
		for _, child := range n.Children {
			if child.Field == "left" {
				c.walkTarget(child, scope)
			} else {
				c.walk(child, scope, RefRead)
			}
		}
		return
	case "named_expression":
		for _, child := range n.Children {
			if child.Field == "name" {
				c.walkTarget(child, scope)
			} else {
				c.walk(child, scope, RefRead)
			}
		}
		return
	case "as_pattern":
		for _, child := range n.Children {
			if child.Field == "alias" {
				c.walkTarget(child, scope)
			} else {
				c.walk(child, scope, RefRead)
			}
		}
		return

	case "call":
		for _, child := range n.Children {
			if child.Field == "function" && child.Kind == "identifier" {
				c.record(child, scope, RefCall)
			} else {
				c.walk(child, scope, RefRead)
			}
		}
		return
	case "attribute":
		c.walkAttribute(n, scope)
		return
	case "keyword_argument":
		// The keyword name is a parameter mention, not a lexical use.
		if value := n.ChildByField("value"); value != nil {
			c.walk(value, scope, RefRead)
		}
		return

	case "import_statement", "import_from_statement":
		// Import names are declarations; the resolver owns their edits.
		return
	case "global_statement", "nonlocal_statement":
		// The declared names are mentions of the redirect target and
		// must be rewritten with it.
		for _, child := range n.Children {
			if child.Kind == "identifier" {
				c.record(child, scope, RefWrite)
			}
		}
		return

	case "identifier":
		c.record(n, scope, kind)
		return
	}

	for _, child := range n.Children {
		c.walk(child, scope, RefRead)
	}
}

// walkComprehension attributes the outermost iterable to the enclosing
// scope; everything else resolves inside the comprehension scope.
func (c *collector) walkComprehension(n *parse.Node, scope *Scope) {
	comp := c.file.scopeOf[n]
	if comp == nil {
		return
	}
	first := true
	for _, child := range n.Children {
		if child.Kind != "for_in_clause" {
			c.walk(child, comp, RefRead)
			continue
		}
		for _, cc := range child.Children {
			switch {
			case cc.Field == "left":
				c.walkTarget(cc, comp)
			case cc.Field == "right" && first:
				c.walk(cc, scope, RefRead)
			default:
				c.walk(cc, comp, RefRead)
			}
		}
		first = false
	}
}

func (c *collector) walkTarget(n *parse.Node, scope *Scope) {
	switch n.Kind {
	case "identifier":
		c.record(n, scope, RefWrite)
	case "attribute":
		c.walkAttribute(n, scope)
	case "pattern_list", "tuple_pattern", "list_pattern", "list_splat_pattern":
		for _, child := range n.Children {
			c.walkTarget(child, scope)
		}
	default:
		c.walk(n, scope, RefRead)
	}
}

// walkAttribute records the object reference and, when the receiver can
// be tied to a known class, a heuristic reference for the attribute name.
func (c *collector) walkAttribute(n *parse.Node, scope *Scope) {
	obj := n.ChildByField("object")
	attr := n.ChildByField("attribute")
	if obj != nil {
		c.walk(obj, scope, RefRead)
	}
	if obj == nil || attr == nil || obj.Kind != "identifier" || attr.Kind != "identifier" {
		return
	}

	cls := c.receiverClass(c.file.Tree.TextOf(obj), scope)
	if cls == nil {
		return
	}
	name := c.file.Tree.TextOf(attr)
	target, ok := cls.Symbols[name]
	if !ok {
		return
	}
	c.file.References = append(c.file.References, &Reference{
		Name:      name,
		Span:      attr.Span,
		Scope:     scope,
		Binding:   target,
		Kind:      RefAttributeTarget,
		Heuristic: true,
	})
}

// receiverClass maps a receiver name to a class body scope: `self` inside a
// method, or a name assigned from a direct constructor call.
func (c *collector) receiverClass(objName string, scope *Scope) *Scope {
	if objName == "self" {
		for cur := scope; cur != nil; cur = cur.Parent {
			if cur.Kind == ScopeClass {
				return cur
			}
		}
		return nil
	}
	ob := scope.Lookup(objName)
	if ob == nil {
		return nil
	}
	clsName, ok := c.file.instanceOf[ob]
	if !ok {
		return nil
	}
	cb := scope.Lookup(clsName)
	if cb == nil || cb.Kind != BindClassDef {
		return nil
	}
	return c.file.classScope[cb]
}

// walkParamExprs visits only the expression positions of a parameter
// list: default values and type annotations.
func (c *collector) walkParamExprs(params *parse.Node, scope *Scope) {
	for _, child := range params.Children {
		switch child.Kind {
		case "default_parameter", "typed_default_parameter":
			if v := child.ChildByField("value"); v != nil {
				c.walk(v, scope, RefRead)
			}
			if t := child.ChildByField("type"); t != nil {
				c.walk(t, scope, RefRead)
			}
		case "typed_parameter":
			for _, cc := range child.Children {
				if cc.Kind == "type" {
					c.walk(cc, scope, RefRead)
				}
			}
		}
	}
}

func (c *collector) record(n *parse.Node, scope *Scope, kind RefKind) {
	name := c.file.Tree.TextOf(n)
	binding := scope.Lookup(name)
	if binding != nil && binding.Path == c.file.Path && binding.Decl == n.Span {
		return
	}
	c.file.References = append(c.file.References, &Reference{
		Name:    name,
		Span:    n.Span,
		Scope:   scope,
		Binding: binding,
		Kind:    kind,
	})
}
