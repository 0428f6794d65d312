package analysis

import (
	"resym/internal/parse"
)

var attrPrimitives = map[string]bool{
	"getattr": true,
	"setattr": true,
	"hasattr": true,
	"delattr": true,
}

var evalPrimitives = map[string]bool{
	"eval":    true,
	"exec":    true,
	"compile": true,
}

var accessHooks = map[string]bool{
	"__getattr__":      true,
	"__getattribute__": true,
	"__setattr__":      true,
	"__delattr__":      true,
}

// DetectDynamic scans for accesses the scope model cannot see through:
// attribute primitives, code-evaluating builtins, and attribute hook
// definitions. Literal-argument primitive calls record the named string
// so a plan can match it against the rename target.
func DetectDynamic(f *File) {
	detect(f, f.Tree.Root)
}

func detect(f *File, n *parse.Node) {
	switch n.Kind {
	case "call":
		detectCall(f, n)
	case "function_definition":
		if name := n.ChildByField("name"); name != nil {
			if text := f.Tree.TextOf(name); accessHooks[text] {
				f.Dynamics = append(f.Dynamics, DynamicUse{
					Kind: DynHook,
					Func: text,
					Span: n.Span,
				})
			}
		}
	}
	for _, c := range n.Children {
		detect(f, c)
	}
}

func detectCall(f *File, n *parse.Node) {
	fn := n.ChildByField("function")
	if fn == nil || fn.Kind != "identifier" {
		return
	}
	name := f.Tree.TextOf(fn)

	var kind DynamicUseKind
	var nameArg int
	switch {
	case attrPrimitives[name]:
		kind, nameArg = DynAttrCall, 1
	case evalPrimitives[name]:
		kind, nameArg = DynEval, 0
	default:
		return
	}

	args := n.ChildByField("arguments")
	if args == nil {
		return
	}
	var exprs []*parse.Node
	for _, c := range args.Children {
		if c.Kind != "comment" {
			exprs = append(exprs, c)
		}
	}
	use := DynamicUse{Kind: kind, Func: name, Span: n.Span}
	if nameArg < len(exprs) {
		if lit, ok := stringLiteral(f.Tree, exprs[nameArg]); ok {
			use.Arg = lit
			use.Literal = true
		}
	}
	f.Dynamics = append(f.Dynamics, use)
}

// stringLiteral returns the content of a plain string node. Anything with
// interpolation or concatenation is treated as computed.
func stringLiteral(tree *parse.Tree, n *parse.Node) (string, bool) {
	if n.Kind != "string" {
		return "", false
	}
	value := ""
	for _, c := range n.Children {
		switch c.Kind {
		case "string_content":
			if value != "" {
				return "", false
			}
			value = tree.TextOf(c)
		case "interpolation":
			return "", false
		}
	}
	return value, value != ""
}
