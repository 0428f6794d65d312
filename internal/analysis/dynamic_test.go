package analysis

import (
	"testing"

	"resym/internal/parse"
)

func TestGetattrLiteral(t *testing.T) {
	f := analyze(t, `
value = getattr(obj, "size")
`)
	if len(f.Dynamics) != 1 {
		t.Fatalf("got %d dynamic uses", len(f.Dynamics))
	}
	d := f.Dynamics[0]
	if d.Kind != DynAttrCall || d.Func != "getattr" {
		t.Fatalf("dynamic use = %+v", d)
	}
	if !d.Literal || d.Arg != "size" {
		t.Fatalf("literal argument not captured: %+v", d)
	}
}

func TestGetattrComputed(t *testing.T) {
	f := analyze(t, `
value = getattr(obj, key)
`)
	if len(f.Dynamics) != 1 || f.Dynamics[0].Literal {
		t.Fatalf("dynamics = %+v", f.Dynamics)
	}
}

func TestGetattrFStringIsComputed(t *testing.T) {
	f := analyze(t, `
value = getattr(obj, f"{key}")
`)
	if len(f.Dynamics) != 1 || f.Dynamics[0].Literal {
		t.Fatalf("dynamics = %+v", f.Dynamics)
	}
}

func TestSetattrSecondArgument(t *testing.T) {
	f := analyze(t, `
setattr(obj, "size", 3)
`)
	if len(f.Dynamics) != 1 || f.Dynamics[0].Arg != "size" {
		t.Fatalf("dynamics = %+v", f.Dynamics)
	}
}

func TestEvalLiteral(t *testing.T) {
	f := analyze(t, `
result = eval("size + 1")
`)
	if len(f.Dynamics) != 1 {
		t.Fatalf("got %d dynamic uses", len(f.Dynamics))
	}
	d := f.Dynamics[0]
	if d.Kind != DynEval || !d.Literal || d.Arg != "size + 1" {
		t.Fatalf("dynamic use = %+v", d)
	}
}

func TestAccessHookDefinition(t *testing.T) {
	f := analyze(t, `
class Proxy:
    def __getattr__(self, name):
        return None
`)
	var found bool
	for _, d := range f.Dynamics {
		if d.Kind == DynHook && d.Func == "__getattr__" {
			found = true
		}
	}
	if !found {
		t.Fatalf("hook not detected: %+v", f.Dynamics)
	}
}

func TestPlainCallsNotFlagged(t *testing.T) {
	f := analyze(t, `
def compute(x):
    return x

compute(1)
`)
	if len(f.Dynamics) != 0 {
		t.Fatalf("dynamics = %+v", f.Dynamics)
	}
}

func TestMentionsInStringsAndComments(t *testing.T) {
	src := `# size is cached here
def f():
    """update size first"""
    size = 1
    resize = size
    return "oversized"
`
	f := analyze(t, src)
	ms := Mentions(f.Tree, "size")
	if len(ms) != 2 {
		t.Fatalf("got %d mentions, want comment and docstring only: %+v", len(ms), ms)
	}
	var comment, str int
	for _, m := range ms {
		if got := src[m.Span.Start:m.Span.End]; got != "size" {
			t.Fatalf("mention span covers %q", got)
		}
		switch m.Class {
		case parse.ClassComment:
			comment++
		case parse.ClassString:
			str++
		}
	}
	if comment != 1 || str != 1 {
		t.Fatalf("mention classes: %d comment %d string", comment, str)
	}
}

func TestMentionsWordBoundary(t *testing.T) {
	src := `# resize and size_hint are different from size
`
	f := analyze(t, src)
	ms := Mentions(f.Tree, "size")
	if len(ms) != 1 {
		t.Fatalf("got %d mentions, want 1: %+v", len(ms), ms)
	}
}
