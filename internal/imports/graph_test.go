package imports

import (
	"sort"
	"strings"
	"testing"

	"resym/internal/analysis"
	"resym/internal/core/errors"
	"resym/internal/parse"
	"resym/internal/pyparse"
)

// project parses one source per module name and resolves the set. A key
// ending in ".__init__" builds the package's __init__.py under the
// package's own module name.
func project(t *testing.T, mods map[string]string) (*Graph, map[string]*analysis.File) {
	t.Helper()
	pool := pyparse.NewPool()
	names := make([]string, 0, len(mods))
	for name := range mods {
		names = append(names, name)
	}
	sort.Strings(names)

	files := make([]*analysis.File, 0, len(names))
	byModule := make(map[string]*analysis.File)
	for _, name := range names {
		src := mods[name]
		path := strings.ReplaceAll(name, ".", "/") + ".py"
		module := strings.TrimSuffix(name, ".__init__")
		res := pool.ParseSource([]byte(src))
		tree := &parse.Tree{Path: path, Text: src, Root: res.Root, Tokens: res.Tokens}
		f := analysis.BuildScopes(tree, path)
		f.Module = module
		analysis.CollectReferences(f)
		files = append(files, f)
		byModule[name] = f
	}
	return Resolve(files), byModule
}

func TestModuleName(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"proj/app.py", "app"},
		{"proj/pkg/__init__.py", "pkg"},
		{"proj/pkg/sub/mod.py", "pkg.sub.mod"},
	}
	for _, c := range cases {
		got, err := ModuleName("proj", c.path)
		if err != nil {
			t.Fatalf("ModuleName(%s): %v", c.path, err)
		}
		if got != c.want {
			t.Fatalf("ModuleName(%s) = %s, want %s", c.path, got, c.want)
		}
	}
	if _, err := ModuleName("proj", "elsewhere/app.py"); !errors.IsCode(err, errors.CodeResolution) {
		t.Fatalf("outside root: %v", err)
	}
}

func TestDirectImportOrigin(t *testing.T) {
	g, files := project(t, map[string]string{
		"a": "def helper():\n    return 1\n",
		"b": "from a import helper\n\nhelper()\n",
	})
	if len(g.Errors) != 0 {
		t.Fatalf("errors: %v", g.Errors)
	}
	imported := files["b"].ModuleScope.Symbols["helper"]
	origin := g.Origin(imported)
	if origin == imported {
		t.Fatal("import not chased to its origin")
	}
	if origin.Path != "a.py" || origin.Kind != analysis.BindFunctionDef {
		t.Fatalf("origin = %+v", origin)
	}
}

func TestAliasedImportOrigin(t *testing.T) {
	g, files := project(t, map[string]string{
		"a": "def helper():\n    return 1\n",
		"b": "from a import helper as h\n\nh()\n",
	})
	alias := files["b"].ModuleScope.Symbols["h"]
	if alias.Kind != analysis.BindImportAlias {
		t.Fatalf("alias kind = %s", alias.Kind)
	}
	if g.Origin(alias).Path != "a.py" {
		t.Fatalf("alias origin = %+v", g.Origin(alias))
	}
}

func TestReExportChain(t *testing.T) {
	g, files := project(t, map[string]string{
		"a": "x = 1\n",
		"b": "from a import x\n",
		"c": "from b import x\n\ny = x\n",
	})
	if len(g.Errors) != 0 {
		t.Fatalf("errors: %v", g.Errors)
	}
	origin := g.Origin(files["c"].ModuleScope.Symbols["x"])
	if origin.Path != "a.py" || origin.Kind != analysis.BindAssignment {
		t.Fatalf("chain origin = %+v", origin)
	}
}

func TestReExportCycle(t *testing.T) {
	g, _ := project(t, map[string]string{
		"a": "from b import x\n",
		"b": "from a import x\n",
	})
	if len(g.Errors) == 0 {
		t.Fatal("cycle produced no error")
	}
	for _, err := range g.Errors {
		if !errors.IsCode(err, errors.CodeResolution) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestExternalModuleIsItsOwnOrigin(t *testing.T) {
	g, files := project(t, map[string]string{
		"a": "import os\n\nos.getcwd()\n",
	})
	b := files["a"].ModuleScope.Symbols["os"]
	if g.Origin(b) != b {
		t.Fatal("external import chased somewhere")
	}
}

func TestMissingSymbol(t *testing.T) {
	g, _ := project(t, map[string]string{
		"a": "x = 1\n",
		"b": "from a import nope\n",
	})
	if len(g.Errors) != 1 || !errors.IsCode(g.Errors[0], errors.CodeResolution) {
		t.Fatalf("errors = %v", g.Errors)
	}
}

func TestRelativeImport(t *testing.T) {
	g, files := project(t, map[string]string{
		"pkg":      "",
		"pkg.util": "def tool():\n    return 1\n",
		"pkg.app":  "from .util import tool\n\ntool()\n",
	})
	imported := files["pkg.app"].ModuleScope.Symbols["tool"]
	origin := g.Origin(imported)
	if origin == imported || origin.Path != "pkg/util.py" {
		t.Fatalf("relative origin = %+v", origin)
	}
}

func TestRelativeImportFromPackageInit(t *testing.T) {
	g, files := project(t, map[string]string{
		"pkg.__init__": "from .base import helper\n",
		"pkg.base":     "def helper():\n    return 1\n",
		"app":          "from pkg import helper\n\nhelper()\n",
	})
	if len(g.Errors) != 0 {
		t.Fatalf("errors = %v", g.Errors)
	}
	reexport := files["pkg.__init__"].ModuleScope.Symbols["helper"]
	if origin := g.Origin(reexport); origin == reexport || origin.Path != "pkg/base.py" {
		t.Fatalf("init re-export origin = %+v", origin)
	}
	imported := files["app"].ModuleScope.Symbols["helper"]
	if origin := g.Origin(imported); origin == imported || origin.Path != "pkg/base.py" {
		t.Fatalf("consumer origin = %+v", origin)
	}
}

func TestWildcardFromPackageInit(t *testing.T) {
	g, files := project(t, map[string]string{
		"pkg.__init__": "from .base import *\n\nhelper()\n",
		"pkg.base":     "def helper():\n    return 1\n",
	})
	if len(g.OpaqueWildcards["pkg/__init__.py"]) != 0 {
		t.Fatalf("package init wrongly opaque: %v", g.OpaqueWildcards)
	}
	var ref *analysis.Reference
	for _, r := range files["pkg.__init__"].References {
		if r.Name == "helper" {
			ref = r
		}
	}
	if ref == nil || ref.Binding != nil {
		t.Fatalf("helper reference = %+v", ref)
	}
	origin := g.WildcardOrigin(ref)
	if origin == nil || origin.Path != "pkg/base.py" {
		t.Fatalf("wildcard origin = %+v", origin)
	}
}

func TestRelativeEscape(t *testing.T) {
	g, _ := project(t, map[string]string{
		"top": "from ..outside import thing\n",
	})
	if len(g.Errors) != 1 || !errors.IsCode(g.Errors[0], errors.CodeResolution) {
		t.Fatalf("errors = %v", g.Errors)
	}
}

func TestWildcardResolution(t *testing.T) {
	g, files := project(t, map[string]string{
		"a": "size = 10\n",
		"b": "from a import *\n\nprint(size)\n",
	})
	var ref *analysis.Reference
	for _, r := range files["b"].References {
		if r.Name == "size" {
			ref = r
		}
	}
	if ref == nil || ref.Binding != nil {
		t.Fatalf("size reference = %+v", ref)
	}
	origin := g.WildcardOrigin(ref)
	if origin == nil || origin.Path != "a.py" {
		t.Fatalf("wildcard origin = %+v", origin)
	}
}

func TestWildcardChain(t *testing.T) {
	g, files := project(t, map[string]string{
		"a": "size = 10\n",
		"b": "from a import *\n",
		"c": "from b import *\n\nprint(size)\n",
	})
	var ref *analysis.Reference
	for _, r := range files["c"].References {
		if r.Name == "size" {
			ref = r
		}
	}
	origin := g.WildcardOrigin(ref)
	if origin == nil || origin.Path != "a.py" {
		t.Fatalf("chained wildcard origin = %+v", origin)
	}
}

func TestWildcardOpaque(t *testing.T) {
	g, files := project(t, map[string]string{
		"a": "__all__ = make_exports()\nsize = 10\n",
		"b": "from a import *\n\nprint(size)\n",
	})
	if len(g.OpaqueWildcards[files["b"].Path]) != 1 {
		t.Fatalf("opaque wildcards = %+v", g.OpaqueWildcards)
	}
	for _, r := range files["b"].References {
		if r.Name == "size" && g.WildcardOrigin(r) != nil {
			t.Fatal("opaque module still resolved a name")
		}
	}
}

func TestWildcardRespectsExportList(t *testing.T) {
	g, files := project(t, map[string]string{
		"a": "__all__ = [\"pub\"]\npub = 1\nsec = 2\n",
		"b": "from a import *\n\nprint(pub, sec)\n",
	})
	var pub, sec *analysis.Reference
	for _, r := range files["b"].References {
		switch r.Name {
		case "pub":
			pub = r
		case "sec":
			sec = r
		}
	}
	if g.WildcardOrigin(pub) == nil {
		t.Fatal("exported name not resolved")
	}
	if g.WildcardOrigin(sec) != nil {
		t.Fatal("unexported name resolved through wildcard")
	}
}
