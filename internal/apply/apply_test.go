package apply

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"resym/internal/core/errors"
	"resym/internal/parse"
	"resym/internal/plan"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readyPlan(edits ...plan.Edit) *plan.Plan {
	return &plan.Plan{
		ID:      "test",
		OldName: "x",
		NewName: "size",
		State:   plan.StateReady,
		Edits:   edits,
	}
}

func TestApplyWritesEdits(t *testing.T) {
	dir := t.TempDir()
	src := "x = 1\ny = x\n"
	path := writeTemp(t, dir, "m.py", src)

	p := readyPlan(
		plan.Edit{Path: path, Span: parse.Span{Start: 10, End: 11}, NewText: "size"},
		plan.Edit{Path: path, Span: parse.Span{Start: 0, End: 1}, NewText: "size"},
	)
	res := Apply(context.Background(), p, map[string]string{path: parse.Hash(src)})
	if res.Err != nil {
		t.Fatalf("apply: %v", res.Err)
	}
	if len(res.Written) != 1 || res.Written[0] != path {
		t.Fatalf("written = %v", res.Written)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "size = 1\ny = size\n" {
		t.Fatalf("content = %q", got)
	}
}

func TestDriftRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "m.py", "x = 2\n")

	p := readyPlan(plan.Edit{Path: path, Span: parse.Span{Start: 0, End: 1}, NewText: "size"})
	res := Apply(context.Background(), p, map[string]string{path: parse.Hash("x = 1\n")})
	if !errors.IsCode(res.Err, errors.CodeConflict) {
		t.Fatalf("err = %v", res.Err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "x = 2\n" {
		t.Fatalf("drifted file was modified: %q", got)
	}
}

func TestPartialSuccess(t *testing.T) {
	dir := t.TempDir()
	srcA := "x = 1\n"
	pathA := writeTemp(t, dir, "a.py", srcA)
	pathB := filepath.Join(dir, "b.py") // never created

	p := readyPlan(
		plan.Edit{Path: pathA, Span: parse.Span{Start: 0, End: 1}, NewText: "size"},
		plan.Edit{Path: pathB, Span: parse.Span{Start: 0, End: 1}, NewText: "size"},
	)
	res := Apply(context.Background(), p, map[string]string{pathA: parse.Hash(srcA)})
	if res.Err == nil {
		t.Fatal("missing file did not fail")
	}
	if len(res.Written) != 1 || res.Written[0] != pathA {
		t.Fatalf("written = %v", res.Written)
	}
	if res.Failed != pathB || len(res.Unwritten) != 1 {
		t.Fatalf("failed = %s, unwritten = %v", res.Failed, res.Unwritten)
	}
	got, _ := os.ReadFile(pathA)
	if string(got) != "size = 1\n" {
		t.Fatal("successful file rolled back")
	}
}

func TestNotReadyRejected(t *testing.T) {
	p := readyPlan()
	p.State = plan.StateRejected
	res := Apply(context.Background(), p, nil)
	if !errors.IsCode(res.Err, errors.CodeValidation) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestCancelledContext(t *testing.T) {
	dir := t.TempDir()
	src := "x = 1\n"
	path := writeTemp(t, dir, "m.py", src)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := readyPlan(plan.Edit{Path: path, Span: parse.Span{Start: 0, End: 1}, NewText: "size"})
	res := Apply(ctx, p, map[string]string{path: parse.Hash(src)})
	if res.Err == nil || len(res.Written) != 0 {
		t.Fatalf("written = %v, err = %v", res.Written, res.Err)
	}
}

func TestRewriteRejectsOverlap(t *testing.T) {
	edits := []plan.Edit{
		{Span: parse.Span{Start: 3, End: 8}, NewText: "a"},
		{Span: parse.Span{Start: 0, End: 5}, NewText: "b"},
	}
	if _, err := Rewrite("0123456789", edits); !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestRewriteRejectsOutOfBounds(t *testing.T) {
	edits := []plan.Edit{{Span: parse.Span{Start: 4, End: 20}, NewText: "a"}}
	if _, err := Rewrite("short", edits); !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestPreview(t *testing.T) {
	dir := t.TempDir()
	src := "keep = 0\nx = 1\nkeep2 = 2\n"
	path := writeTemp(t, dir, "m.py", src)

	p := readyPlan(plan.Edit{Path: path, Span: parse.Span{Start: 9, End: 10}, NewText: "size"})
	out, err := Preview(p)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(out, "-x = 1") || !strings.Contains(out, "+size = 1") {
		t.Fatalf("diff:\n%s", out)
	}
	if !strings.Contains(out, "a/"+path) || !strings.Contains(out, "b/"+path) {
		t.Fatalf("diff headers:\n%s", out)
	}
	got, _ := os.ReadFile(path)
	if string(got) != src {
		t.Fatal("preview modified the file")
	}
}
