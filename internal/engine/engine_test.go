package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"resym/internal/audit"
	"resym/internal/config"
	"resym/internal/core/errors"
	"resym/internal/parse"
	"resym/internal/plan"
	"resym/internal/pyparse"
	"resym/internal/worker"
)

// fakeFrontend parses in-process instead of over stdio. The engine only
// needs Parse; the sketch operations are never reached from here.
type fakeFrontend struct {
	pool   *pyparse.Pool
	nextID int64
	parses int64
}

func (f *fakeFrontend) Parse(_ context.Context, path, text string) (*parse.Tree, error) {
	atomic.AddInt64(&f.parses, 1)
	res := f.pool.ParseSource([]byte(text))
	return &parse.Tree{
		ID:          atomic.AddInt64(&f.nextID, 1),
		Path:        path,
		Text:        text,
		Root:        res.Root,
		Tokens:      res.Tokens,
		Diagnostics: res.Diagnostics,
	}, nil
}

func (f *fakeFrontend) Scopes(context.Context, int64) (*worker.ScopesResult, error) {
	panic("not used")
}

func (f *fakeFrontend) References(context.Context, int64, int64) ([]worker.ReferenceSketch, error) {
	panic("not used")
}

func (f *fakeFrontend) Rewrite(context.Context, int64, []worker.Edit) (string, error) {
	panic("not used")
}

func newTestEngine(t *testing.T, root string) (*Engine, *fakeFrontend) {
	t.Helper()
	cfg := config.Default()
	cfg.ProjectRoot = root
	cfg.Roots = []string{root}
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.db")

	cache, err := parse.NewCache(cfg.Cache.Capacity)
	require.NoError(t, err)
	store, err := audit.Open(cfg.Audit.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	front := &fakeFrontend{pool: pyparse.NewPool()}
	return New(cfg, front, cache, store, nil), front
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestRenameAcrossFiles(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.py": "def helper():\n    return 1\n",
		"b.py": "from a import helper\n\nhelper()\n",
	})
	e, _ := newTestEngine(t, root)

	target := plan.Target{Path: filepath.Join(root, "a.py"), Name: "helper", Offset: -1}
	p, res, err := e.Rename(context.Background(), target, "compute")
	require.NoError(t, err)
	require.Equal(t, plan.StateApplied, p.State)
	require.Len(t, res.Written, 2)

	gotA, err := os.ReadFile(filepath.Join(root, "a.py"))
	require.NoError(t, err)
	require.Equal(t, "def compute():\n    return 1\n", string(gotA))

	gotB, err := os.ReadFile(filepath.Join(root, "b.py"))
	require.NoError(t, err)
	require.Equal(t, "from a import compute\n\ncompute()\n", string(gotB))
}

func TestRenameRecordsAudit(t *testing.T) {
	root := writeProject(t, map[string]string{"a.py": "x = 1\ny = x\n"})
	e, _ := newTestEngine(t, root)

	target := plan.Target{Path: filepath.Join(root, "a.py"), Name: "x", Offset: -1}
	p, _, err := e.Rename(context.Background(), target, "size")
	require.NoError(t, err)

	entries, err := e.audit.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, p.ID, entries[0].PlanID)
	require.Equal(t, string(plan.StateApplied), entries[0].State)
	require.Equal(t, string(plan.StateReady), entries[1].State)
}

func TestRejectedPlanReturnsConflictError(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.py": "value = 1\n\ndef f():\n    count = 2\n    return value + count\n",
	})
	e, _ := newTestEngine(t, root)

	target := plan.Target{Path: filepath.Join(root, "a.py"), Name: "value", Offset: -1}
	p, _, err := e.Rename(context.Background(), target, "count")
	require.True(t, errors.IsCode(err, errors.CodeConflict))
	require.Equal(t, plan.StateRejected, p.State)

	// Nothing may be written for a rejected plan.
	got, rerr := os.ReadFile(filepath.Join(root, "a.py"))
	require.NoError(t, rerr)
	require.Contains(t, string(got), "value = 1")
}

func TestParseCacheReused(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.py": "x = 1\n",
		"b.py": "y = 2\n",
	})
	e, front := newTestEngine(t, root)

	_, err := e.Analyze(context.Background())
	require.NoError(t, err)
	first := atomic.LoadInt64(&front.parses)
	require.EqualValues(t, 2, first)

	_, err = e.Analyze(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, first, atomic.LoadInt64(&front.parses), "unchanged files must hit the cache")
}

func TestPreviewDoesNotWrite(t *testing.T) {
	src := "x = 1\ny = x\n"
	root := writeProject(t, map[string]string{"a.py": src})
	e, _ := newTestEngine(t, root)

	target := plan.Target{Path: filepath.Join(root, "a.py"), Name: "x", Offset: -1}
	p, diffText, err := e.Preview(context.Background(), target, "size")
	require.NoError(t, err)
	require.Equal(t, plan.StateReady, p.State)
	require.Contains(t, diffText, "-x = 1")
	require.Contains(t, diffText, "+size = 1")

	got, err := os.ReadFile(filepath.Join(root, "a.py"))
	require.NoError(t, err)
	require.Equal(t, src, string(got))
}

func TestSyntaxErrorsTolerated(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.py": "x = 1\ny = x\n",
		"b.py": "def broken(:\n",
	})
	e, _ := newTestEngine(t, root)

	target := plan.Target{Path: filepath.Join(root, "a.py"), Name: "x", Offset: -1}
	p, _, err := e.PlanRename(context.Background(), target, "size")
	require.NoError(t, err)
	require.Equal(t, plan.StateReady, p.State)
}
