package project

import (
	"os"
	"path/filepath"
	"testing"

	"resym/internal/config"
	"resym/internal/parse"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanCollectsPythonFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app.py":          "x = 1\n",
		"pkg/__init__.py": "",
		"pkg/util.py":     "y = 2\n",
		"notes.txt":       "not python",
		"README.md":       "# readme",
	})

	cfg := config.Default()
	cfg.ProjectRoot = root
	snap, err := Scan(cfg)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(snap.Files) != 3 {
		t.Fatalf("got %d files: %+v", len(snap.Files), snap.Files)
	}
	f := snap.File(filepath.Join(root, "app.py"))
	if f == nil || f.Text != "x = 1\n" {
		t.Fatalf("app.py = %+v", f)
	}
	if f.Hash != parse.Hash("x = 1\n") {
		t.Fatal("hash mismatch")
	}
}

func TestScanExcludes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app.py":                 "x = 1\n",
		"app_generated.py":       "x = 2\n",
		".venv/lib/site.py":      "z = 1\n",
		"__pycache__/app.cpython-312.py": "cached",
	})

	cfg := config.Default()
	cfg.ProjectRoot = root
	cfg.Exclude.Dirs = []string{".venv", "__pycache__"}
	cfg.Exclude.Files = []string{"*_generated.py"}

	snap, err := Scan(cfg)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(snap.Files) != 1 || filepath.Base(snap.Files[0].Path) != "app.py" {
		t.Fatalf("files = %+v", snap.Files)
	}
}

func TestScanDeterministicOrder(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.py": "",
		"a.py": "",
		"c.py": "",
	})
	cfg := config.Default()
	cfg.ProjectRoot = root
	snap, err := Scan(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(snap.Files); i++ {
		if snap.Files[i-1].Path >= snap.Files[i].Path {
			t.Fatal("files not sorted by path")
		}
	}
}

func TestHashes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "x = 1\n"})
	cfg := config.Default()
	cfg.ProjectRoot = root
	snap, err := Scan(cfg)
	if err != nil {
		t.Fatal(err)
	}
	hashes := snap.Hashes()
	if len(hashes) != 1 {
		t.Fatalf("hashes = %v", hashes)
	}
	for path, h := range hashes {
		if h != parse.Hash(snap.File(path).Text) {
			t.Fatal("hash mismatch")
		}
	}
}
