// Package project scans the configured source roots into an immutable
// snapshot: the set of Python files, their contents, and their content
// hashes. Plans and analyses are always built against one snapshot.
package project

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"resym/internal/config"
	"resym/internal/parse"
)

// SourceFile is one scanned file. Text and Hash are fixed at scan time;
// later on-disk changes are detected by re-hashing, never by mutating
// the snapshot.
type SourceFile struct {
	Path string
	Text string
	Hash string
}

// Snapshot is the file set one analysis run works on.
type Snapshot struct {
	Root  string
	Roots []string
	Files []SourceFile

	byPath map[string]*SourceFile
}

// RootOf returns the scan root containing path, preferring the most
// specific one.
func (s *Snapshot) RootOf(path string) string {
	best := s.Root
	bestLen := -1
	for _, r := range s.Roots {
		rel, err := filepath.Rel(r, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if len(r) > bestLen {
			best, bestLen = r, len(r)
		}
	}
	return best
}

func (s *Snapshot) File(path string) *SourceFile {
	return s.byPath[path]
}

// Hashes returns the content hash per path, in the form the applier's
// drift check consumes.
func (s *Snapshot) Hashes() map[string]string {
	out := make(map[string]string, len(s.Files))
	for _, f := range s.Files {
		out[f.Path] = f.Hash
	}
	return out
}

// Scan walks the configured roots and reads every Python file not
// excluded. Unreadable files fail the scan; exclusion patterns match
// base names.
func Scan(cfg *config.Config) (*Snapshot, error) {
	dirGlobs := make([]glob.Glob, 0, len(cfg.Exclude.Dirs))
	for _, p := range cfg.Exclude.Dirs {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude dir pattern %q: %w", p, err)
		}
		dirGlobs = append(dirGlobs, g)
	}
	fileGlobs := make([]glob.Glob, 0, len(cfg.Exclude.Files))
	for _, p := range cfg.Exclude.Files {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude file pattern %q: %w", p, err)
		}
		fileGlobs = append(fileGlobs, g)
	}

	snap := &Snapshot{
		Root:   cfg.ProjectRoot,
		Roots:  roots(cfg),
		byPath: make(map[string]*SourceFile),
	}
	for _, root := range snap.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			base := filepath.Base(path)
			if d.IsDir() {
				for _, g := range dirGlobs {
					if g.Match(base) {
						return filepath.SkipDir
					}
				}
				return nil
			}
			if filepath.Ext(path) != ".py" {
				return nil
			}
			for _, g := range fileGlobs {
				if g.Match(base) {
					return nil
				}
			}
			raw, rerr := os.ReadFile(path)
			if rerr != nil {
				return rerr
			}
			text := string(raw)
			snap.Files = append(snap.Files, SourceFile{
				Path: path,
				Text: text,
				Hash: parse.Hash(text),
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
	}

	sort.Slice(snap.Files, func(i, j int) bool { return snap.Files[i].Path < snap.Files[j].Path })
	for i := range snap.Files {
		snap.byPath[snap.Files[i].Path] = &snap.Files[i]
	}
	return snap, nil
}

// roots resolves the scan roots relative to the project root,
// deduplicated and in stable order.
func roots(cfg *config.Config) []string {
	list := cfg.Roots
	if len(list) == 0 {
		list = []string{"."}
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range list {
		p := r
		if !filepath.IsAbs(p) {
			p = filepath.Join(cfg.ProjectRoot, p)
		}
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
