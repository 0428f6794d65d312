// Package apply writes a ready rename plan to disk. Application is
// file-at-a-time with per-file drift checks; a failure stops immediately
// and reports which files were already rewritten.
package apply

import (
	"context"
	"os"
	"sort"

	"resym/internal/core/errors"
	"resym/internal/parse"
	"resym/internal/plan"
	"resym/internal/shared/observability"
)

// Result reports a (possibly partial) application. Written files stay
// written; callers decide whether to surface the remainder for retry.
type Result struct {
	Written   []string
	Unwritten []string
	Failed    string
	Err       error
}

// Apply writes every file the plan touches. hashes carries the content
// hash each file had when the plan was built; a file whose on-disk
// content no longer matches rejects with a conflict before any edit of
// that file is applied.
func Apply(ctx context.Context, p *plan.Plan, hashes map[string]string) *Result {
	res := &Result{}
	if p.State != plan.StateReady {
		res.Err = errors.Newf(errors.CodeValidation, "plan is %s, not ready", p.State)
		return res
	}

	paths := p.Files()
	sort.Strings(paths)

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			res.Failed = path
			res.Err = errors.Wrap(err, errors.CodeInternal, "apply interrupted")
			res.Unwritten = paths[i:]
			return res
		}
		if err := applyFile(p, path, hashes[path]); err != nil {
			res.Failed = path
			res.Err = err
			res.Unwritten = paths[i:]
			return res
		}
		res.Written = append(res.Written, path)
		observability.FilesWritten.Inc()
	}
	return res
}

func applyFile(p *plan.Plan, path, wantHash string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.AddContext(
			errors.Wrap(err, errors.CodeNotFound, "read file"),
			errors.CtxPath, path)
	}
	text := string(raw)
	if wantHash != "" && parse.Hash(text) != wantHash {
		err := errors.New(errors.CodeConflict, "file changed since the plan was built")
		return errors.AddContext(err, errors.CtxPath, path)
	}

	rewritten, err := Rewrite(text, p.EditsFor(path))
	if err != nil {
		return errors.AddContext(err, errors.CtxPath, path)
	}

	mode := os.FileMode(0o644)
	if info, serr := os.Stat(path); serr == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(rewritten), mode); err != nil {
		return errors.AddContext(
			errors.Wrap(err, errors.CodeInternal, "write file"),
			errors.CtxPath, path)
	}
	return nil
}

// Rewrite applies one file's edits to text. Edits must arrive in
// descending offset order and be disjoint.
func Rewrite(text string, edits []plan.Edit) (string, error) {
	prevStart := len(text) + 1
	for _, e := range edits {
		if e.Span.Start < 0 || e.Span.End > len(text) || e.Span.Start > e.Span.End {
			return "", errors.Newf(errors.CodeValidation, "edit %s out of bounds", e.Span)
		}
		if e.Span.End > prevStart {
			return "", errors.Newf(errors.CodeValidation, "edit %s overlaps a later edit", e.Span)
		}
		prevStart = e.Span.Start
		text = text[:e.Span.Start] + e.NewText + text[e.Span.End:]
	}
	return text, nil
}
