package apply

import (
	"os"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"resym/internal/core/errors"
	"resym/internal/plan"
)

// Preview renders the plan as a unified multi-file diff without touching
// disk. Each file gets one hunk spanning its changed line range.
func Preview(p *plan.Plan) (string, error) {
	paths := p.Files()
	sort.Strings(paths)

	var fds []*diff.FileDiff
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", errors.AddContext(
				errors.Wrap(err, errors.CodeNotFound, "read file"),
				errors.CtxPath, path)
		}
		oldText := string(raw)
		newText, err := Rewrite(oldText, p.EditsFor(path))
		if err != nil {
			return "", errors.AddContext(err, errors.CtxPath, path)
		}
		if fd := fileDiff(path, oldText, newText); fd != nil {
			fds = append(fds, fd)
		}
	}
	if len(fds) == 0 {
		return "", nil
	}
	out, err := diff.PrintMultiFileDiff(fds)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "render diff")
	}
	return string(out), nil
}

// fileDiff builds a single-hunk diff covering the first through last
// changed lines. Rename edits keep line counts stable, so the hunk stays
// tight without a full diff algorithm.
func fileDiff(path, oldText, newText string) *diff.FileDiff {
	if oldText == newText {
		return nil
	}
	oldLines := strings.SplitAfter(oldText, "\n")
	newLines := strings.SplitAfter(newText, "\n")
	trimTrailingEmpty(&oldLines)
	trimTrailingEmpty(&newLines)

	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(oldLines)-prefix && suffix < len(newLines)-prefix &&
		oldLines[len(oldLines)-1-suffix] == newLines[len(newLines)-1-suffix] {
		suffix++
	}

	var body strings.Builder
	oldChanged := oldLines[prefix : len(oldLines)-suffix]
	newChanged := newLines[prefix : len(newLines)-suffix]
	for _, l := range oldChanged {
		body.WriteString("-" + strings.TrimSuffix(l, "\n") + "\n")
	}
	for _, l := range newChanged {
		body.WriteString("+" + strings.TrimSuffix(l, "\n") + "\n")
	}

	return &diff.FileDiff{
		OrigName: "a/" + path,
		NewName:  "b/" + path,
		Hunks: []*diff.Hunk{{
			OrigStartLine: int32(prefix + 1),
			OrigLines:     int32(len(oldChanged)),
			NewStartLine:  int32(prefix + 1),
			NewLines:      int32(len(newChanged)),
			Body:          []byte(body.String()),
		}},
	}
}

func trimTrailingEmpty(lines *[]string) {
	l := *lines
	if len(l) > 0 && l[len(l)-1] == "" {
		*lines = l[:len(l)-1]
	}
}
