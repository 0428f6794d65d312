// Package imports links per-file analyses into a project-wide view:
// every import binding is chased to the binding it ultimately names,
// across aliases, re-export chains, and wildcard imports.
package imports

import (
	"path/filepath"
	"strings"

	"resym/internal/analysis"
	"resym/internal/core/errors"
)

// ModuleName converts a source path under root into its dotted module
// name. Package __init__ files take the package's own name.
func ModuleName(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.AddContext(
			errors.Newf(errors.CodeResolution, "path outside project root"),
			errors.CtxPath, path)
	}
	rel = strings.TrimSuffix(rel, ".py")
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return "", errors.AddContext(
			errors.Newf(errors.CodeResolution, "root __init__ has no module name"),
			errors.CtxPath, path)
	}
	return strings.Join(parts, "."), nil
}

// resolveModule turns one import reference into an absolute module name,
// applying relative-import depth against the importing file.
func resolveModule(from *analysis.File, module string, relative int) (string, error) {
	if relative == 0 {
		return module, nil
	}
	// One dot addresses the containing package, each further dot one
	// level up. For a package __init__ the containing package is the
	// module itself, so one fewer component is dropped.
	parts := strings.Split(from.Module, ".")
	drop := relative
	if from.Package {
		drop--
	}
	if drop > len(parts) {
		return "", errors.AddContext(
			errors.Newf(errors.CodeResolution, "relative import escapes project root"),
			errors.CtxModule, from.Module)
	}
	base := parts[:len(parts)-drop]
	if module == "" {
		if len(base) == 0 {
			return "", errors.AddContext(
				errors.Newf(errors.CodeResolution, "relative import escapes project root"),
				errors.CtxModule, from.Module)
		}
		return strings.Join(base, "."), nil
	}
	return strings.Join(append(base, strings.Split(module, ".")...), "."), nil
}

// Exports returns whether a module statically exports name to wildcard
// importers.
func exportsName(f *analysis.File, name string) bool {
	names, opaque := f.Exports()
	if opaque {
		return false
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
