// Package pathres maps client-supplied relative paths to absolute paths
// under a library root. Every file-operation entry point resolves through
// this package; there is no second code path.
package pathres

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jeffvan302/fileharbor/pkg/harbor"
)

// Limits applied after normalization.
const (
	// MaxPathLen bounds the relative path length in bytes.
	MaxPathLen = 4096

	// MaxPathDepth bounds the number of path components.
	MaxPathDepth = 64
)

// windowsReservedNames are device names that Windows resolves regardless of
// directory, so they are rejected on every platform to keep library trees
// portable.
var windowsReservedNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {},
	"com5": {}, "com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {},
	"lpt5": {}, "lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// Resolver validates and resolves relative paths against a single root.
// The root is absolute and never changes for the resolver's lifetime.
type Resolver struct {
	root string
}

// New creates a Resolver for the given absolute root.
func New(root string) (*Resolver, error) {
	if !filepath.IsAbs(root) {
		return nil, harbor.Errorf(harbor.KindInvalidArgument, "resolver", "root %q is not absolute", root)
	}
	return &Resolver{root: filepath.Clean(root)}, nil
}

// Root returns the resolver's root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps a client-supplied relative path to an absolute path under
// the root. The empty path resolves to the root itself.
//
// Rejected with a path-traversal error: absolute paths, NUL bytes, any
// "." or ".." component, reserved device names, and any normalized result that is
// not a descendant of the root. Length and depth limits apply after
// normalization.
func (r *Resolver) Resolve(rel string) (string, error) {
	if len(rel) > MaxPathLen {
		return "", harbor.E(harbor.KindPathTraversal, "resolve", rel)
	}
	if strings.ContainsRune(rel, 0) {
		return "", harbor.E(harbor.KindPathTraversal, "resolve", rel)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, "\\") {
		return "", harbor.E(harbor.KindPathTraversal, "resolve", rel)
	}
	// Windows drive-letter paths are absolute even when filepath on a Unix
	// host disagrees.
	if len(rel) >= 2 && rel[1] == ':' {
		return "", harbor.E(harbor.KindPathTraversal, "resolve", rel)
	}

	// Component checks run on the raw input so ".." is rejected before
	// Clean can fold it away.
	components := strings.FieldsFunc(rel, func(c rune) bool {
		return c == '/' || c == '\\'
	})
	if len(components) > MaxPathDepth {
		return "", harbor.E(harbor.KindPathTraversal, "resolve", rel)
	}
	for _, comp := range components {
		if comp == "." || comp == ".." {
			return "", harbor.E(harbor.KindPathTraversal, "resolve", rel)
		}
		base := strings.ToLower(comp)
		if i := strings.IndexByte(base, '.'); i >= 0 {
			base = base[:i]
		}
		if _, reserved := windowsReservedNames[base]; reserved {
			return "", harbor.E(harbor.KindPathTraversal, "resolve", rel)
		}
	}

	joined := filepath.Join(r.root, filepath.FromSlash(rel))

	// Join cleans the result; verify it is still inside the root.
	if !r.contains(joined) {
		return "", harbor.E(harbor.KindPathTraversal, "resolve", rel)
	}

	// When the target (or an ancestor) exists, resolve symlinks and verify
	// the real path is also a descendant. A symlink inside the library that
	// points outside must not become an escape hatch.
	if resolved, err := resolveExisting(joined); err == nil {
		realRoot, rootErr := filepath.EvalSymlinks(r.root)
		if rootErr != nil {
			realRoot = r.root
		}
		if !strings.HasPrefix(resolved, realRoot+string(filepath.Separator)) && resolved != realRoot {
			return "", harbor.E(harbor.KindPathTraversal, "resolve", rel)
		}
	}

	return joined, nil
}

// Relative converts an absolute path under the root back to the library
// relative form with forward slashes, as used on the wire.
func (r *Resolver) Relative(abs string) (string, error) {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", harbor.E(harbor.KindInternal, "relative", abs)
	}
	return filepath.ToSlash(rel), nil
}

// contains reports whether abs is the root or a descendant of it,
// comparing cleaned absolute paths as strings.
func (r *Resolver) contains(abs string) bool {
	if abs == r.root {
		return true
	}
	prefix := r.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if runtime.GOOS == "windows" {
		return strings.HasPrefix(strings.ToLower(abs), strings.ToLower(prefix))
	}
	return strings.HasPrefix(abs, prefix)
}

// resolveExisting resolves symlinks for the deepest existing ancestor of
// path, then re-joins the non-existing suffix. Returns an error when not
// even the first component exists.
func resolveExisting(path string) (string, error) {
	remainder := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			if remainder == "" {
				return resolved, nil
			}
			return filepath.Join(resolved, remainder), nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		if remainder == "" {
			remainder = filepath.Base(current)
		} else {
			remainder = filepath.Join(filepath.Base(current), remainder)
		}
		current = parent
	}
}
