package pathres

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffvan302/fileharbor/pkg/harbor"
)

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	r, err := New(root)
	require.NoError(t, err)
	return r, r.Root()
}

func TestNewRequiresAbsoluteRoot(t *testing.T) {
	_, err := New("relative/root")
	require.Error(t, err)
}

func TestResolveValidPaths(t *testing.T) {
	r, root := newTestResolver(t)

	tests := []struct {
		rel  string
		want string
	}{
		{"", root},
		{"a.txt", filepath.Join(root, "a.txt")},
		{"docs/report.pdf", filepath.Join(root, "docs", "report.pdf")},
		{"docs//double", filepath.Join(root, "docs", "double")},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, err := r.Resolve(tt.rel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	r, _ := newTestResolver(t)

	rejected := []string{
		".",
		"..",
		"docs/./file",
		"../etc/passwd",
		"docs/../../escape",
		"docs/../../../etc",
		"/etc/passwd",
		"\\windows\\system32",
		"c:/windows",
		"with\x00nul",
		"con",
		"docs/NUL.txt",
		"lpt1.log",
		strings.Repeat("a", MaxPathLen+1),
		strings.Repeat("d/", MaxPathDepth+1) + "leaf",
	}
	for _, rel := range rejected {
		name := rel
		if len(name) > 32 {
			name = name[:32]
		}
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(rel)
			require.Error(t, err)
			// Always path-traversal, never not-found
			assert.Equal(t, harbor.KindPathTraversal, harbor.KindOf(err))
		})
	}
}

func TestResolvedPathIsDescendantOfRoot(t *testing.T) {
	r, root := newTestResolver(t)

	inputs := []string{"a", "a/b/c", "deep/nesting/x.bin"}
	prefix := root + string(filepath.Separator)
	for _, rel := range inputs {
		got, err := r.Resolve(rel)
		require.NoError(t, err)
		assert.True(t, got == root || strings.HasPrefix(got, prefix),
			"resolved %q = %q escapes root %q", rel, got, root)
	}
}

func TestResolveSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test requires unix")
	}
	r, root := newTestResolver(t)

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := r.Resolve("link/secret")
	require.Error(t, err)
	assert.Equal(t, harbor.KindPathTraversal, harbor.KindOf(err))
}

func TestResolveSymlinkInsideRootAllowed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test requires unix")
	}
	r, root := newTestResolver(t)

	require.NoError(t, os.Mkdir(filepath.Join(root, "real"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "real", "f.txt"), []byte("x"), 0644))
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")))

	_, err := r.Resolve("alias/f.txt")
	assert.NoError(t, err)
}

func TestRelative(t *testing.T) {
	r, root := newTestResolver(t)

	rel, err := r.Relative(filepath.Join(root, "docs", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt", rel)

	_, err = r.Relative("/somewhere/else")
	assert.Error(t, err)
}
