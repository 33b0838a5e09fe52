package discovery

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/signet/internal/signature"
	"github.com/mvp-joe/signet/internal/testutil"
)

// Test Plan for Expander:
// - A missing path yields one item carrying ErrPathNotFound
// - A regular file yields itself even when its extension is unsupported
// - A directory yields supported files recursively in lexical order
// - Unsupported files inside directories are skipped
// - Ignore patterns prune files and whole directories
// - "**/" patterns also match at the walk root
// - Invalid ignore patterns are rejected at construction
// - Breaking out of the iteration stops the walk

func collect(t *testing.T, e *Expander, path string) []Item {
	t.Helper()
	return slices.Collect(e.Expand(path))
}

func paths(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Path)
	}
	return out
}

func TestExpand_MissingPath(t *testing.T) {
	t.Parallel()

	e, err := NewExpander(nil)
	require.NoError(t, err)

	missing := filepath.Join(t.TempDir(), "nope.dll")
	items := collect(t, e, missing)

	require.Len(t, items, 1)
	assert.Equal(t, missing, items[0].Path)
	assert.ErrorIs(t, items[0].Err, signature.ErrPathNotFound)
	assert.Contains(t, items[0].Err.Error(), "does not exist")
}

func TestExpand_SingleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	e, err := NewExpander(nil)
	require.NoError(t, err)

	t.Run("supported", func(t *testing.T) {
		p := testutil.WriteFile(t, dir, "a.dll", []byte("x"))
		items := collect(t, e, p)
		require.Len(t, items, 1)
		assert.Equal(t, p, items[0].Path)
		assert.NoError(t, items[0].Err)
	})

	t.Run("unsupported_is_still_yielded", func(t *testing.T) {
		p := testutil.WriteFile(t, dir, "notes.txt", []byte("x"))
		items := collect(t, e, p)
		require.Len(t, items, 1)
		assert.Equal(t, p, items[0].Path)
	})
}

func TestExpand_RelativePathIsCanonicalized(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.pdb", []byte("x"))
	t.Chdir(dir)

	e, err := NewExpander(nil)
	require.NoError(t, err)

	items := collect(t, e, "a.pdb")
	require.Len(t, items, 1)
	assert.True(t, filepath.IsAbs(items[0].Path))
	assert.Equal(t, "a.pdb", filepath.Base(items[0].Path))
}

func TestExpand_Directory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFile(t, dir, "b.pdb", nil)
	testutil.WriteFile(t, dir, "a.dll", nil)
	testutil.WriteFile(t, dir, "readme.md", nil)
	testutil.WriteFile(t, dir, "sub/c.EXE", nil)
	testutil.WriteFile(t, dir, "sub/pkg.nupkg", nil)
	testutil.WriteFile(t, dir, "sub/deep/d.sys", nil)

	e, err := NewExpander(nil)
	require.NoError(t, err)

	items := collect(t, e, dir)
	for _, it := range items {
		assert.NoError(t, it.Err)
	}

	expected := []string{
		filepath.Join(dir, "a.dll"),
		filepath.Join(dir, "b.pdb"),
		filepath.Join(dir, "sub", "c.EXE"),
		filepath.Join(dir, "sub", "deep", "d.sys"),
		filepath.Join(dir, "sub", "pkg.nupkg"),
	}
	assert.Equal(t, expected, paths(items))
}

func TestExpand_EmptyDirectory(t *testing.T) {
	t.Parallel()

	e, err := NewExpander(nil)
	require.NoError(t, err)

	assert.Empty(t, collect(t, e, t.TempDir()))
}

func TestExpand_IgnorePatterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFile(t, dir, "keep.dll", nil)
	testutil.WriteFile(t, dir, "skip.pdb", nil)
	testutil.WriteFile(t, dir, "obj/x.dll", nil)
	testutil.WriteFile(t, dir, "src/obj/y.dll", nil)
	testutil.WriteFile(t, dir, "src/z.exe", nil)
	testutil.WriteFile(t, dir, "packages/p.nupkg", nil)

	tests := []struct {
		name     string
		patterns []string
		expected []string
	}{
		{
			name:     "file_glob",
			patterns: []string{"*.pdb"},
			expected: []string{"keep.dll", "obj/x.dll", "packages/p.nupkg", "src/obj/y.dll", "src/z.exe"},
		},
		{
			name:     "directory_suffix_prunes_directory",
			patterns: []string{"packages/**"},
			expected: []string{"keep.dll", "obj/x.dll", "skip.pdb", "src/obj/y.dll", "src/z.exe"},
		},
		{
			name:     "double_star_matches_at_root_and_nested",
			patterns: []string{"**/obj/**"},
			expected: []string{"keep.dll", "packages/p.nupkg", "skip.pdb", "src/z.exe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewExpander(tt.patterns)
			require.NoError(t, err)

			var rel []string
			for _, p := range paths(collect(t, e, dir)) {
				r, err := filepath.Rel(dir, p)
				require.NoError(t, err)
				rel = append(rel, filepath.ToSlash(r))
			}
			assert.Equal(t, tt.expected, rel)
		})
	}
}

func TestNewExpander_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := NewExpander([]string{"[unclosed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ignore pattern")
}

func TestExpand_EarlyBreak(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"a.dll", "b.dll", "c.dll"} {
		testutil.WriteFile(t, dir, name, nil)
	}

	e, err := NewExpander(nil)
	require.NoError(t, err)

	count := 0
	for range e.Expand(dir) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}
