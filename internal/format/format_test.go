package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test Plan for Classify:
// - Recognized extensions map to their kind
// - Lookup is case-insensitive and the dot is optional
// - Unknown and empty extensions are Unsupported
// - ClassifyPath uses the final extension only
// - Extensions filters by kind and is sorted

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext  string
		want Kind
	}{
		{".pdb", SymbolFile},
		{".dll", Executable},
		{".exe", Executable},
		{".sys", Executable},
		{".zip", Archive},
		{".nupkg", Archive},
		{".snupkg", Archive},
		{".PDB", SymbolFile},
		{".Dll", Executable},
		{"nupkg", Archive},
		{".txt", Unsupported},
		{".so", Unsupported},
		{"", Unsupported},
		{".", Unsupported},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.ext))
		})
	}
}

func TestClassifyPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Executable, ClassifyPath("/bin/release/App.Core.DLL"))
	assert.Equal(t, Archive, ClassifyPath("packages/app.1.0.0.snupkg"))
	assert.Equal(t, SymbolFile, ClassifyPath("lib/net8.0/app.pdb"))
	assert.Equal(t, Unsupported, ClassifyPath("README"))
	assert.Equal(t, Unsupported, ClassifyPath("app.pdb.bak"))
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "symbol-file", SymbolFile.String())
	assert.Equal(t, "executable", Executable.String())
	assert.Equal(t, "archive", Archive.String())
	assert.Equal(t, "unsupported", Unsupported.String())
	assert.True(t, Archive.Supported())
	assert.False(t, Unsupported.Supported())
}

func TestExtensions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{".dll", ".exe", ".sys"}, Extensions(Executable))
	assert.Equal(t, []string{".nupkg", ".pdb", ".snupkg", ".zip"}, Extensions(SymbolFile, Archive))
	assert.Equal(t, []string{".dll", ".exe", ".nupkg", ".pdb", ".snupkg", ".sys", ".zip"}, Extensions())
}
