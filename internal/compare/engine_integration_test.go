package compare

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/signet/internal/extract"
	"github.com/mvp-joe/signet/internal/signature"
	"github.com/mvp-joe/signet/internal/testutil"
)

// Test Plan for Comparer over the real extraction engine:
// - Directory with a matching a.dll / a.pdb: 2 readings, 1 group, matched
// - One unsupported file: 1 failed reading, 0 groups, not matched
// - b.dll then a.pdb with different builds: 2 groups, not matched
// - Archive with valid and corrupt members: 4 readings, 2 failed
// - Rebuilding a file and re-adding it refreshes its reading

func newEngineComparer(t *testing.T) *Comparer {
	t.Helper()
	engine, err := extract.New(extract.Config{Workers: 4, CacheEnabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return New(engine)
}

func TestEngine_MatchingDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	id := testutil.ID(0xAA)
	testutil.WriteFile(t, dir, "a.dll", testutil.PE(id))
	testutil.WriteFile(t, dir, "a.pdb", testutil.PortablePDB(id))

	c := newEngineComparer(t)
	failures, err := c.Add(context.Background(), dir)
	require.NoError(t, err)

	assert.Empty(t, failures)
	assert.Len(t, c.Readings(), 2)
	assert.Len(t, c.ReadingsBySignature(), 1)
	assert.Empty(t, c.FailedReadings())
	assert.True(t, c.ReadingsMatched())
}

func TestEngine_UnsupportedFile(t *testing.T) {
	t.Parallel()

	path := testutil.WriteFile(t, t.TempDir(), "notes.txt", []byte("text"))

	c := newEngineComparer(t)
	failures, err := c.Add(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, failures, 1)
	assert.Len(t, c.FailedReadings(), 1)
	assert.Empty(t, c.ReadingsBySignature())
	assert.False(t, c.ReadingsMatched())
}

func TestEngine_MismatchedBuilds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := testutil.WriteFile(t, dir, "b.dll", testutil.PE(testutil.ID(0xBB)))
	a := testutil.WriteFile(t, dir, "a.pdb", testutil.PortablePDB(testutil.ID(0xAA)))

	c := newEngineComparer(t)
	_, err := c.Add(context.Background(), b)
	require.NoError(t, err)
	_, err = c.Add(context.Background(), a)
	require.NoError(t, err)

	assert.Len(t, c.Readings(), 2)
	assert.Len(t, c.ReadingsBySignature(), 2)
	assert.False(t, c.ReadingsMatched())
}

func TestEngine_ArchiveWithCorruptMembers(t *testing.T) {
	t.Parallel()

	id := testutil.ID(0x5A)
	path := testutil.WriteFile(t, t.TempDir(), "pkg.nupkg", testutil.Zip(t,
		testutil.ZipEntry{Name: "good.dll", Data: testutil.PE(id)},
		testutil.ZipEntry{Name: "bad.dll", Data: []byte("garbage")},
		testutil.ZipEntry{Name: "good.pdb", Data: testutil.PortablePDB(id)},
		testutil.ZipEntry{Name: "bad.pdb", Data: []byte("garbage")},
	))

	c := newEngineComparer(t)
	failures, err := c.Add(context.Background(), path)
	require.NoError(t, err)

	assert.Len(t, c.Readings(), 4)
	assert.Len(t, failures, 2)
	groups := c.ReadingsBySignature()
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Readings, 2)
	assert.Equal(t, signature.Format(id), groups[0].Signature)
	assert.True(t, c.ReadingsMatched())
}

func TestEngine_DuplicateArgumentsCollapse(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "a.dll", testutil.PE(testutil.ID(1)))

	c := newEngineComparer(t)
	_, err := c.Add(context.Background(), path, path, filepath.Join(dir, ".", "a.dll"))
	require.NoError(t, err)

	assert.Equal(t, 1, c.Len())
}
