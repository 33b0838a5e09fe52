package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/signet/internal/extract"
	"github.com/mvp-joe/signet/internal/report"
	"github.com/mvp-joe/signet/internal/signature"
	"github.com/mvp-joe/signet/internal/testutil"
)

// Test Plan for the signet command line:
// - compare, mcp and version are registered
// - No paths prints help listing the supported inputs
// - compare prints a text report; bare "signet <paths>" does the same
// - --format json / yaml switch renderers; an unknown format is an error
// - --require-match fails only when signatures disagree
// - --config values apply and flags override them; --no-cache still reads
// - Unreadable inputs appear in the report without failing the command
// - useColor honors always / never / NO_COLOR and never colors a buffer
// - CLIProgressReporter draws a bar and a summary line
// - version prints the build information

// isolateConfig keeps the user's real configuration out of the tests.
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func matchingPair(t *testing.T) (string, string, string) {
	t.Helper()
	dir := t.TempDir()
	id := testutil.ID(0x42)
	dll := testutil.WriteFile(t, dir, "App.dll", testutil.PE(id))
	pdb := testutil.WriteFile(t, dir, "App.pdb", testutil.PortablePDB(id))
	return dir, dll, pdb
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range NewRootCmd().Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["compare"], "compare command should be registered")
	assert.True(t, names["mcp"], "mcp command should be registered")
	assert.True(t, names["version"], "version command should be registered")
}

func TestCompare_NoPathsPrintsHelp(t *testing.T) {
	isolateConfig(t)

	for _, args := range [][]string{{}, {"compare"}} {
		out, _, err := execute(t, args...)
		require.NoError(t, err)
		assert.Contains(t, out, "Supported inputs:")
		for _, kind := range []string{"DLL", "EXE", "SYS", "PDB", "NuGet", "ZIP", "Directory"} {
			assert.Contains(t, out, kind)
		}
	}
}

func TestCompare_TextReport(t *testing.T) {
	isolateConfig(t)
	_, dll, pdb := matchingPair(t)

	for _, args := range [][]string{
		{"compare", "--color", "never", dll, pdb},
		{"--color", "never", dll, pdb},
	} {
		out, _, err := execute(t, args...)
		require.NoError(t, err)
		assert.Contains(t, out, "Signature: "+signature.Format(testutil.ID(0x42)))
		assert.Contains(t, out, dll)
		assert.Contains(t, out, pdb)
		assert.Contains(t, out, "all 2 signatures match")
		assert.NotContains(t, out, "\x1b[")
	}
}

func TestCompare_Formats(t *testing.T) {
	isolateConfig(t)
	dir, _, _ := matchingPair(t)

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, "compare", "--format", "json", dir)
		require.NoError(t, err)

		var r report.Report
		require.NoError(t, json.Unmarshal([]byte(out), &r))
		assert.True(t, r.Matched)
		assert.Equal(t, 2, r.Total)
	})

	t.Run("yaml", func(t *testing.T) {
		out, _, err := execute(t, "compare", "-f", "yaml", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "matched: true")
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := execute(t, "compare", "--format", "xml", dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestCompare_RequireMatch(t *testing.T) {
	isolateConfig(t)

	_, dll, pdb := matchingPair(t)
	_, _, err := execute(t, "compare", "--require-match", "--quiet", dll, pdb)
	require.NoError(t, err)

	other := testutil.WriteFile(t, t.TempDir(), "Other.pdb", testutil.PortablePDB(testutil.ID(0x43)))
	out, _, err := execute(t, "compare", "--require-match", "--color", "never", dll, other)
	require.ErrorIs(t, err, errMismatch)
	assert.Contains(t, out, "2 different signatures found")

	// Without the flag a mismatch is only reported
	_, _, err = execute(t, "compare", dll, other)
	require.NoError(t, err)
}

func TestCompare_UnreadableInputs(t *testing.T) {
	isolateConfig(t)

	dir := t.TempDir()
	notes := testutil.WriteFile(t, dir, "notes.txt", []byte("hello"))
	missing := filepath.Join(dir, "missing.dll")

	out, _, err := execute(t, "compare", "--format", "json", notes, missing)
	require.NoError(t, err)

	var r report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.False(t, r.Matched)
	assert.Empty(t, r.Groups)
	require.Len(t, r.Failures, 2)
	assert.Contains(t, r.Failures[1].Error, "does not exist")
}

func TestCompare_ConfigFile(t *testing.T) {
	isolateConfig(t)
	dir, _, _ := matchingPair(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "obj"), 0755))
	testutil.WriteFile(t, filepath.Join(dir, "obj"), "Stale.dll", testutil.PE(testutil.ID(0x01)))

	cfgPath := testutil.WriteFile(t, t.TempDir(), "signet.yml", []byte(`
scan:
  ignore:
    - "obj/**"
output:
  format: yaml
`))

	out, _, err := execute(t, "--config", cfgPath, "compare", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "matched: true")
	assert.NotContains(t, out, "Stale.dll")

	// Flags win over the file
	out, _, err = execute(t, "--config", cfgPath, "compare", "--format", "json", "--no-cache", dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"))

	_, _, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yml"), "compare", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestUseColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")

	var buf bytes.Buffer
	assert.True(t, useColor("always", &buf))
	assert.False(t, useColor("never", &buf))
	assert.False(t, useColor("auto", &buf), "a buffer is never a terminal")

	t.Setenv("NO_COLOR", "1")
	assert.False(t, useColor("auto", os.Stdout))
	assert.True(t, useColor("always", os.Stdout))
}

func TestCLIProgressReporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewCLIProgressReporter(&buf)

	p.OnDiscoveryStart()
	p.OnDiscoveryComplete(2)
	p.OnItemProcessed("a.dll")
	p.OnItemProcessed("a.pdb")
	p.OnComplete(&extract.Stats{Items: 2, Readings: 3, Failed: 1, CacheHits: 1, Duration: time.Second})

	out := buf.String()
	assert.Contains(t, out, "Discovering files...")
	assert.Contains(t, out, "Reading signatures")
	assert.Contains(t, out, "Read 2 signature(s) from 2 item(s)")
	assert.Contains(t, out, "(1 cached)")
	assert.Contains(t, out, "1 failed")
}

func TestVersionCmd(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Signet "+Version)
	assert.Contains(t, out, "Git commit:")
}
