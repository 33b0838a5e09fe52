package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mvp-joe/signet/internal/compare"
	"github.com/mvp-joe/signet/internal/signature"
)

// Test Plan for Build / Render:
// - Build copies session id, matched flag, groups in order and failures
// - Empty sessions produce empty (not nil) groups and failures
// - JSON and YAML output decode back into the same report
// - Text output lists each group with its files, then errors and a verdict
// - Text output without color contains no escape sequences
// - ParseFormat accepts known names case-insensitively and rejects others

type fakeSource struct {
	id       string
	matched  bool
	groups   []compare.SignatureGroup
	failures []signature.Reading
}

func (f *fakeSource) SessionID() string                             { return f.id }
func (f *fakeSource) ReadingsMatched() bool                         { return f.matched }
func (f *fakeSource) ReadingsBySignature() []compare.SignatureGroup { return f.groups }
func (f *fakeSource) FailedReadings() []signature.Reading           { return f.failures }
func (f *fakeSource) Len() int {
	n := len(f.failures)
	for _, g := range f.groups {
		n += len(g.Readings)
	}
	return n
}

func sampleSource() *fakeSource {
	return &fakeSource{
		id: "session-1",
		groups: []compare.SignatureGroup{
			{Signature: "AAAA", Readings: []signature.Reading{
				signature.Succeeded("/x/a.dll", "AAAA"),
				signature.Succeeded("/x/a.pdb", "AAAA"),
			}},
			{Signature: "BBBB", Readings: []signature.Reading{
				signature.Succeeded("/x/b.dll", "BBBB"),
			}},
		},
		failures: []signature.Reading{{Source: "/x/c.txt", Error: "unsupported format: /x/c.txt"}},
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	r := Build(sampleSource())

	assert.Equal(t, "session-1", r.SessionID)
	assert.False(t, r.Matched)
	assert.Equal(t, 4, r.Total)
	require.Len(t, r.Groups, 2)
	assert.Equal(t, Group{Signature: "AAAA", Sources: []string{"/x/a.dll", "/x/a.pdb"}}, r.Groups[0])
	assert.Equal(t, []Failure{{Source: "/x/c.txt", Error: "unsupported format: /x/c.txt"}}, r.Failures)
}

func TestBuild_Empty(t *testing.T) {
	t.Parallel()

	r := Build(&fakeSource{id: "s"})
	assert.NotNil(t, r.Groups)
	assert.NotNil(t, r.Failures)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, FormatJSON, false))
	assert.Contains(t, buf.String(), `"groups": []`)
}

func TestRender_JSON(t *testing.T) {
	t.Parallel()

	r := Build(sampleSource())
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, FormatJSON, false))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, *r, decoded)
}

func TestRender_YAML(t *testing.T) {
	t.Parallel()

	r := Build(sampleSource())
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, FormatYAML, false))
	assert.Contains(t, buf.String(), "session_id: session-1")

	var decoded Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, *r, decoded)
}

func TestRender_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build(sampleSource()), FormatText, false))
	out := buf.String()

	expected := "Signature: AAAA\n" +
		"Files:\n" +
		"  /x/a.dll\n" +
		"  /x/a.pdb\n" +
		"\n" +
		"Signature: BBBB\n" +
		"Files:\n" +
		"  /x/b.dll\n" +
		"\n" +
		"Errors:\n" +
		"  /x/c.txt\n" +
		"    unsupported format: /x/c.txt\n" +
		"\n" +
		"✗ 2 different signatures found\n"
	assert.Equal(t, expected, out)
	assert.NotContains(t, out, "\x1b[")
}

func TestRender_TextVerdicts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		source   *fakeSource
		contains string
	}{
		{
			name: "matched",
			source: &fakeSource{matched: true, groups: []compare.SignatureGroup{{Signature: "A", Readings: []signature.Reading{
				signature.Succeeded("a", "A"), signature.Succeeded("b", "A"),
			}}}},
			contains: "all 2 signatures match",
		},
		{
			name:     "nothing_read",
			source:   &fakeSource{failures: []signature.Reading{{Source: "x", Error: "boom"}}},
			contains: "no signatures could be read",
		},
		{
			name: "single",
			source: &fakeSource{groups: []compare.SignatureGroup{{Signature: "A", Readings: []signature.Reading{
				signature.Succeeded("a", "A"),
			}}}},
			contains: "nothing to compare",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Render(&buf, Build(tt.source), FormatText, false))
			assert.Contains(t, buf.String(), tt.contains)
		})
	}
}

func TestRender_TextColor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build(sampleSource()), FormatText, true))
	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "/x/a.dll")
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		expected Format
		wantErr  bool
	}{
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestRender_UnknownFormat(t *testing.T) {
	t.Parallel()

	err := Render(&bytes.Buffer{}, Build(sampleSource()), Format("xml"), false)
	require.Error(t, err)
}
