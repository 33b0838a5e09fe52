// Package report summarizes a comparison session and renders it as text,
// JSON or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"

	"github.com/mvp-joe/signet/internal/compare"
	"github.com/mvp-joe/signet/internal/signature"
)

// Format selects a renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the accepted output formats.
var Formats = []Format{FormatText, FormatJSON, FormatYAML}

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (expected text, json or yaml)", s)
}

// Source is the read side of a comparison session.
type Source interface {
	SessionID() string
	Len() int
	ReadingsMatched() bool
	ReadingsBySignature() []compare.SignatureGroup
	FailedReadings() []signature.Reading
}

// Group lists the sources sharing one signature.
type Group struct {
	Signature string   `json:"signature" yaml:"signature"`
	Sources   []string `json:"sources" yaml:"sources"`
}

// Failure is one item that could not be read.
type Failure struct {
	Source string `json:"source" yaml:"source"`
	Error  string `json:"error" yaml:"error"`
}

// Report is a point-in-time summary of a session.
type Report struct {
	SessionID string    `json:"session_id" yaml:"session_id"`
	Matched   bool      `json:"matched" yaml:"matched"`
	Total     int       `json:"total" yaml:"total"`
	Groups    []Group   `json:"groups" yaml:"groups"`
	Failures  []Failure `json:"failures" yaml:"failures"`
}

// Build snapshots s into a Report. Groups keep the comparer's ordering.
func Build(s Source) *Report {
	r := &Report{
		SessionID: s.SessionID(),
		Matched:   s.ReadingsMatched(),
		Total:     s.Len(),
		Groups:    []Group{},
		Failures:  []Failure{},
	}

	for _, g := range s.ReadingsBySignature() {
		group := Group{Signature: g.Signature, Sources: make([]string, 0, len(g.Readings))}
		for _, reading := range g.Readings {
			group.Sources = append(group.Sources, reading.Source)
		}
		r.Groups = append(r.Groups, group)
	}

	for _, f := range s.FailedReadings() {
		r.Failures = append(r.Failures, Failure{Source: f.Source, Error: f.Error})
	}

	return r
}

// Render writes r to w in the requested format. Color only affects text.
func Render(w io.Writer, r *Report, f Format, color bool) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode JSON report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode YAML report: %w", err)
		}
		return enc.Close()
	case FormatText, "":
		return newTextRenderer(w, color).render(r)
	default:
		return fmt.Errorf("unknown output format %q", f)
	}
}

type textRenderer struct {
	w        io.Writer
	title    lipgloss.Style
	label    lipgloss.Style
	matched  lipgloss.Style
	single   lipgloss.Style
	warning  lipgloss.Style
	errStyle lipgloss.Style
}

func newTextRenderer(w io.Writer, color bool) *textRenderer {
	renderer := lipgloss.NewRenderer(w)
	if color {
		renderer.SetColorProfile(termenv.ANSI256)
	} else {
		renderer.SetColorProfile(termenv.Ascii)
	}

	return &textRenderer{
		w:        w,
		title:    renderer.NewStyle().Bold(true),
		label:    renderer.NewStyle().Foreground(lipgloss.Color("245")),
		matched:  renderer.NewStyle().Foreground(lipgloss.Color("42")),
		single:   renderer.NewStyle().Foreground(lipgloss.Color("250")),
		warning:  renderer.NewStyle().Foreground(lipgloss.Color("214")),
		errStyle: renderer.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}

func (t *textRenderer) render(r *Report) error {
	var b strings.Builder

	for _, g := range r.Groups {
		fmt.Fprintf(&b, "%s %s\n", t.label.Render("Signature:"), t.title.Render(g.Signature))
		fmt.Fprintln(&b, t.label.Render("Files:"))
		style := t.single
		if len(g.Sources) > 1 {
			style = t.matched
		}
		for _, src := range g.Sources {
			fmt.Fprintf(&b, "  %s\n", style.Render(src))
		}
		fmt.Fprintln(&b)
	}

	if len(r.Failures) > 0 {
		fmt.Fprintln(&b, t.label.Render("Errors:"))
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  %s\n    %s\n", f.Source, t.warning.Render(f.Error))
		}
		fmt.Fprintln(&b)
	}

	switch {
	case r.Matched:
		fmt.Fprintf(&b, "%s all %d signatures match\n", t.matched.Render("✓"), successful(r))
	case len(r.Groups) == 0:
		fmt.Fprintf(&b, "%s no signatures could be read\n", t.errStyle.Render("✗"))
	case len(r.Groups) == 1:
		fmt.Fprintf(&b, "%s only one signature was read, nothing to compare\n", t.warning.Render("!"))
	default:
		fmt.Fprintf(&b, "%s %d different signatures found\n", t.errStyle.Render("✗"), len(r.Groups))
	}

	_, err := io.WriteString(t.w, b.String())
	return err
}

func successful(r *Report) int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Sources)
	}
	return n
}
