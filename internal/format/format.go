// Package format maps file extensions to the artifact kinds signet can read.
package format

import (
	"path/filepath"
	"slices"
	"strings"
)

// Kind is the closed set of artifact kinds.
type Kind int

const (
	// Unsupported is any extension signet does not read.
	Unsupported Kind = iota
	// SymbolFile is a portable program database (.pdb).
	SymbolFile
	// Executable is a Portable Executable image (.dll, .exe, .sys).
	Executable
	// Archive is a zip-family container (.zip, .nupkg, .snupkg).
	Archive
)

var kindsByExtension = map[string]Kind{
	".pdb":    SymbolFile,
	".dll":    Executable,
	".exe":    Executable,
	".sys":    Executable,
	".zip":    Archive,
	".nupkg":  Archive,
	".snupkg": Archive,
}

// Classify returns the kind for a file extension. The lookup is
// case-insensitive and the leading dot is optional.
func Classify(ext string) Kind {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return Unsupported
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return kindsByExtension[ext]
}

// ClassifyPath classifies a path (or archive entry name) by its extension.
func ClassifyPath(path string) Kind {
	return Classify(filepath.Ext(path))
}

// Supported reports whether the kind is one signet can read.
func (k Kind) Supported() bool {
	return k != Unsupported
}

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case SymbolFile:
		return "symbol-file"
	case Executable:
		return "executable"
	case Archive:
		return "archive"
	default:
		return "unsupported"
	}
}

// Extensions lists the extensions (with leading dot, sorted) that classify
// as one of the given kinds. With no kinds it lists every supported extension.
func Extensions(kinds ...Kind) []string {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	var exts []string
	for ext, k := range kindsByExtension {
		if len(want) == 0 || want[k] {
			exts = append(exts, ext)
		}
	}
	slices.Sort(exts)
	return exts
}
