// Package discovery expands input paths into the leaf files signet reads.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/mvp-joe/signet/internal/format"
	"github.com/mvp-joe/signet/internal/signature"
)

// Item is one leaf produced by expansion. Err is set for inputs that cannot
// be expanded (missing or unreadable paths); the engine turns it into a failed
// reading so every error is reported the same way.
type Item struct {
	Path string
	Err  error
}

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
	// rooted matches "**/x" patterns at the walk root, where there is no
	// leading directory for "**/" to consume.
	rooted glob.Glob
}

// Expander walks files and directories. Ignore patterns are matched against
// slash-separated paths relative to the directory being expanded.
type Expander struct {
	ignorePatterns []compiledPattern
}

// NewExpander creates an expander with the given ignore patterns.
func NewExpander(ignorePatterns []string) (*Expander, error) {
	e := &Expander{}
	for _, pattern := range ignorePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		cp := compiledPattern{pattern: pattern, glob: g}
		if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
			if cp.rooted, err = glob.Compile(rest, '/'); err != nil {
				return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
			}
		}
		e.ignorePatterns = append(e.ignorePatterns, cp)
	}
	return e, nil
}

// Canonical returns the absolute, cleaned form of path.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// Expand yields the leaf items for one input path:
//   - a missing path yields one item carrying ErrPathNotFound
//   - a regular file yields itself, whatever its extension
//   - a directory yields every supported file below it in lexical order
//
// Archives are yielded as single items; their members are read by the
// archive package.
func (e *Expander) Expand(path string) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		root := Canonical(path)

		info, err := os.Stat(root)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				yield(Item{Path: root, Err: fmt.Errorf("%w: file or directory %s does not exist", signature.ErrPathNotFound, root)})
				return
			}
			yield(Item{Path: root, Err: fmt.Errorf("%w: stat %s: %v", signature.ErrIO, root, err)})
			return
		}

		if !info.IsDir() {
			yield(Item{Path: root})
			return
		}

		e.walk(root, yield)
	}
}

func (e *Expander) walk(root string, yield func(Item) bool) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				yield(Item{Path: path, Err: fmt.Errorf("%w: read directory %s: %v", signature.ErrIO, path, err)})
				return filepath.SkipAll
			}
			// Unreadable entries below the root are reported and skipped.
			if !yield(Item{Path: path, Err: fmt.Errorf("%w: %v", signature.ErrIO, err)}) {
				return filepath.SkipAll
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path == root {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if e.shouldIgnore(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if !format.ClassifyPath(path).Supported() || e.shouldIgnore(relPath) {
			return nil
		}

		if !yield(Item{Path: path}) {
			return filepath.SkipAll
		}
		return nil
	})
}

// shouldIgnore checks if a path matches any ignore pattern.
func (e *Expander) shouldIgnore(relPath string) bool {
	if e.matchesAnyPattern(relPath) {
		return true
	}

	// Also check if this is a directory that would match with /** suffix
	// For example, "node_modules" should match pattern "node_modules/**"
	return e.matchesAnyPattern(relPath + "/**")
}

// matchesAnyPattern checks if a path matches any of the ignore patterns.
func (e *Expander) matchesAnyPattern(path string) bool {
	for _, cp := range e.ignorePatterns {
		if cp.glob.Match(path) {
			return true
		}
		// "**/obj/**" ignores both "obj/x.dll" and "src/obj/x.dll".
		if cp.rooted != nil && cp.rooted.Match(path) {
			return true
		}
	}
	return false
}
