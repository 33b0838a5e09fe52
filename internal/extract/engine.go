// Package extract turns input paths into signature readings. It expands
// paths, classifies every leaf item, dispatches to the executable, symbol
// file or archive reader, and converts every failure into a failed reading
// so one bad item never aborts its siblings.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/signet/internal/archive"
	"github.com/mvp-joe/signet/internal/discovery"
	"github.com/mvp-joe/signet/internal/format"
	"github.com/mvp-joe/signet/internal/pdb"
	"github.com/mvp-joe/signet/internal/pe"
	"github.com/mvp-joe/signet/internal/signature"
)

// DefaultCacheCapacity is the number of signatures kept when caching is on.
const DefaultCacheCapacity = 10_000

// Config controls how an Engine reads items.
type Config struct {
	// Workers bounds concurrent item reads. Zero means runtime.NumCPU().
	Workers int

	// IgnorePatterns are glob patterns skipped during directory expansion.
	IgnorePatterns []string

	// MaxEntrySize caps the bytes buffered per archive member. Zero means
	// archive.DefaultMaxEntrySize.
	MaxEntrySize int64

	// CacheEnabled memoizes signatures keyed by path, size and mtime. A hit
	// is only served when the bytes the parser read are unchanged.
	CacheEnabled bool

	// CacheCapacity bounds the cache. Zero means DefaultCacheCapacity.
	CacheCapacity int
}

// Option configures an Engine.
type Option func(*Engine)

// WithProgress sets the progress reporter.
func WithProgress(p ProgressReporter) Option {
	return func(e *Engine) {
		if p != nil {
			e.progress = p
		}
	}
}

// WithLogger sets the logger used for per-item diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine reads debug signatures from files, directories and archives.
// It is safe for concurrent use.
type Engine struct {
	expander     *discovery.Expander
	workers      int
	maxEntrySize int64
	cache        *signatureCache
	progress     ProgressReporter
	logger       *slog.Logger
}

// New creates an Engine from cfg.
func New(cfg Config, opts ...Option) (*Engine, error) {
	expander, err := discovery.NewExpander(cfg.IgnorePatterns)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		expander:     expander,
		workers:      cfg.Workers,
		maxEntrySize: cfg.MaxEntrySize,
		progress:     &NoOpProgressReporter{},
		logger:       slog.New(slog.DiscardHandler),
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	if e.maxEntrySize <= 0 {
		e.maxEntrySize = archive.DefaultMaxEntrySize
	}

	if cfg.CacheEnabled {
		capacity := cfg.CacheCapacity
		if capacity <= 0 {
			capacity = DefaultCacheCapacity
		}
		if e.cache, err = newSignatureCache(capacity); err != nil {
			return nil, err
		}
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close releases the signature cache.
func (e *Engine) Close() error {
	e.cache.close()
	return nil
}

// ClearCache drops every cached signature.
func (e *Engine) ClearCache() {
	e.cache.clear()
}

// Read expands paths and reads every leaf item. Readings are returned in
// expansion order regardless of which worker finished first. Per-item
// failures become failed readings; the returned error is only ever
// signature.ErrNoItems or the context error. On cancellation the readings
// of items that completed are still returned.
func (e *Engine) Read(ctx context.Context, paths []string) ([]signature.Reading, error) {
	if len(paths) == 0 {
		return nil, signature.ErrNoItems
	}

	start := time.Now()
	e.progress.OnDiscoveryStart()

	var items []discovery.Item
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for item := range e.expander.Expand(p) {
			items = append(items, item)
		}
	}
	e.progress.OnDiscoveryComplete(len(items))
	e.logger.Debug("expanded input paths", "paths", len(paths), "items", len(items))

	var cacheHits atomic.Int64
	results := make([][]signature.Reading, len(items))

	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			readings, hits := e.readItem(item)
			results[i] = readings
			cacheHits.Add(int64(hits))
			e.progress.OnItemProcessed(item.Path)
			return nil
		})
	}
	_ = g.Wait()

	var readings []signature.Reading
	failed := 0
	for _, rs := range results {
		for _, r := range rs {
			if !r.IsSuccessful() {
				failed++
			}
			readings = append(readings, r)
		}
	}

	e.progress.OnComplete(&Stats{
		Items:     len(items),
		Readings:  len(readings),
		Failed:    failed,
		CacheHits: int(cacheHits.Load()),
		Duration:  time.Since(start),
	})

	return readings, ctx.Err()
}

// readItem reads one leaf item and returns its readings and the number of
// cache hits.
func (e *Engine) readItem(item discovery.Item) ([]signature.Reading, int) {
	if item.Err != nil {
		return []signature.Reading{e.failed(item.Path, item.Err)}, 0
	}

	switch kind := format.ClassifyPath(item.Path); kind {
	case format.SymbolFile, format.Executable:
		r, hit := e.readFile(item.Path, kind)
		hits := 0
		if hit {
			hits = 1
		}
		return []signature.Reading{r}, hits
	case format.Archive:
		return e.readArchive(item.Path)
	default:
		err := fmt.Errorf("%w: %s is not an executable, symbol file or archive", signature.ErrUnsupportedFormat, item.Path)
		return []signature.Reading{e.failed(item.Path, err)}, 0
	}
}

func (e *Engine) readFile(path string, kind format.Kind) (signature.Reading, bool) {
	f, err := os.Open(path)
	if err != nil {
		return e.failed(path, fmt.Errorf("%w: open %s: %v", signature.ErrIO, path, err)), false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return e.failed(path, fmt.Errorf("%w: stat %s: %v", signature.ErrIO, path, err)), false
	}

	key := cacheKey{Path: path, Size: info.Size(), ModTime: info.ModTime().UnixNano()}
	sig, hit, err := e.parseCached(key, kind, f, info.Size())
	if err != nil {
		return e.failed(path, err), false
	}
	return signature.Succeeded(path, sig), hit
}

// parseCached serves key from the cache when r still holds the bytes the
// cached signature was parsed from, and otherwise parses r and caches the
// result.
func (e *Engine) parseCached(key cacheKey, kind format.Kind, r io.ReaderAt, size int64) (string, bool, error) {
	if e.cache == nil {
		sig, err := parse(kind, r, size)
		return sig, false, err
	}

	if sig, ok := e.cache.lookup(key, r); ok {
		return sig, true, nil
	}

	rec := newRecordingReaderAt(r)
	sig, err := parse(kind, rec, size)
	if err != nil {
		return "", false, err
	}
	if entry, ok := rec.entry(sig); ok {
		e.cache.set(key, entry)
	}
	return sig, false, nil
}

func (e *Engine) readArchive(path string) ([]signature.Reading, int) {
	info, err := os.Stat(path)
	if err != nil {
		return []signature.Reading{e.failed(path, fmt.Errorf("%w: stat %s: %v", signature.ErrIO, path, err))}, 0
	}

	a, err := archive.Open(path)
	if err != nil {
		return []signature.Reading{e.failed(path, err)}, 0
	}
	defer a.Close()

	var readings []signature.Reading
	hits := 0
	for m := range a.Members(e.maxEntrySize) {
		if m.Err != nil {
			readings = append(readings, e.failed(m.Source, m.Err))
			continue
		}

		key := cacheKey{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime().UnixNano(),
			Entry:   m.Name,
			CRC32:   m.CRC32,
		}
		sig, hit, err := e.parseCached(key, m.Kind, bytes.NewReader(m.Data), int64(len(m.Data)))
		if err != nil {
			readings = append(readings, e.failed(m.Source, err))
			continue
		}
		if hit {
			hits++
		}
		readings = append(readings, signature.Succeeded(m.Source, sig))
	}

	e.logger.Debug("read archive", "path", a.Path(), "entries", a.Entries(), "readings", len(readings))
	return readings, hits
}

// parse dispatches to the reader for kind. A panic inside a reader is
// recovered and reported as a parse error.
func parse(kind format.Kind, r io.ReaderAt, size int64) (sig string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			sig = ""
			err = fmt.Errorf("%w: reader panicked: %v", signature.ErrParse, rec)
		}
	}()

	switch kind {
	case format.SymbolFile:
		return pdb.ReadSignature(r, size)
	case format.Executable:
		return pe.ReadSignature(r, size)
	default:
		return "", fmt.Errorf("%w: %s entries cannot be read directly", signature.ErrUnsupportedFormat, kind)
	}
}

func (e *Engine) failed(source string, err error) signature.Reading {
	e.logger.Debug("reading failed", "source", source, "kind", signature.KindOf(err), "error", err)
	return signature.Failed(source, err)
}
