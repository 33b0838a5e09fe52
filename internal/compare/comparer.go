// Package compare accumulates signature readings across calls and answers
// whether the collected executables and symbol files come from one build.
package compare

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/mvp-joe/signet/internal/signature"
)

// ErrNoReader is returned when a comparer has no signature reader.
var ErrNoReader = errors.New("signature reader is required")

// Reader reads signatures for a batch of input paths. Per-item failures are
// returned as failed readings, not as errors.
type Reader interface {
	Read(ctx context.Context, paths []string) ([]signature.Reading, error)
}

// ItemError describes one item that could not be read.
type ItemError struct {
	Source  string `json:"source" yaml:"source"`
	Message string `json:"message" yaml:"message"`
}

// ErrorHandler receives one notification per failed item.
type ErrorHandler func(ItemError)

// SignatureGroup is the set of successful readings sharing one signature.
type SignatureGroup struct {
	Signature string              `json:"signature" yaml:"signature"`
	Readings  []signature.Reading `json:"readings" yaml:"readings"`
}

// Option configures a Comparer.
type Option func(*Comparer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Comparer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(c *Comparer) {
		if id != "" {
			c.sessionID = id
		}
	}
}

type subscription struct {
	id      int
	handler ErrorHandler
}

// Comparer owns one comparison session. Readings are kept in insertion
// order; re-adding a source replaces its earlier reading and moves it to the
// back. It is safe for concurrent use.
type Comparer struct {
	reader    Reader
	logger    *slog.Logger
	sessionID string

	mu       sync.RWMutex
	order    *list.List // of signature.Reading
	bySource map[string]*list.Element

	subsMu sync.Mutex
	subs   []subscription
	nextID int
}

// New creates an empty comparer reading through reader.
func New(reader Reader, opts ...Option) *Comparer {
	c := &Comparer{
		reader:    reader,
		logger:    slog.New(slog.DiscardHandler),
		sessionID: uuid.New().String(),
		order:     list.New(),
		bySource:  make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID identifies this comparison session.
func (c *Comparer) SessionID() string {
	return c.sessionID
}

// Add reads paths and applies the resulting readings. It returns the items
// that failed in this call and notifies every subscriber once per failure.
// Readings are applied together after the read completes, so concurrent
// queries never observe a partially applied batch. When the read is
// cancelled the readings that did complete are still applied and the
// context error is returned.
func (c *Comparer) Add(ctx context.Context, paths ...string) ([]ItemError, error) {
	if c.reader == nil {
		return nil, ErrNoReader
	}
	if len(paths) == 0 {
		return nil, signature.ErrNoItems
	}

	readings, err := c.reader.Read(ctx, paths)

	var failures []ItemError
	c.mu.Lock()
	for _, r := range readings {
		c.apply(r)
		if !r.IsSuccessful() {
			failures = append(failures, ItemError{Source: r.Source, Message: r.Error})
		}
	}
	total := c.order.Len()
	c.mu.Unlock()

	c.logger.Debug("applied readings",
		"session", c.sessionID,
		"paths", len(paths),
		"readings", len(readings),
		"failed", len(failures),
		"total", total,
	)

	for _, f := range failures {
		c.notify(f)
	}

	return failures, err
}

// apply replaces any reading with the same source and appends r.
// Callers must hold mu.
func (c *Comparer) apply(r signature.Reading) {
	if el, ok := c.bySource[r.Source]; ok {
		c.order.Remove(el)
	}
	c.bySource[r.Source] = c.order.PushBack(r)
}

// Clear discards every reading.
func (c *Comparer) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	clear(c.bySource)
}

// Len returns the number of readings.
func (c *Comparer) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Readings returns every reading in insertion order.
func (c *Comparer) Readings() []signature.Reading {
	return c.filter(func(signature.Reading) bool { return true })
}

// FailedReadings returns the readings that carry an error.
func (c *Comparer) FailedReadings() []signature.Reading {
	return c.filter(func(r signature.Reading) bool { return !r.IsSuccessful() })
}

func (c *Comparer) filter(keep func(signature.Reading) bool) []signature.Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]signature.Reading, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		r := el.Value.(signature.Reading)
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// ReadingsBySignature groups successful readings by signature. Groups are
// ordered by descending size; equal sizes keep the order in which their
// signature first appeared.
func (c *Comparer) ReadingsBySignature() []SignatureGroup {
	var groups []SignatureGroup
	index := make(map[string]int)

	for _, r := range c.filter(signature.Reading.IsSuccessful) {
		i, ok := index[r.Signature]
		if !ok {
			i = len(groups)
			index[r.Signature] = i
			groups = append(groups, SignatureGroup{Signature: r.Signature})
		}
		groups[i].Readings = append(groups[i].Readings, r)
	}

	slices.SortStableFunc(groups, func(a, b SignatureGroup) int {
		return len(b.Readings) - len(a.Readings)
	})
	return groups
}

// ReadingsMatched reports whether at least two readings succeeded and all
// successful readings share one signature.
func (c *Comparer) ReadingsMatched() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successful := 0
	first := ""
	for el := c.order.Front(); el != nil; el = el.Next() {
		r := el.Value.(signature.Reading)
		if !r.IsSuccessful() {
			continue
		}
		if successful == 0 {
			first = r.Signature
		} else if r.Signature != first {
			return false
		}
		successful++
	}
	return successful >= 2
}

// Subscribe registers a handler for failed items and returns a function
// that removes it.
func (c *Comparer) Subscribe(h ErrorHandler) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs = append(c.subs, subscription{id: id, handler: h})

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		c.subs = slices.DeleteFunc(c.subs, func(s subscription) bool { return s.id == id })
	}
}

func (c *Comparer) notify(e ItemError) {
	c.subsMu.Lock()
	subs := slices.Clone(c.subs)
	c.subsMu.Unlock()

	for _, s := range subs {
		s.handler(e)
	}
}

// AreMatching reads paths into a fresh comparer and reports whether they
// match. A nil reader returns ErrNoReader.
func AreMatching(ctx context.Context, reader Reader, paths ...string) (bool, error) {
	c := New(reader)
	if _, err := c.Add(ctx, paths...); err != nil {
		return false, err
	}
	return c.ReadingsMatched(), nil
}
