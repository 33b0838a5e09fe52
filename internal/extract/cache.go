package extract

import (
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/maypok86/otter"
)

// maxRegions bounds how many reads a parse may record and still be cached.
const maxRegions = 512

// cacheKey identifies one version of a readable item. Archive members add
// the entry name and CRC-32.
type cacheKey struct {
	Path    string
	Size    int64
	ModTime int64
	Entry   string
	CRC32   uint32
}

// region is a byte range a reader consumed while parsing.
type region struct {
	off int64
	n   int
}

// cachedSignature remembers which bytes produced a signature. Size and mtime
// survive "cp -p", "unzip -o" and pinned build timestamps, so a hit is only
// trusted when the same regions still hash to digest.
type cachedSignature struct {
	signature string
	regions   []region
	digest    uint64
}

// recordingReaderAt hashes and records every successful read in order.
// It is not safe for concurrent use.
type recordingReaderAt struct {
	r       io.ReaderAt
	hash    *xxhash.Digest
	regions []region
}

func newRecordingReaderAt(r io.ReaderAt) *recordingReaderAt {
	return &recordingReaderAt{r: r, hash: xxhash.New()}
}

func (rr *recordingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := rr.r.ReadAt(p, off)
	if n > 0 {
		rr.regions = append(rr.regions, region{off: off, n: n})
		_, _ = rr.hash.Write(p[:n])
	}
	return n, err
}

// entry snapshots what was read so far, or reports false when the parse
// touched too many ranges to be worth validating.
func (rr *recordingReaderAt) entry(sig string) (cachedSignature, bool) {
	if len(rr.regions) == 0 || len(rr.regions) > maxRegions {
		return cachedSignature{}, false
	}
	return cachedSignature{signature: sig, regions: rr.regions, digest: rr.hash.Sum64()}, true
}

// matches re-reads the recorded regions from r and compares their digest.
func (c cachedSignature) matches(r io.ReaderAt) bool {
	h := xxhash.New()
	var buf []byte
	for _, rg := range c.regions {
		if cap(buf) < rg.n {
			buf = make([]byte, rg.n)
		}
		buf = buf[:rg.n]
		if n, _ := r.ReadAt(buf, rg.off); n != rg.n {
			return false
		}
		_, _ = h.Write(buf)
	}
	return h.Sum64() == c.digest
}

// signatureCache memoizes successful signatures across Read calls. A nil
// *signatureCache is a valid, always-missing cache.
type signatureCache struct {
	cache otter.Cache[cacheKey, cachedSignature]
}

func newSignatureCache(capacity int) (*signatureCache, error) {
	c, err := otter.MustBuilder[cacheKey, cachedSignature](capacity).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build signature cache: %w", err)
	}
	return &signatureCache{cache: c}, nil
}

// lookup returns the cached signature for key when r still holds the bytes
// it was parsed from.
func (c *signatureCache) lookup(key cacheKey, r io.ReaderAt) (string, bool) {
	if c == nil {
		return "", false
	}
	entry, ok := c.cache.Get(key)
	if !ok {
		return "", false
	}
	if !entry.matches(r) {
		c.cache.Delete(key)
		return "", false
	}
	return entry.signature, true
}

func (c *signatureCache) set(key cacheKey, entry cachedSignature) {
	if c == nil {
		return
	}
	c.cache.Set(key, entry)
}

func (c *signatureCache) clear() {
	if c == nil {
		return
	}
	c.cache.Clear()
}

func (c *signatureCache) close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
