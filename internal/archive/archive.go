// Package archive reads zip-family packages (.zip, .nupkg, .snupkg) and
// materializes the executables and symbol files they contain.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/mvp-joe/signet/internal/format"
	"github.com/mvp-joe/signet/internal/signature"
)

// DefaultMaxEntrySize caps how much of a single entry is buffered in memory.
const DefaultMaxEntrySize int64 = 256 << 20

// Member is one executable or symbol file inside an archive. Data holds the
// fully inflated entry; Err is set instead when the entry could not be read.
type Member struct {
	Name   string
	Source string
	Kind   format.Kind
	CRC32  uint32
	Size   uint64
	Data   []byte
	Err    error
}

// Archive is an open zip container.
type Archive struct {
	path   string
	reader *zip.ReadCloser
}

// Open opens the archive at path. Files that are not zip containers fail
// with signature.ErrParse.
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: file or directory %s does not exist", signature.ErrPathNotFound, path)
		}
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("%w: open archive %s: %v", signature.ErrIO, path, err)
		}
		return nil, fmt.Errorf("%w: invalid archive %s: %v", signature.ErrParse, path, err)
	}
	return &Archive{path: path, reader: rc}, nil
}

// Path returns the path the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	return a.reader.Close()
}

// Entries returns the number of entries in the central directory, including
// entries Members skips.
func (a *Archive) Entries() int {
	return len(a.reader.File)
}

// Members yields the executables and symbol files in central directory
// order. Directories, nested archives and other files are skipped. Entries
// larger than maxSize (when positive) are yielded with an error instead of
// being buffered.
func (a *Archive) Members(maxSize int64) iter.Seq[Member] {
	return func(yield func(Member) bool) {
		for _, f := range a.reader.File {
			if isDir(f) {
				continue
			}
			kind := format.ClassifyPath(f.Name)
			if kind != format.SymbolFile && kind != format.Executable {
				continue
			}

			m := Member{
				Name:   f.Name,
				Source: MemberSource(a.path, f.Name),
				Kind:   kind,
				CRC32:  f.CRC32,
				Size:   f.UncompressedSize64,
			}
			m.Data, m.Err = readEntry(f, maxSize)

			if !yield(m) {
				return
			}
		}
	}
}

// MemberSource builds the identifier of an archive member. The entry name is
// kept verbatim so members stay distinguishable from real paths.
func MemberSource(archivePath, entryName string) string {
	return archivePath + "/" + entryName
}

func isDir(f *zip.File) bool {
	return strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir()
}

func readEntry(f *zip.File, maxSize int64) ([]byte, error) {
	if maxSize > 0 && f.UncompressedSize64 > uint64(maxSize) {
		return nil, fmt.Errorf("%w: entry %s is %d bytes, above the %d byte limit", signature.ErrIO, f.Name, f.UncompressedSize64, maxSize)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open entry %s: %v", signature.ErrParse, f.Name, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if maxSize > 0 {
		r = io.LimitReader(rc, maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: inflate entry %s: %v", signature.ErrParse, f.Name, err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: entry %s exceeds the %d byte limit", signature.ErrIO, f.Name, maxSize)
	}
	return data, nil
}
