package signature

import "errors"

var (
	// ErrPathNotFound indicates an input path does not exist
	ErrPathNotFound = errors.New("path not found")

	// ErrUnsupportedFormat indicates an extension signet cannot read
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrParse indicates bytes that do not conform to the expected container format
	ErrParse = errors.New("parse error")

	// ErrIO indicates a file or archive entry could not be opened or read
	ErrIO = errors.New("i/o failure")

	// ErrNoItems indicates a request that references no paths at all.
	// It is a caller error and never becomes a Reading.
	ErrNoItems = errors.New("no items to read")
)

// ErrorKind names the category of a per-item failure.
type ErrorKind string

const (
	KindPathNotFound      ErrorKind = "path-not-found"
	KindUnsupportedFormat ErrorKind = "unsupported-format"
	KindParse             ErrorKind = "parse"
	KindIO                ErrorKind = "io"
	KindUnknown           ErrorKind = "unknown"
)

// KindOf returns the category of err, or KindUnknown when err wraps none of
// the per-item sentinels.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrPathNotFound):
		return KindPathNotFound
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrIO):
		return KindIO
	default:
		return KindUnknown
	}
}
