// Package pe reads the CodeView build identifier from Portable Executable
// images.
//
// The identifier lives in the image's debug directory: a table of
// IMAGE_DEBUG_DIRECTORY records located through data directory 6. The first
// record of type CodeView points at an RSDS block whose GUID is the same
// value the paired portable symbol file stores in its #Pdb stream.
package pe

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mvp-joe/signet/internal/signature"
)

const (
	// debugTypeCodeView is IMAGE_DEBUG_TYPE_CODEVIEW.
	debugTypeCodeView = 2

	// debugDirectoryEntrySize is sizeof(IMAGE_DEBUG_DIRECTORY).
	debugDirectoryEntrySize = 28

	// rsdsHeaderSize covers the RSDS magic, the GUID and the age.
	rsdsHeaderSize = 24
)

var rsdsMagic = []byte("RSDS")

// DebugDirectoryEntry mirrors IMAGE_DEBUG_DIRECTORY.
type DebugDirectoryEntry struct {
	Characteristics  uint32
	TimeDateStamp    uint32
	MajorVersion     uint16
	MinorVersion     uint16
	Type             uint32
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32
}

// ReadSignature returns the formatted debug signature of the image.
func ReadSignature(r io.ReaderAt, size int64) (string, error) {
	id, err := ReadID(r, size)
	if err != nil {
		return "", err
	}
	return signature.Format(id), nil
}

// ReadID returns the GUID of the first CodeView debug directory entry.
func ReadID(r io.ReaderAt, size int64) (signature.ID, error) {
	var id signature.ID

	img, err := open(r, size)
	if err != nil {
		return id, err
	}

	entries, err := img.debugDirectory()
	if err != nil {
		return id, err
	}

	for _, entry := range entries {
		if entry.Type != debugTypeCodeView {
			continue
		}
		return img.codeViewID(entry)
	}

	return id, fmt.Errorf("%w: no CodeView entry in debug directory", signature.ErrParse)
}

// image is a parsed PE container plus the raw reader it came from.
type image struct {
	r    io.ReaderAt
	size int64
	file *pe.File
	dirs []pe.DataDirectory
}

func open(r io.ReaderAt, size int64) (*image, error) {
	var magic [2]byte
	if _, err := r.ReadAt(magic[:], 0); err != nil {
		return nil, fmt.Errorf("%w: not a PE image: %v", signature.ErrParse, err)
	}
	if magic != [2]byte{'M', 'Z'} {
		return nil, fmt.Errorf("%w: not a PE image: missing MZ header", signature.ErrParse)
	}

	f, err := pe.NewFile(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid PE image: %v", signature.ErrParse, err)
	}

	img := &image{r: r, size: size, file: f}
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		img.dirs = oh.DataDirectory[:min(int(oh.NumberOfRvaAndSizes), len(oh.DataDirectory))]
	case *pe.OptionalHeader64:
		img.dirs = oh.DataDirectory[:min(int(oh.NumberOfRvaAndSizes), len(oh.DataDirectory))]
	default:
		return nil, fmt.Errorf("%w: invalid PE image: missing optional header", signature.ErrParse)
	}

	return img, nil
}

// debugDirectory decodes every IMAGE_DEBUG_DIRECTORY record of the image.
func (img *image) debugDirectory() ([]DebugDirectoryEntry, error) {
	if len(img.dirs) <= pe.IMAGE_DIRECTORY_ENTRY_DEBUG {
		return nil, fmt.Errorf("%w: image has no debug directory", signature.ErrParse)
	}
	dir := img.dirs[pe.IMAGE_DIRECTORY_ENTRY_DEBUG]
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil, fmt.Errorf("%w: image has no debug directory", signature.ErrParse)
	}
	if dir.Size%debugDirectoryEntrySize != 0 {
		return nil, fmt.Errorf("%w: debug directory size %d is not a multiple of %d",
			signature.ErrParse, dir.Size, debugDirectoryEntrySize)
	}

	offset, ok := img.fileOffset(dir.VirtualAddress)
	if !ok {
		return nil, fmt.Errorf("%w: debug directory RVA 0x%x is outside every section",
			signature.ErrParse, dir.VirtualAddress)
	}

	raw, err := img.read(offset, int64(dir.Size))
	if err != nil {
		return nil, fmt.Errorf("read debug directory: %w", err)
	}

	entries := make([]DebugDirectoryEntry, dir.Size/debugDirectoryEntrySize)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, entries); err != nil {
		return nil, fmt.Errorf("%w: decode debug directory: %v", signature.ErrParse, err)
	}
	return entries, nil
}

// codeViewID decodes the RSDS block referenced by a CodeView entry.
func (img *image) codeViewID(entry DebugDirectoryEntry) (signature.ID, error) {
	var id signature.ID

	if entry.SizeOfData < rsdsHeaderSize {
		return id, fmt.Errorf("%w: CodeView data too small (%d bytes)", signature.ErrParse, entry.SizeOfData)
	}

	offset := int64(entry.PointerToRawData)
	if offset == 0 {
		mapped, ok := img.fileOffset(entry.AddressOfRawData)
		if !ok {
			return id, fmt.Errorf("%w: CodeView data RVA 0x%x is outside every section",
				signature.ErrParse, entry.AddressOfRawData)
		}
		offset = mapped
	}

	raw, err := img.read(offset, rsdsHeaderSize)
	if err != nil {
		return id, fmt.Errorf("read CodeView data: %w", err)
	}
	if !bytes.Equal(raw[:4], rsdsMagic) {
		return id, fmt.Errorf("%w: unsupported CodeView format %q", signature.ErrParse, raw[:4])
	}

	copy(id[:], raw[4:20])
	return id, nil
}

// fileOffset maps a relative virtual address to a file offset.
func (img *image) fileOffset(rva uint32) (int64, bool) {
	for _, s := range img.file.Sections {
		span := s.VirtualSize
		if s.Size > span {
			span = s.Size
		}
		if rva >= s.VirtualAddress && uint64(rva) < uint64(s.VirtualAddress)+uint64(span) {
			return int64(rva-s.VirtualAddress) + int64(s.Offset), true
		}
	}
	return 0, false
}

func (img *image) read(offset, n int64) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > img.size {
		return nil, fmt.Errorf("%w: %d bytes at offset %d exceed image size %d",
			signature.ErrParse, n, offset, img.size)
	}
	buf := make([]byte, n)
	if _, err := img.r.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("%w: %v", signature.ErrIO, err)
	}
	return buf, nil
}
