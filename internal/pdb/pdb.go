// Package pdb reads the build identifier from portable program databases.
//
// A portable PDB is an ECMA-335 metadata container. Its root header lists
// named streams; the "#Pdb" stream starts with the 20-byte PDB id (a 16-byte
// GUID followed by a 4-byte stamp). Windows MSF program databases are not
// supported.
package pdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mvp-joe/signet/internal/signature"
)

const (
	metadataSignature = 0x424A5342 // "BSJB"

	// rootFixedSize covers signature, versions, reserved and version length.
	rootFixedSize = 16

	maxVersionLength = 255
	maxStreamName    = 32
	pdbIDSize        = 20

	pdbStreamName = "#Pdb"
)

var msfMagic = []byte("Microsoft C/C++ MSF 7.00")

// StreamHeader describes one metadata stream.
type StreamHeader struct {
	Offset uint32
	Size   uint32
	Name   string
}

// ReadSignature returns the formatted debug signature of the symbol file.
func ReadSignature(r io.ReaderAt, size int64) (string, error) {
	id, err := ReadID(r, size)
	if err != nil {
		return "", err
	}
	return signature.Format(id), nil
}

// ReadID returns the GUID stored at the start of the #Pdb stream.
func ReadID(r io.ReaderAt, size int64) (signature.ID, error) {
	var id signature.ID

	streams, err := ReadStreamHeaders(r, size)
	if err != nil {
		return id, err
	}

	for _, s := range streams {
		if s.Name != pdbStreamName {
			continue
		}
		if s.Size < pdbIDSize {
			return id, fmt.Errorf("%w: #Pdb stream too small (%d bytes)", signature.ErrParse, s.Size)
		}
		raw, err := readAt(r, size, int64(s.Offset), len(id))
		if err != nil {
			return id, fmt.Errorf("read #Pdb stream: %w", err)
		}
		copy(id[:], raw)
		return id, nil
	}

	return id, fmt.Errorf("%w: metadata has no #Pdb stream (not a portable PDB)", signature.ErrParse)
}

// ReadStreamHeaders parses the metadata root and returns its stream headers.
func ReadStreamHeaders(r io.ReaderAt, size int64) ([]StreamHeader, error) {
	head, err := readAt(r, size, 0, rootFixedSize)
	if err != nil {
		return nil, fmt.Errorf("%w: file too small for a metadata root", signature.ErrParse)
	}

	if binary.LittleEndian.Uint32(head[0:4]) != metadataSignature {
		if isLegacy(r, size) {
			return nil, legacyError()
		}
		return nil, fmt.Errorf("%w: invalid metadata signature 0x%08x", signature.ErrParse, binary.LittleEndian.Uint32(head[0:4]))
	}

	versionLength := binary.LittleEndian.Uint32(head[12:16])
	if versionLength > maxVersionLength || versionLength%4 != 0 {
		return nil, fmt.Errorf("%w: invalid metadata version length %d", signature.ErrParse, versionLength)
	}

	pos := int64(rootFixedSize) + int64(versionLength)
	counts, err := readAt(r, size, pos, 4)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated metadata root", signature.ErrParse)
	}
	streamCount := int(binary.LittleEndian.Uint16(counts[2:4]))
	pos += 4

	streams := make([]StreamHeader, 0, streamCount)
	for i := 0; i < streamCount; i++ {
		fixed, err := readAt(r, size, pos, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated stream header %d", signature.ErrParse, i)
		}
		pos += 8

		name, consumed, err := readStreamName(r, size, pos)
		if err != nil {
			return nil, err
		}
		pos += consumed

		s := StreamHeader{
			Offset: binary.LittleEndian.Uint32(fixed[0:4]),
			Size:   binary.LittleEndian.Uint32(fixed[4:8]),
			Name:   name,
		}
		if int64(s.Offset)+int64(s.Size) > size {
			return nil, fmt.Errorf("%w: stream %s extends past end of file", signature.ErrParse, s.Name)
		}
		streams = append(streams, s)
	}

	return streams, nil
}

// readStreamName reads a NUL-terminated name padded to a 4-byte boundary and
// returns the name and the number of bytes consumed.
func readStreamName(r io.ReaderAt, size, pos int64) (string, int64, error) {
	var name []byte
	for consumed := int64(0); consumed < maxStreamName; consumed += 4 {
		chunk, err := readAt(r, size, pos+consumed, 4)
		if err != nil {
			return "", 0, fmt.Errorf("%w: truncated stream name", signature.ErrParse)
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			name = append(name, chunk[:i]...)
			return string(name), consumed + 4, nil
		}
		name = append(name, chunk...)
	}
	return "", 0, fmt.Errorf("%w: stream name longer than %d bytes", signature.ErrParse, maxStreamName)
}

func isLegacy(r io.ReaderAt, size int64) bool {
	prefix, err := readAt(r, size, 0, len(msfMagic))
	return err == nil && bytes.Equal(prefix, msfMagic)
}

func legacyError() error {
	return fmt.Errorf("%w: legacy Windows PDB format is not supported", signature.ErrParse)
}

func readAt(r io.ReaderAt, size, offset int64, n int) ([]byte, error) {
	if offset < 0 || offset+int64(n) > size {
		return nil, fmt.Errorf("%w: %d bytes at offset %d exceed file size %d", signature.ErrParse, n, offset, size)
	}
	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("%w: %v", signature.ErrIO, err)
	}
	return buf, nil
}
