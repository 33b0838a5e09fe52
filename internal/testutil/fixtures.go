// Package testutil builds synthetic artifacts for tests: minimal Portable
// Executable images, portable symbol files and zip containers.
package testutil

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/signet/internal/signature"
)

// Layout of the synthetic image. One section holds the debug directory
// followed by the CodeView records.
const (
	peHeaderOffset   = 0x80
	sectionRVA       = 0x1000
	sectionFileStart = 0x200
	sectionSize      = 0x400
	debugDirEntry    = 28
	codeViewSlotSize = 0x40
)

// Debug directory entry types used by fixtures.
const (
	DebugTypeCodeView   uint32 = 2
	DebugTypeRepro      uint32 = 16
	DebugTypeEmbeddedPD uint32 = 17
)

// PEOptions configures BuildPE.
type PEOptions struct {
	// ID is written into every CodeView entry. Entries after the first
	// CodeView entry get SecondaryID instead when it is non-zero.
	ID          signature.ID
	SecondaryID signature.ID

	// PE32 builds a 32-bit optional header instead of PE32+.
	PE32 bool

	// DebugTypes lists the debug directory entries in order. Nil means a
	// single CodeView entry; an empty non-nil slice omits the debug directory.
	DebugTypes []uint32

	// MapByRVA leaves PointerToRawData at zero so readers must map
	// AddressOfRawData through the section table.
	MapByRVA bool
}

// ID returns a deterministic identifier derived from seed.
func ID(seed byte) signature.ID {
	var id signature.ID
	for i := range id {
		id[i] = seed + byte(i)*0x11
	}
	return id
}

// PE builds a PE32+ image with one CodeView entry carrying id.
func PE(id signature.ID) []byte {
	return BuildPE(PEOptions{ID: id})
}

// BuildPE assembles a minimal image that debug/pe accepts.
func BuildPE(opts PEOptions) []byte {
	types := opts.DebugTypes
	if types == nil {
		types = []uint32{DebugTypeCodeView}
	}

	buf := make([]byte, sectionFileStart+sectionSize)
	buf[0], buf[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(buf[0x3c:], peHeaderOffset)
	copy(buf[peHeaderOffset:], "PE\x00\x00")

	var debugDir pe.DataDirectory
	if len(types) > 0 {
		debugDir = pe.DataDirectory{VirtualAddress: sectionRVA, Size: uint32(len(types) * debugDirEntry)}
	}

	var optional bytes.Buffer
	var optionalSize uint16
	machine := uint16(pe.IMAGE_FILE_MACHINE_AMD64)
	if opts.PE32 {
		machine = pe.IMAGE_FILE_MACHINE_I386
		oh := pe.OptionalHeader32{
			Magic:               0x10b,
			SectionAlignment:    0x1000,
			FileAlignment:       0x200,
			SizeOfImage:         sectionRVA + sectionSize,
			SizeOfHeaders:       sectionFileStart,
			NumberOfRvaAndSizes: 16,
		}
		oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_DEBUG] = debugDir
		_ = binary.Write(&optional, binary.LittleEndian, &oh)
		optionalSize = uint16(binary.Size(oh))
	} else {
		oh := pe.OptionalHeader64{
			Magic:               0x20b,
			ImageBase:           0x140000000,
			SectionAlignment:    0x1000,
			FileAlignment:       0x200,
			SizeOfImage:         sectionRVA + sectionSize,
			SizeOfHeaders:       sectionFileStart,
			NumberOfRvaAndSizes: 16,
		}
		oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_DEBUG] = debugDir
		_ = binary.Write(&optional, binary.LittleEndian, &oh)
		optionalSize = uint16(binary.Size(oh))
	}

	var headers bytes.Buffer
	_ = binary.Write(&headers, binary.LittleEndian, pe.FileHeader{
		Machine:              machine,
		NumberOfSections:     1,
		SizeOfOptionalHeader: optionalSize,
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE,
	})
	headers.Write(optional.Bytes())
	section := pe.SectionHeader32{
		VirtualSize:      sectionSize,
		VirtualAddress:   sectionRVA,
		SizeOfRawData:    sectionSize,
		PointerToRawData: sectionFileStart,
		Characteristics:  pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ,
	}
	copy(section.Name[:], ".rdata")
	_ = binary.Write(&headers, binary.LittleEndian, section)
	copy(buf[peHeaderOffset+4:], headers.Bytes())

	// Debug directory at the start of the section, CodeView records after it.
	codeViewSeen := false
	for i, typ := range types {
		entryOff := sectionFileStart + i*debugDirEntry
		dataOff := sectionFileStart + 0x100 + i*codeViewSlotSize
		dataRVA := uint32(sectionRVA + 0x100 + i*codeViewSlotSize)

		entry := make([]byte, debugDirEntry)
		binary.LittleEndian.PutUint32(entry[12:], typ)
		if typ == DebugTypeCodeView {
			id := opts.ID
			if codeViewSeen && opts.SecondaryID != (signature.ID{}) {
				id = opts.SecondaryID
			}
			codeViewSeen = true

			record := codeViewRecord(id, "app.pdb")
			copy(buf[dataOff:], record)
			binary.LittleEndian.PutUint32(entry[16:], uint32(len(record)))
			binary.LittleEndian.PutUint32(entry[20:], dataRVA)
			if !opts.MapByRVA {
				binary.LittleEndian.PutUint32(entry[24:], uint32(dataOff))
			}
		}
		copy(buf[entryOff:], entry)
	}

	return buf
}

func codeViewRecord(id signature.ID, pdbName string) []byte {
	var b bytes.Buffer
	b.WriteString("RSDS")
	b.Write(id[:])
	_ = binary.Write(&b, binary.LittleEndian, uint32(1))
	b.WriteString(pdbName)
	b.WriteByte(0)
	return b.Bytes()
}

// PortablePDB builds a metadata root with #Pdb, #~ and #Strings streams.
func PortablePDB(id signature.ID) []byte {
	pdbStream := make([]byte, 32)
	copy(pdbStream, id[:])
	binary.LittleEndian.PutUint32(pdbStream[16:], 0x5f5e1000)
	return MetadataRoot(map[string][]byte{
		"#Pdb":     pdbStream,
		"#~":       make([]byte, 24),
		"#Strings": {0, 0, 0, 0},
	}, "#Pdb", "#~", "#Strings")
}

// MetadataRoot assembles a "BSJB" metadata root holding the given streams in
// order.
func MetadataRoot(streams map[string][]byte, order ...string) []byte {
	version := []byte("PDB v1.00\x00\x00\x00")

	headerSize := 16 + len(version) + 4
	for _, name := range order {
		headerSize += 8 + pad4(len(name)+1)
	}

	var out bytes.Buffer
	_ = binary.Write(&out, binary.LittleEndian, uint32(0x424A5342))
	_ = binary.Write(&out, binary.LittleEndian, uint16(1))
	_ = binary.Write(&out, binary.LittleEndian, uint16(1))
	_ = binary.Write(&out, binary.LittleEndian, uint32(0))
	_ = binary.Write(&out, binary.LittleEndian, uint32(len(version)))
	out.Write(version)
	_ = binary.Write(&out, binary.LittleEndian, uint16(0))
	_ = binary.Write(&out, binary.LittleEndian, uint16(len(order)))

	offset := headerSize
	for _, name := range order {
		data := streams[name]
		_ = binary.Write(&out, binary.LittleEndian, uint32(offset))
		_ = binary.Write(&out, binary.LittleEndian, uint32(len(data)))
		nameBytes := make([]byte, pad4(len(name)+1))
		copy(nameBytes, name)
		out.Write(nameBytes)
		offset += pad4(len(data))
	}

	for _, name := range order {
		data := streams[name]
		padded := make([]byte, pad4(len(data)))
		copy(padded, data)
		out.Write(padded)
	}

	return out.Bytes()
}

// LegacyPDB returns the start of an MSF (Windows) program database.
func LegacyPDB() []byte {
	b := make([]byte, 128)
	copy(b, "Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00")
	return b
}

func pad4(n int) int {
	return (n + 3) &^ 3
}

// WriteFile writes data under dir, creating parent directories, and returns
// the full path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// ZipEntry is one member of a zip built by Zip. A name ending in "/" is a
// directory entry.
type ZipEntry struct {
	Name  string
	Data  []byte
	Store bool
}

// Zip builds an in-memory zip archive with the given entries in order.
func Zip(t *testing.T, entries ...ZipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		method := zip.Deflate
		if e.Store {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: e.Name, Method: method})
		require.NoError(t, err)
		if len(e.Data) > 0 {
			_, err = fw.Write(e.Data)
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}
