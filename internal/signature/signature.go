// Package signature defines the debug signature value shared by executables
// and their symbol files, the Reading produced for each scanned item, and the
// error kinds a reading can fail with.
package signature

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// AgeSuffix stands in for the age field that portable symbol files do not carry.
const AgeSuffix = "FFFFFFFF"

// Length is the length of a formatted signature.
const Length = 40

// ID is a 16-byte build identifier in its on-disk (Windows GUID) layout:
// Data1 little-endian uint32, Data2 and Data3 little-endian uint16, then
// eight raw bytes.
type ID [16]byte

// String renders the identifier as 32 uppercase hex digits in canonical GUID
// order with no separators.
func (id ID) String() string {
	return fmt.Sprintf("%08X%04X%04X%X",
		binary.LittleEndian.Uint32(id[0:4]),
		binary.LittleEndian.Uint16(id[4:6]),
		binary.LittleEndian.Uint16(id[6:8]),
		id[8:16],
	)
}

// Format returns the debug signature for an identifier: the GUID digits
// followed by AgeSuffix, upper-cased. A matching executable and symbol file
// produce byte-identical strings.
func Format(id ID) string {
	return strings.ToUpper(id.String() + AgeSuffix)
}

// Reading is the outcome of one extraction attempt. Exactly one of Signature
// and Error is non-empty.
type Reading struct {
	Source    string `json:"source" yaml:"source"`
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Succeeded creates a successful reading.
func Succeeded(source, sig string) Reading {
	return Reading{Source: source, Signature: sig}
}

// Failed creates a failed reading from an error.
func Failed(source string, err error) Reading {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Reading{Source: source, Error: msg}
}

// IsSuccessful reports whether the reading carries a signature.
func (r Reading) IsSuccessful() bool {
	return r.Error == ""
}
