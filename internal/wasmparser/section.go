// Package wasmparser reads and writes custom sections of a WebAssembly
// binary without decoding anything else: every non-custom section is treated
// as an opaque byte range.
package wasmparser

import (
	"bytes"
	"fmt"

	"github.com/tetratelabs/wit/errdefs"
	"github.com/tetratelabs/wit/internal/leb128"
)

// Magic is the 4 byte preamble (literally "\0asm") of the binary format.
var Magic = []byte{0x00, 0x61, 0x73, 0x6D}

// version is format version and doesn't change between known specification versions.
var version = []byte{0x01, 0x00, 0x00, 0x00}

const sectionIDCustom = 0

// section is one raw section of a module: id, full body (for custom
// sections, name + data).
type section struct {
	id   byte
	body []byte
}

// customSection is a decoded custom section body.
type customSection struct {
	name string
	data []byte
}

// ExtractCustomSections returns the payloads of all custom sections with the
// given name, in module order.
func ExtractCustomSections(module []byte, name string) ([][]byte, error) {
	sections, err := split(module)
	if err != nil {
		return nil, err
	}
	var ret [][]byte
	for _, s := range sections {
		if s.id != sectionIDCustom {
			continue
		}
		cs, err := decodeCustom(s.body)
		if err != nil {
			return nil, err
		}
		if cs.name == name {
			ret = append(ret, cs.data)
		}
	}
	return ret, nil
}

// ExactlyOne reduces an ExtractCustomSections result to a single payload,
// failing if the section is absent or duplicated.
func ExactlyOne(sections [][]byte, name string) ([]byte, error) {
	switch len(sections) {
	case 0:
		return nil, &errdefs.NoCustomSectionError{Name: name}
	case 1:
		return sections[0], nil
	default:
		return nil, &errdefs.MultipleCustomSectionsError{Name: name, Count: len(sections)}
	}
}

// EmbedCustomSection returns a copy of the module with the named custom
// section set to payload: an existing single section is replaced in place, an
// absent one is appended at the end. A module already carrying the name more
// than once is rejected.
func EmbedCustomSection(module []byte, name string, payload []byte) ([]byte, error) {
	sections, err := split(module)
	if err != nil {
		return nil, err
	}

	replaceAt := -1
	count := 0
	for i, s := range sections {
		if s.id != sectionIDCustom {
			continue
		}
		cs, err := decodeCustom(s.body)
		if err != nil {
			return nil, err
		}
		if cs.name == name {
			count++
			replaceAt = i
		}
	}
	if count > 1 {
		return nil, &errdefs.MultipleCustomSectionsError{Name: name, Count: count}
	}

	embedded := section{id: sectionIDCustom, body: encodeCustomBody(name, payload)}
	if replaceAt >= 0 {
		sections[replaceAt] = embedded
	} else {
		sections = append(sections, embedded)
	}

	var out bytes.Buffer
	out.Write(Magic)
	out.Write(version)
	for _, s := range sections {
		out.WriteByte(s.id)
		out.Write(leb128.EncodeUint32(uint32(len(s.body))))
		out.Write(s.body)
	}
	return out.Bytes(), nil
}

// split validates the preamble and cuts the module into raw sections.
func split(module []byte) ([]section, error) {
	if len(module) < len(Magic)+len(version) {
		return nil, fmt.Errorf("binary of %d bytes is too short to be a wasm module", len(module))
	}
	if !bytes.Equal(module[:4], Magic) {
		return nil, fmt.Errorf("invalid magic number %#x", module[:4])
	}
	if !bytes.Equal(module[4:8], version) {
		return nil, fmt.Errorf("invalid version header %#x", module[4:8])
	}

	var sections []section
	pos := uint64(8)
	for pos < uint64(len(module)) {
		id := module[pos]
		pos++
		size, n, err := leb128.LoadUint32(module[pos:])
		if err != nil {
			return nil, fmt.Errorf("section %#x: failed to read size: %w", id, err)
		}
		pos += n
		if pos+uint64(size) > uint64(len(module)) {
			return nil, fmt.Errorf("section %#x: size %d exceeds the binary", id, size)
		}
		sections = append(sections, section{id: id, body: module[pos : pos+uint64(size)]})
		pos += uint64(size)
	}
	return sections, nil
}

func decodeCustom(body []byte) (*customSection, error) {
	nameLen, n, err := leb128.LoadUint32(body)
	if err != nil {
		return nil, fmt.Errorf("custom section: failed to read name length: %w", err)
	}
	if n+uint64(nameLen) > uint64(len(body)) {
		return nil, fmt.Errorf("custom section: name length %d exceeds the section", nameLen)
	}
	return &customSection{
		name: string(body[n : n+uint64(nameLen)]),
		data: body[n+uint64(nameLen):],
	}, nil
}

func encodeCustomBody(name string, payload []byte) []byte {
	body := leb128.EncodeUint32(uint32(len(name)))
	body = append(body, name...)
	return append(body, payload...)
}

// EmptyModule returns a minimal valid module: the preamble and nothing else.
// Tests and tools use it as a carrier for custom sections.
func EmptyModule() []byte {
	return append(append([]byte{}, Magic...), version...)
}
