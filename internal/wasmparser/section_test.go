package wasmparser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wit/errdefs"
)

// module carrying one type section and two custom sections named "a" and "b".
func fixtureModule() []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, // preamble
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type section: () -> ()
		0x00, 0x04, 0x01, 'a', 0xca, 0xfe, // custom "a": ca fe
		0x00, 0x03, 0x01, 'b', 0x01, // custom "b": 01
	}
}

func TestExtractCustomSections(t *testing.T) {
	tests := []struct {
		name     string
		section  string
		expected [][]byte
	}{
		{name: "present", section: "a", expected: [][]byte{{0xca, 0xfe}}},
		{name: "other name", section: "b", expected: [][]byte{{0x01}}},
		{name: "absent", section: "c", expected: nil},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			sections, err := ExtractCustomSections(fixtureModule(), tc.section)
			require.NoError(t, err)
			require.Equal(t, tc.expected, sections)
		})
	}
}

func TestExtractCustomSections_Duplicated(t *testing.T) {
	module := append(fixtureModule(), 0x00, 0x04, 0x01, 'a', 0x01, 0x02)
	sections, err := ExtractCustomSections(module, "a")
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0xca, 0xfe}, {0x01, 0x02}}, sections)
}

func TestExtractCustomSections_Errors(t *testing.T) {
	tests := []struct {
		name   string
		module []byte
	}{
		{name: "too short", module: []byte{0x00, 0x61}},
		{name: "bad magic", module: []byte{0x01, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}},
		{name: "bad version", module: []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}},
		{
			name:   "section size exceeds binary",
			module: []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, 0x00, 0x10, 0x01},
		},
		{
			name:   "custom name exceeds section",
			module: []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01, 0x05},
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			_, err := ExtractCustomSections(tc.module, "a")
			require.Error(t, err)
		})
	}
}

func TestExactlyOne(t *testing.T) {
	payload, err := ExactlyOne([][]byte{{0x01}}, "a")
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, payload)

	_, err = ExactlyOne(nil, "a")
	var noSection *errdefs.NoCustomSectionError
	require.ErrorAs(t, err, &noSection)
	require.Equal(t, "a", noSection.Name)

	_, err = ExactlyOne([][]byte{{0x01}, {0x02}, {0x03}}, "a")
	var multiple *errdefs.MultipleCustomSectionsError
	require.ErrorAs(t, err, &multiple)
	require.Equal(t, 3, multiple.Count)
}

func TestEmbedCustomSection(t *testing.T) {
	t.Run("appends when absent", func(t *testing.T) {
		module, err := EmbedCustomSection(EmptyModule(), "it", []byte{0xde, 0xad})
		require.NoError(t, err)

		sections, err := ExtractCustomSections(module, "it")
		require.NoError(t, err)
		require.Equal(t, [][]byte{{0xde, 0xad}}, sections)
	})

	t.Run("replaces in place", func(t *testing.T) {
		module, err := EmbedCustomSection(fixtureModule(), "a", []byte{0x11})
		require.NoError(t, err)

		sections, err := ExtractCustomSections(module, "a")
		require.NoError(t, err)
		require.Equal(t, [][]byte{{0x11}}, sections)

		// other sections are untouched
		sections, err = ExtractCustomSections(module, "b")
		require.NoError(t, err)
		require.Equal(t, [][]byte{{0x01}}, sections)
	})

	t.Run("rejects duplicated name", func(t *testing.T) {
		module := append(fixtureModule(), 0x00, 0x03, 0x01, 'a', 0x01)
		_, err := EmbedCustomSection(module, "a", []byte{0x11})
		var multiple *errdefs.MultipleCustomSectionsError
		require.ErrorAs(t, err, &multiple)
	})
}
