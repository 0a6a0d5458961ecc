// Package version reads, embeds and checks the sdk-version custom section: a
// semver triple recording which SDK the module was built with.
package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-semver/semver"

	"github.com/tetratelabs/wit/errdefs"
	"github.com/tetratelabs/wit/internal/wasmparser"
)

// SectionName is the custom section carrying the version string.
const SectionName = "sdk-version"

// MinSDKVersion is the oldest SDK whose modules this engine loads.
var MinSDKVersion = *semver.New("0.2.0")

// Extract returns the module's SDK version, or nil if the section is absent.
func Extract(module []byte) (*semver.Version, error) {
	sections, err := wasmparser.ExtractCustomSections(module, SectionName)
	if err != nil {
		return nil, err
	}
	payload, err := wasmparser.ExactlyOne(sections, SectionName)
	if err != nil {
		var noSection *errdefs.NoCustomSectionError
		if errors.As(err, &noSection) {
			return nil, nil
		}
		return nil, err
	}
	v, err := semver.NewVersion(strings.TrimSpace(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("invalid sdk version %q: %w", payload, err)
	}
	return v, nil
}

// Embed writes the version section, replacing an existing one.
func Embed(module []byte, v *semver.Version) ([]byte, error) {
	return wasmparser.EmbedCustomSection(module, SectionName, []byte(v.String()))
}

// Check fails unless the module records a version at or above MinSDKVersion.
// A module without the section is rejected with ErrMissingVersion.
func Check(module []byte) error {
	v, err := Extract(module)
	if err != nil {
		return err
	}
	if v == nil {
		return errdefs.ErrMissingVersion
	}
	if v.LessThan(MinSDKVersion) {
		return &errdefs.IncompatibleVersionError{
			Required: MinSDKVersion.String(),
			Provided: v.String(),
		}
	}
	return nil
}
