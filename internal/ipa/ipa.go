// Package ipa reads app metadata and icons for an install session
package ipa

import (
	"archive/zip"
	"fmt"
	"io"
	"regexp"

	"github.com/blacktop/go-plist"
	"github.com/pkg/errors"
)

var infoPlistName = regexp.MustCompile(`^Payload/[^/]+\.app/Info\.plist$`)

// maxInfoPlistSize guards against a bogus Info.plist size in the zip directory
const maxInfoPlistSize = 8 << 20

// Metadata identifies the app being installed
type Metadata struct {
	BundleID    string `json:"bundle_id"`
	Version     string `json:"version"`
	DisplayName string `json:"display_name"`
}

func (m Metadata) String() string {
	return fmt.Sprintf("%s (%s) %s", m.DisplayName, m.BundleID, m.Version)
}

// Validate checks that the fields needed by the install manifest are set
func (m Metadata) Validate() error {
	switch {
	case m.BundleID == "":
		return errors.New("ipa: bundle identifier is required")
	case m.Version == "":
		return errors.New("ipa: version is required")
	case m.DisplayName == "":
		return errors.New("ipa: display name is required")
	}
	return nil
}

type infoPlist struct {
	CFBundleIdentifier         string `plist:"CFBundleIdentifier,omitempty"`
	CFBundleName               string `plist:"CFBundleName,omitempty"`
	CFBundleDisplayName        string `plist:"CFBundleDisplayName,omitempty"`
	CFBundleShortVersionString string `plist:"CFBundleShortVersionString,omitempty"`
	CFBundleVersion            string `plist:"CFBundleVersion,omitempty"`
}

// ReadMetadata reads the bundle identifier, version and display name from the
// app's Info.plist inside an IPA
func ReadMetadata(path string) (*Metadata, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "ipa: failed to open %s", path)
	}
	defer zr.Close()

	var infoFile *zip.File
	for _, f := range zr.File {
		if infoPlistName.MatchString(f.Name) {
			infoFile = f
			break
		}
	}
	if infoFile == nil {
		return nil, errors.Errorf("ipa: no Payload/*.app/Info.plist found in %s", path)
	}

	r, err := infoFile.Open()
	if err != nil {
		return nil, errors.Wrap(err, "ipa: failed to open Info.plist")
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, maxInfoPlistSize))
	if err != nil {
		return nil, errors.Wrap(err, "ipa: failed to read Info.plist")
	}

	var info infoPlist
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrap(err, "ipa: failed to parse Info.plist")
	}

	meta := &Metadata{
		BundleID:    info.CFBundleIdentifier,
		Version:     info.CFBundleShortVersionString,
		DisplayName: info.CFBundleDisplayName,
	}
	if meta.Version == "" {
		meta.Version = info.CFBundleVersion
	}
	if meta.DisplayName == "" {
		meta.DisplayName = info.CFBundleName
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	return meta, nil
}
