package server

import (
	"net/url"

	"github.com/blacktop/go-plist"
	"github.com/blacktop/otad/internal/ipa"
	"github.com/pkg/errors"
)

// Manifest is the OTA distribution plist read by the system installer
type Manifest struct {
	Items []ManifestItem `plist:"items"`
}

type ManifestItem struct {
	Assets   []ManifestAsset  `plist:"assets"`
	Metadata ManifestMetadata `plist:"metadata"`
}

type ManifestAsset struct {
	Kind string `plist:"kind"`
	URL  string `plist:"url"`
}

type ManifestMetadata struct {
	BundleIdentifier string `plist:"bundle-identifier"`
	BundleVersion    string `plist:"bundle-version"`
	Kind             string `plist:"kind"`
	Title            string `plist:"title"`
}

// NewManifest describes one app whose payload and icons live under base
func NewManifest(base *url.URL, payloadPath string, meta ipa.Metadata) *Manifest {
	return &Manifest{
		Items: []ManifestItem{{
			Assets: []ManifestAsset{
				{Kind: "software-package", URL: base.JoinPath(payloadPath).String()},
				{Kind: "display-image", URL: base.JoinPath(smallIconPath).String()},
				{Kind: "full-size-image", URL: base.JoinPath(largeIconPath).String()},
			},
			Metadata: ManifestMetadata{
				BundleIdentifier: meta.BundleID,
				BundleVersion:    meta.Version,
				Kind:             "software",
				Title:            meta.DisplayName,
			},
		}},
	}
}

// Bytes encodes the manifest as an XML plist
func (m *Manifest) Bytes() ([]byte, error) {
	data, err := plist.MarshalIndent(m, plist.XMLFormat, "\t")
	if err != nil {
		return nil, errors.Wrap(err, "server: failed to encode manifest")
	}
	return data, nil
}

// ParseManifest decodes an XML plist manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if _, err := plist.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "server: failed to decode manifest")
	}
	return &m, nil
}

// DeepLink returns the itms-services URL that makes the OS fetch manifestURL
func DeepLink(manifestURL string) string {
	return "itms-services://?action=download-manifest&url=" + url.QueryEscape(manifestURL)
}
