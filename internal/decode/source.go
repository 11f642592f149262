package decode

import (
	"sort"

	"github.com/hashicorp/go-version"
)

// SourceCatalog is a repository of installable apps
type SourceCatalog struct {
	Name       string       `json:"name"`
	Identifier string       `json:"identifier"`
	SourceURL  string       `json:"sourceURL,omitempty"`
	IconURL    string       `json:"iconURL,omitempty"`
	Website    string       `json:"website,omitempty"`
	Apps       []SourceApp  `json:"apps"`
	News       []SourceNews `json:"news,omitempty"`
}

// SourceApp is a single app entry in a source catalog
type SourceApp struct {
	Name                 string          `json:"name"`
	BundleIdentifier     string          `json:"bundleIdentifier"`
	DeveloperName        string          `json:"developerName,omitempty"`
	Subtitle             string          `json:"subtitle,omitempty"`
	Version              string          `json:"version,omitempty"`
	VersionDate          Date            `json:"versionDate"`
	DownloadURL          string          `json:"downloadURL,omitempty"`
	LocalizedDescription string          `json:"localizedDescription,omitempty"`
	IconURL              string          `json:"iconURL,omitempty"`
	TintColor            string          `json:"tintColor,omitempty"`
	Size                 int64           `json:"size,omitempty"`
	Versions             []SourceVersion `json:"versions,omitempty"`
}

// SourceVersion is one published build of a SourceApp
type SourceVersion struct {
	Version              string `json:"version"`
	Date                 Date   `json:"date"`
	DownloadURL          string `json:"downloadURL"`
	Size                 int64  `json:"size,omitempty"`
	LocalizedDescription string `json:"localizedDescription,omitempty"`
	MinOSVersion         string `json:"minOSVersion,omitempty"`
}

// SourceNews is a news item published by a source
type SourceNews struct {
	Title      string `json:"title"`
	Identifier string `json:"identifier"`
	Caption    string `json:"caption,omitempty"`
	Date       Date   `json:"date"`
	TintColor  string `json:"tintColor,omitempty"`
	URL        string `json:"url,omitempty"`
	AppID      string `json:"appID,omitempty"`
}

// Latest returns the newest version of the app.
//
// Entries with unparsable version strings sort after every valid one.
// Apps that only carry the legacy top-level fields are returned as a single version.
func (a SourceApp) Latest() (SourceVersion, bool) {
	if len(a.Versions) == 0 {
		if a.DownloadURL == "" {
			return SourceVersion{}, false
		}
		return SourceVersion{
			Version:              a.Version,
			Date:                 a.VersionDate,
			DownloadURL:          a.DownloadURL,
			Size:                 a.Size,
			LocalizedDescription: a.LocalizedDescription,
		}, true
	}

	versions := make([]SourceVersion, len(a.Versions))
	copy(versions, a.Versions)
	sort.SliceStable(versions, func(i, j int) bool {
		vi, erri := version.NewVersion(versions[i].Version)
		vj, errj := version.NewVersion(versions[j].Version)
		switch {
		case erri != nil && errj != nil:
			return versions[i].Date.After(versions[j].Date.Time)
		case erri != nil:
			return false
		case errj != nil:
			return true
		case vi.Equal(vj):
			return versions[i].Date.After(versions[j].Date.Time)
		default:
			return vi.GreaterThan(vj)
		}
	})
	return versions[0], true
}

// ParseSourceCatalog decodes a source catalog payload
func ParseSourceCatalog(data []byte) (*SourceCatalog, error) {
	var src SourceCatalog
	if err := unmarshal(SchemaSourceCatalog, data, &src); err != nil {
		return nil, err
	}
	return &src, nil
}
