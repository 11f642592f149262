package server

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestRoundTrip(t *testing.T) {
	base := &url.URL{Scheme: "https", Host: "local.example.test:4321", Path: "/"}
	data, err := NewManifest(base, "/abc.ipa", testMeta).Bytes()
	require.NoError(t, err)

	xml := string(data)
	assert.True(t, strings.HasPrefix(xml, "<?xml"))
	assert.Contains(t, xml, "<key>bundle-identifier</key>")
	assert.Contains(t, xml, "<string>software-package</string>")
	// plist encoding escapes the title
	assert.Contains(t, xml, "Example &amp; Co")

	m, err := ParseManifest(data)
	require.NoError(t, err)
	require.Len(t, m.Items, 1)
	item := m.Items[0]
	require.Len(t, item.Assets, 3)
	assert.Equal(t, "https://local.example.test:4321/abc.ipa", item.Assets[0].URL)
	assert.Equal(t, "https://local.example.test:4321/app57x57.png", item.Assets[1].URL)
	assert.Equal(t, "https://local.example.test:4321/app512x512.png", item.Assets[2].URL)
	assert.Equal(t, "software", item.Metadata.Kind)
	assert.Equal(t, testMeta.DisplayName, item.Metadata.Title)
}

func TestParseManifestInvalid(t *testing.T) {
	_, err := ParseManifest([]byte("<nope"))
	assert.Error(t, err)
}

func TestDeepLink(t *testing.T) {
	got := DeepLink("https://local.example.test:4000/a b.plist?x=1&y=2")
	assert.Equal(t, "itms-services://?action=download-manifest&url=https%3A%2F%2Flocal.example.test%3A4000%2Fa+b.plist%3Fx%3D1%26y%3D2", got)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "itms-services", u.Scheme)
	assert.Equal(t, "https://local.example.test:4000/a b.plist?x=1&y=2", u.Query().Get("url"))
}
