package ipa

import (
	"archive/zip"
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/blacktop/go-plist"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeIPA writes a minimal IPA with the given Info.plist keys
func writeIPA(t *testing.T, info map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.ipa")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("Payload/My App.app/Info.plist")
	require.NoError(t, err)
	data, err := plist.Marshal(info, plist.XMLFormat)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	w, err = zw.Create("Payload/My App.app/MyApp")
	require.NoError(t, err)
	_, err = w.Write([]byte{0xcf, 0xfa, 0xed, 0xfe})
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return path
}

func TestReadMetadata(t *testing.T) {
	tests := []struct {
		name    string
		info    map[string]string
		want    Metadata
		wantErr bool
	}{
		{
			name: "display name and short version",
			info: map[string]string{
				"CFBundleIdentifier":         "dev.example.app",
				"CFBundleName":               "MyApp",
				"CFBundleDisplayName":        "My App",
				"CFBundleShortVersionString": "1.2.3",
				"CFBundleVersion":            "42",
			},
			want: Metadata{BundleID: "dev.example.app", Version: "1.2.3", DisplayName: "My App"},
		},
		{
			name: "fallbacks",
			info: map[string]string{
				"CFBundleIdentifier": "dev.example.app",
				"CFBundleName":       "MyApp",
				"CFBundleVersion":    "42",
			},
			want: Metadata{BundleID: "dev.example.app", Version: "42", DisplayName: "MyApp"},
		},
		{
			name:    "missing bundle id",
			info:    map[string]string{"CFBundleName": "MyApp", "CFBundleVersion": "1"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadMetadata(writeIPA(t, tt.info))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestReadMetadataNotAnIPA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.ipa")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))
	_, err := ReadMetadata(path)
	assert.Error(t, err)

	_, err = ReadMetadata(filepath.Join(t.TempDir(), "missing.ipa"))
	assert.Error(t, err)
}

func TestIcons(t *testing.T) {
	set, err := Icons("")
	require.NoError(t, err)
	assertPNG(t, set.Small, SmallIconSize)
	assertPNG(t, set.Large, LargeIconSize)

	src := filepath.Join(t.TempDir(), "icon.png")
	require.NoError(t, imaging.Save(imaging.New(300, 200, placeholderColor), src))
	set, err = Icons(src)
	require.NoError(t, err)
	assertPNG(t, set.Small, SmallIconSize)
	assertPNG(t, set.Large, LargeIconSize)

	_, err = Icons(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func assertPNG(t *testing.T, data []byte, size int) {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, size, size), img.Bounds())
}
