package utils

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInstallURL = "https://local.example.test:4242/i"

func TestQRCodePNG(t *testing.T) {
	data, err := QRCodePNG(testInstallURL, 256)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
	assert.Equal(t, 256, img.Bounds().Dy())
}

func TestQRCodeText(t *testing.T) {
	for _, invert := range []bool{false, true} {
		out, err := QRCodeText(testInstallURL, invert)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
		require.NotEmpty(t, lines)
		width := utf8.RuneCountInString(lines[0])
		for _, line := range lines {
			assert.Equal(t, width, utf8.RuneCountInString(line))
		}
		// square modules, two per line
		assert.Equal(t, (width+1)/2, len(lines))
		assert.Contains(t, out, "█")
	}
}

func TestWriteInlineImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInlineImage(&buf, []byte("png"), 64, 32))
	assert.Equal(t, "\033]1337;File=inline=1;size=3;width=64px;height=32px:cG5n\a\n", buf.String())
}
