package ipa

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const (
	// SmallIconSize is the edge length of the manifest display-image
	SmallIconSize = 57
	// LargeIconSize is the edge length of the manifest full-size-image
	LargeIconSize = 512
)

var placeholderColor = color.NRGBA{R: 0x2f, G: 0x6f, B: 0xeb, A: 0xff}

// IconSet holds the PNG encoded manifest icons
type IconSet struct {
	Small []byte
	Large []byte
}

// Icons renders the small and large PNG icons from the image at src.
// An empty src renders a flat placeholder.
func Icons(src string) (*IconSet, error) {
	var img image.Image
	if src != "" {
		var err error
		img, err = imaging.Open(src)
		if err != nil {
			return nil, errors.Wrapf(err, "ipa: failed to open icon %s", src)
		}
	}
	return IconsFromImage(img)
}

// IconsFromImage renders the small and large PNG icons from img (may be nil)
func IconsFromImage(img image.Image) (*IconSet, error) {
	small, err := renderIcon(img, SmallIconSize)
	if err != nil {
		return nil, err
	}
	large, err := renderIcon(img, LargeIconSize)
	if err != nil {
		return nil, err
	}
	return &IconSet{Small: small, Large: large}, nil
}

func renderIcon(img image.Image, size int) ([]byte, error) {
	var dst image.Image
	if img == nil {
		dst = imaging.New(size, size, placeholderColor)
	} else {
		dst = imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.PNG); err != nil {
		return nil, errors.Wrapf(err, "ipa: failed to encode %dx%d icon", size, size)
	}
	return buf.Bytes(), nil
}
