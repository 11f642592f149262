package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/pkg/errors"
)

const qrQuietZone = 2

// QRCodePNG encodes content as a size x size PNG QR code
func QRCodePNG(content string, size int) ([]byte, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode QR code")
	}
	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scale QR code")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, errors.Wrap(err, "failed to encode QR code as PNG")
	}
	return buf.Bytes(), nil
}

// QRCodeText renders content as a QR code made of half-block characters, two
// modules per line. Dark terminals want invert set so the light modules are drawn.
func QRCodeText(content string, invert bool) (string, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode QR code")
	}
	b := code.Bounds()
	drawn := func(x, y int) bool {
		dark := false
		if image.Pt(x, y).In(b) {
			dark = color.GrayModel.Convert(code.At(x, y)).(color.Gray).Y < 128
		}
		return dark != invert
	}

	var sb strings.Builder
	for y := b.Min.Y - qrQuietZone; y < b.Max.Y+qrQuietZone; y += 2 {
		for x := b.Min.X - qrQuietZone; x < b.Max.X+qrQuietZone; x++ {
			switch top, bottom := drawn(x, y), drawn(x, y+1); {
			case top && bottom:
				sb.WriteString("█")
			case top:
				sb.WriteString("▀")
			case bottom:
				sb.WriteString("▄")
			default:
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
