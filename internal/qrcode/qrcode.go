package qrcode

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// Options controls QR rendering
type Options struct {
	Size  int    // width and height in pixels
	Level string // "L", "M", "Q" or "H"; empty means M
	Dark  color.Color
	Light color.Color
}

// DefaultOptions returns 210px, level M, slate modules on white.
func DefaultOptions() Options {
	return Options{
		Size:  210,
		Level: "M",
		Dark:  color.RGBA{R: 0x1e, G: 0x29, B: 0x3b, A: 0xff},
		Light: color.White,
	}
}

// ParseLevel maps "L", "M", "Q" or "H" to an error correction level
func ParseLevel(s string) (qr.ErrorCorrectionLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L":
		return qr.L, nil
	case "", "M":
		return qr.M, nil
	case "Q":
		return qr.Q, nil
	case "H":
		return qr.H, nil
	default:
		return qr.M, fmt.Errorf("unknown error correction level: %s", s)
	}
}

// ParseHexColor parses "#rrggbb" or "rrggbb"
func ParseHexColor(s string) (color.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return nil, fmt.Errorf("invalid color %q: expected #rrggbb", s)
	}
	value, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{
		R: uint8(value >> 16),
		G: uint8(value >> 8),
		B: uint8(value),
		A: 0xff,
	}, nil
}

// Render returns content as a PNG QR code
func Render(content string, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, content, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes content as a PNG QR code into w
func Write(w io.Writer, content string, opts Options) error {
	img, err := Image(content, opts)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// Image renders content into a two-colour paletted image
func Image(content string, opts Options) (*image.Paletted, error) {
	defaults := DefaultOptions()
	if opts.Size <= 0 {
		opts.Size = defaults.Size
	}
	if opts.Dark == nil {
		opts.Dark = defaults.Dark
	}
	if opts.Light == nil {
		opts.Light = defaults.Light
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	code, err := qr.Encode(content, level, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	scaled, err := barcode.Scale(code, opts.Size, opts.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to scale qr code to %dpx: %w", opts.Size, err)
	}

	bounds := scaled.Bounds()
	img := image.NewPaletted(bounds, color.Palette{opts.Light, opts.Dark})
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if isDark(scaled.At(x, y)) {
				img.SetColorIndex(x, y, 1)
			}
		}
	}

	return img, nil
}

func isDark(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r+g+b < 3*0x8000
}
