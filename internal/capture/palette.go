package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// Tricolor is the black/white/red palette of common e-paper signage panels.
var Tricolor = color.Palette{
	color.White,
	color.Black,
	color.RGBA{R: 0xff, A: 0xff},
}

const (
	inkWhite = iota
	inkBlack
	inkRed
)

// ReduceTricolor re-encodes a PNG snapshot with the Tricolor palette so it
// can be pushed to a three-colour panel without further processing.
//
// Dark pixels such as the header bar and text go black, saturated reds such
// as today's column header go red, everything else is white.
func ReduceTricolor(src []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("capture: decode PNG: %w", err)
	}

	b := img.Bounds()
	out := image.NewPaletted(b, Tricolor)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetColorIndex(x, y, classify(color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("capture: encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// classify picks the palette index for one pixel. Thresholds are tuned
// against the /timetable stylesheet.
func classify(c color.NRGBA) uint8 {
	if c.A < 128 {
		return inkWhite
	}
	r, g, b := float64(c.R), float64(c.G), float64(c.B)

	y := 0.299*r + 0.587*g + 0.114*b
	if y < 96 {
		return inkBlack
	}
	if r > 160 && r-max(g, b) > 64 {
		return inkRed
	}
	return inkWhite
}
