package canvas

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/sketchdash/client/internal/store"
)

const (
	// Canvas dimensions shared by all clients so snapshots line up with what
	// peers saw while drawing.
	Width  = 600
	Height = 400

	strokeWidth = 4
)

// BuildSVG assembles the round's stroke log into an SVG document. Strokes are
// emitted in append order; erase strokes paint with the background color,
// which reproduces the eraser without any compositing logic.
func BuildSVG(strokes []store.Stroke) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, Width, Height, Width, Height)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#ffffff"/>`, Width, Height)
	for _, st := range strokes {
		d := sanitizePath(st.Path)
		if d == "" {
			continue
		}
		stroke := "#000000"
		width := strokeWidth
		if st.Erase {
			stroke = "#ffffff"
			width = strokeWidth * 3
		}
		fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="%d" stroke-linecap="round" stroke-linejoin="round"/>`, d, stroke, width)
	}
	b.WriteString(`</svg>`)
	return b.Bytes()
}

// RenderPNG rasterizes the stroke log to a PNG snapshot.
func RenderPNG(strokes []store.Stroke) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(BuildSVG(strokes)))
	if err != nil {
		return nil, fmt.Errorf("parse canvas svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(Width), float64(Height))

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(Width, Height, img, img.Bounds())
	raster := rasterx.NewDasher(Width, Height, scanner)
	icon.Draw(raster, 1.0)

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("encode canvas png: %w", err)
	}
	return out.Bytes(), nil
}

// sanitizePath keeps only characters legal in SVG path data; anything else
// would break the generated document.
func sanitizePath(d string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= 'a' && r <= 'z':
			return r
		case r == ' ' || r == ',' || r == '.' || r == '-' || r == '+':
			return r
		default:
			return -1
		}
	}, strings.TrimSpace(d))
}
