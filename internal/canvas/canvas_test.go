package canvas

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/sketchdash/client/internal/store"
)

func TestBuildSVGOrdersStrokes(t *testing.T) {
	strokes := []store.Stroke{
		{Path: "M10 10 L50 50"},
		{Path: "M50 50 L90 10", Erase: true},
	}
	svg := string(BuildSVG(strokes))

	draw := strings.Index(svg, "M10 10 L50 50")
	erase := strings.Index(svg, "M50 50 L90 10")
	if draw == -1 || erase == -1 {
		t.Fatalf("paths missing from svg: %s", svg)
	}
	if draw > erase {
		t.Fatal("strokes emitted out of append order")
	}
	if !strings.Contains(svg[erase:], `stroke="#ffffff"`) {
		t.Fatal("erase stroke not painted in background color")
	}
}

func TestBuildSVGSanitizesPaths(t *testing.T) {
	svg := string(BuildSVG([]store.Stroke{
		{Path: `M0 0"/><script>alert(1)</script><path d="M1 1`},
	}))
	if strings.Contains(svg, "<script>") {
		t.Fatal("markup leaked into svg")
	}
}

func TestRenderPNGDimensions(t *testing.T) {
	out, err := RenderPNG([]store.Stroke{{Path: "M10 10 L590 390"}})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != Width || b.Dy() != Height {
		t.Fatalf("dimensions = %dx%d, want %dx%d", b.Dx(), b.Dy(), Width, Height)
	}
}

func TestRenderPNGEmptyCanvas(t *testing.T) {
	out, err := RenderPNG(nil)
	if err != nil {
		t.Fatalf("RenderPNG(nil): %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("decode png: %v", err)
	}
}
