package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/park285/dark-chess/internal/engine"
)

// Glyph bodies drawn on a 45x45 view box. Fill and stroke are substituted
// per color.
var glyphs = map[engine.Kind]string{
	engine.Pawn: `<path d="M22.5 9a4 4 0 0 0-3.2 6.4A6.5 6.5 0 0 0 16 21c0 2 1 3.8 2.4 5-3 1-7.4 5.6-7.4 13.5h23c0-7.9-4.4-12.5-7.4-13.5A6.5 6.5 0 0 0 29 21a6.5 6.5 0 0 0-3.3-5.6A4 4 0 0 0 22.5 9z"/>`,
	engine.Knight: `<path d="M22 10c10.5 1 16.5 8 16 29H15c0-9 10-6.5 8-21"/>` +
		`<path d="M24 18c.4 2.9-5.5 7.4-8 9-3 2-2.8 4.3-5 4-1-.9 1.4-3 0-3-1 0 .2 1.2-1 2-1 0-4 1-4-4 0-2 6-12 6-12s1.9-1.9 2-3.5c-.7-1-.5-2-.5-3 1-1 3 2.5 3 2.5h2s.8-2 2.5-3c1 0 1 3 1 3"/>`,
	engine.Bishop: `<path d="M9 36c3.4-1 10.1 .4 13.5-2 3.4 2.4 10.1 1 13.5 2 0 0 1.6 .5 3 2-.7 1-1.6 1-3 .5-3.4-1-10.1 .5-13.5-1-3.4 1.5-10.1 0-13.5 1-1.4 .5-2.3 .5-3-.5 1.4-2 3-2 3-2z"/>` +
		`<path d="M15 32c2.5 2.5 12.5 2.5 15 0 .5-1.5 0-2 0-2 0-2.5-2.5-4-2.5-4 5.5-1.5 6-11.5-5-15.5-11 4-10.5 14-5 15.5 0 0-2.5 1.5-2.5 4 0 0-.5 .5 0 2z"/>` +
		`<circle cx="22.5" cy="8" r="2.5"/>`,
	engine.Rook: `<path d="M9 39h27v-3H9v3zM12 36v-4h21v4H12zM11 14V9h4v2h5V9h5v2h5V9h4v5"/>` +
		`<path d="M34 14l-3 3H14l-3-3"/><path d="M31 17v12.5H14V17"/><path d="M31 29.5l1.5 2.5h-20l1.5-2.5"/>`,
	engine.Queen: `<path d="M9 26c8.5-1.5 21-1.5 27 0l2.5-12.5L31 25l-.3-14.1-5.2 13.6-3-14.5-3 14.5-5.2-13.6L14 25 6.5 13.5 9 26z"/>` +
		`<path d="M9 26c0 2 1.5 2 2.5 4 1 1.5 1 1 .5 3.5-1.5 1-1.5 2.5-1.5 2.5-1.5 1.5 .5 2.5 .5 2.5 6.5 1 16.5 1 23 0 0 0 1.5-1 0-2.5 0 0 .5-1.5-1-2.5-.5-2.5-.5-2 .5-3.5 1-2 2.5-2 2.5-4-8.5-1.5-18.5-1.5-27 0z"/>`,
	engine.King: `<path d="M22.5 11.6V6M20 8h5"/>` +
		`<path d="M22.5 25s4.5-7.5 3-10.5c0 0-1-2.5-3-2.5s-3 2.5-3 2.5c-1.5 3 3 10.5 3 10.5"/>` +
		`<path d="M11.5 37c5.5 3.5 15.5 3.5 21 0v-7s9-4.5 6-10.5c-4-6.5-13.5-3.5-16 4V27v-3.5c-3.5-7.5-13-10.5-16-4-3 6 5 10 5 10V37z"/>`,
}

func glyphSVG(k engine.Kind, c engine.Color) ([]byte, error) {
	body, ok := glyphs[k]
	if !ok {
		return nil, fmt.Errorf("no glyph for %s", k)
	}
	fill, stroke := "#ffffff", "#000000"
	if c == engine.Black {
		fill, stroke = "#000000", "#ffffff"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">`)
	fmt.Fprintf(&b, `<g fill="%s" stroke="%s" stroke-width="1.5" stroke-linejoin="round">%s</g></svg>`, fill, stroke, body)
	return b.Bytes(), nil
}

type glyphKey struct {
	kind  engine.Kind
	color engine.Color
	size  int
}

var (
	glyphCache   = map[glyphKey]image.Image{}
	glyphCacheMu sync.RWMutex
)

func renderGlyph(k engine.Kind, c engine.Color, size int) (image.Image, error) {
	key := glyphKey{kind: k, color: c, size: size}
	glyphCacheMu.RLock()
	img, ok := glyphCache[key]
	glyphCacheMu.RUnlock()
	if ok {
		return img, nil
	}

	data, err := glyphSVG(k, c)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s glyph: %w", k, err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	glyphCacheMu.Lock()
	glyphCache[key] = rgba
	glyphCacheMu.Unlock()
	return rgba, nil
}
