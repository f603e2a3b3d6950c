// Package render draws fog-of-war board views as PNG images.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/dark-chess/internal/engine"
)

var (
	lightSquare    = color.RGBA{233, 207, 163, 255}
	darkSquare     = color.RGBA{187, 136, 96, 255}
	fogColor       = color.NRGBA{R: 40, G: 42, B: 54, A: 215}
	lastCutColor   = color.NRGBA{R: 200, G: 60, B: 60, A: 255}
	coordTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
	backgroundFill = color.RGBA{28, 31, 46, 255}
)

type Renderer struct {
	squareSize int
	margin     int
}

func New() *Renderer { return &Renderer{squareSize: 64, margin: 24} }

// RenderPNG draws v from the side of orientation. Squares missing from
// v.Visible are covered by fog.
func (r *Renderer) RenderPNG(ctx context.Context, v engine.View, orientation engine.Color) ([]byte, error) {
	if orientation == "" {
		orientation = engine.White
	}
	size := r.squareSize*8 + r.margin*2
	img := image.NewRGBA(image.Rect(0, 0, size, size+r.margin))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundFill), image.Point{}, draw.Src)

	visible := make(map[string]bool, len(v.Visible))
	for _, sq := range v.Visible {
		visible[sq] = true
	}

	for i := 0; i < 64; i++ {
		sq := engine.Square(i)
		rect := r.squareRect(sq, orientation)
		clr := lightSquare
		if (sq.File()+sq.Rank())%2 == 0 {
			clr = darkSquare
		}
		draw.Draw(img, rect, image.NewUniform(clr), image.Point{}, draw.Src)
		if !visible[sq.String()] {
			draw.Draw(img, rect, image.NewUniform(fogColor), image.Point{}, draw.Over)
		}
	}

	for _, cell := range v.Cells {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sq, err := engine.ParseSquare(cell.Square)
		if err != nil {
			return nil, err
		}
		glyph, err := renderGlyph(cell.Kind, cell.Color, r.squareSize)
		if err != nil {
			return nil, err
		}
		rect := r.squareRect(sq, orientation)
		draw.Draw(img, rect, glyph, image.Point{}, draw.Over)
	}

	r.drawCoordinates(img, orientation)
	r.drawCuts(img, v)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) squareRect(sq engine.Square, orientation engine.Color) image.Rectangle {
	col, row := sq.File(), 7-sq.Rank()
	if orientation == engine.Black {
		col, row = 7-sq.File(), sq.Rank()
	}
	x := r.margin + col*r.squareSize
	y := r.margin + row*r.squareSize
	return image.Rect(x, y, x+r.squareSize, y+r.squareSize)
}

func (r *Renderer) drawCoordinates(img *image.RGBA, orientation engine.Color) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(coordTextColor), Face: basicfont.Face7x13}
	for i := 0; i < 8; i++ {
		file := string(rune('a' + i))
		rank := string(rune('1' + i))
		fx := r.margin + i*r.squareSize + r.squareSize/2 - 3
		ry := r.margin + (7-i)*r.squareSize + r.squareSize/2 + 4
		if orientation == engine.Black {
			fx = r.margin + (7-i)*r.squareSize + r.squareSize/2 - 3
			ry = r.margin + i*r.squareSize + r.squareSize/2 + 4
		}
		d.Dot = fixed.P(fx, r.margin+8*r.squareSize+16)
		d.DrawString(file)
		d.Dot = fixed.P(r.margin/2-3, ry)
		d.DrawString(rank)
	}
}

// drawCuts lists captured figures in the bottom strip, the latest one in red.
func (r *Renderer) drawCuts(img *image.RGBA, v engine.View) {
	if len(v.Cuts) == 0 {
		return
	}
	d := &font.Drawer{Dst: img, Src: image.NewUniform(coordTextColor), Face: basicfont.Face7x13}
	x := r.margin
	y := r.margin + 8*r.squareSize + 36
	for i, c := range v.Cuts {
		l := c.Kind.Letter()
		if c.Color == engine.Black {
			l += 'a' - 'A'
		}
		if i == len(v.Cuts)-1 && v.LastCut != nil {
			d.Src = image.NewUniform(lastCutColor)
		}
		d.Dot = fixed.P(x, y)
		d.DrawString(string(l))
		x += 10
	}
}
