// Package viz renders Dynamic World label images as paletted frames, animated
// GIFs, PNG label maps and class coverage charts.
package viz

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/google/renameio/v2"

	"github.com/chris010970/dynamicworld/pkg/core"
	"github.com/chris010970/dynamicworld/pkg/landcover"
)

// Palette indices past the nine class colours.
const (
	transparentIndex = landcover.NumClasses
	whiteIndex       = landcover.NumClasses + 1
	blackIndex       = landcover.NumClasses + 2
)

// Palette returns the legend colours in label order followed by transparent, white and black.
func Palette() color.Palette {
	p := make(color.Palette, 0, landcover.NumClasses+3)
	for c := landcover.Class(0); c < landcover.NumClasses; c++ {
		p = append(p, c.Color())
	}
	return append(p, color.RGBA{}, color.White, color.Black)
}

// Visualize maps a label grid onto the legend palette. Labels are clamped to 0..8 and
// masked pixels are transparent.
func Visualize(g *core.Grid) *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, g.C, g.R), Palette())
	for i := 0; i < g.R; i++ {
		for j := 0; j < g.C; j++ {
			idx := uint8(transparentIndex)
			if g.IsValid(i, j) {
				v := math.Round(g.At(i, j))
				idx = uint8(math.Max(0, math.Min(landcover.NumClasses-1, v)))
			}
			img.SetColorIndex(j, i, idx)
		}
	}
	return img
}

// Resize scales src with nearest-neighbour sampling so its larger side equals dimensions.
func Resize(src *image.Paletted, dimensions int) *image.Paletted {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if dimensions <= 0 || w == 0 || h == 0 {
		return src
	}
	if w >= h {
		h = max(1, h*dimensions/w)
		w = dimensions
	} else {
		w = max(1, w*dimensions/h)
		h = dimensions
	}
	dst := image.NewPaletted(image.Rect(0, 0, w, h), src.Palette)
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*b.Dy()/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*b.Dx()/w
			dst.SetColorIndex(x, y, src.ColorIndexAt(sx, sy))
		}
	}
	return dst
}

// writeAtomic writes path through a pending file that replaces the target only on success.
func writeAtomic(path string, write func(io.Writer) error) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file %s: %w", path, err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := write(pending); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
