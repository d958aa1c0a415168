package viz

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/png"
	"io"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/chris010970/dynamicworld/pkg/collection"
	xlog "github.com/chris010970/dynamicworld/pkg/log"
	"github.com/chris010970/dynamicworld/pkg/temporal"
)

// AnimationOptions configures Animation. Zero values take the defaults.
type AnimationOptions struct {
	Dimensions      int    // larger frame side in pixels, default 512
	FramesPerSecond int    // default 2
	Band            string // label band, default "label"
	Annotate        bool   // draw each frame's date
}

func (o AnimationOptions) withDefaults() AnimationOptions {
	if o.Dimensions <= 0 {
		o.Dimensions = 512
	}
	if o.FramesPerSecond <= 0 {
		o.FramesPerSecond = 2
	}
	if o.Band == "" {
		o.Band = "label"
	}
	return o
}

// Animation renders one looping GIF frame per image, in collection order.
func Animation(ctx context.Context, c *collection.Collection, opts AnimationOptions) (*gif.GIF, error) {
	opts = opts.withDefaults()
	if c.Len() == 0 {
		return nil, collection.ErrEmptyCollection
	}

	delay := 1000 / opts.FramesPerSecond / 10
	anim := &gif.GIF{LoopCount: 0}
	for _, im := range c.Images() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, err := im.Band(opts.Band)
		if err != nil {
			return nil, err
		}
		frame := Resize(Visualize(g), opts.Dimensions)
		if opts.Annotate {
			Annotate(frame, im.TimeStart.Format(temporal.DateLayout))
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, delay)
	}
	xlog.FromContext(ctx, "viz").Debug().Int(xlog.FieldFrames, len(anim.Image)).Msg("rendered animation")
	return anim, nil
}

// Annotate draws label in white near the bottom-left corner of frame.
func Annotate(frame *image.Paletted, label string) {
	face := basicfont.Face7x13
	ascent := face.Metrics().Ascent.Ceil()
	d := &font.Drawer{
		Dst:  frame,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(frame.Bounds().Min.X+10, frame.Bounds().Max.Y-20+ascent),
	}
	d.DrawString(label)
}

// WriteAnimation encodes anim as GIF.
func WriteAnimation(w io.Writer, anim *gif.GIF) error {
	if err := gif.EncodeAll(w, anim); err != nil {
		return fmt.Errorf("encode gif: %w", err)
	}
	return nil
}

// SaveAnimation writes anim to path atomically.
func SaveAnimation(path string, anim *gif.GIF) error {
	return writeAtomic(path, func(w io.Writer) error { return WriteAnimation(w, anim) })
}

// SaveLabelMap writes the label band of im as a PNG scaled to dimensions.
func SaveLabelMap(path string, im *collection.Image, band string, dimensions int) error {
	if band == "" {
		band = "label"
	}
	g, err := im.Band(band)
	if err != nil {
		return err
	}
	frame := Resize(Visualize(g), dimensions)
	return writeAtomic(path, func(w io.Writer) error {
		if err := png.Encode(w, frame); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
		return nil
	})
}
