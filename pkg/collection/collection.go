// Package collection models time-stamped raster images and the temporal
// filters and reductions applied to stacks of them.
package collection

import (
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/chris010970/dynamicworld/pkg/core"
	"github.com/chris010970/dynamicworld/pkg/stats"
	"github.com/chris010970/dynamicworld/pkg/temporal"
)

// Collection is an ordered stack of images.
type Collection struct {
	images []*Image
}

// New wraps images in a collection.
func New(images ...*Image) *Collection {
	return &Collection{images: append([]*Image(nil), images...)}
}

// Len is the number of images.
func (c *Collection) Len() int { return len(c.images) }

// Images returns the images in order.
func (c *Collection) Images() []*Image { return append([]*Image(nil), c.images...) }

// First returns the first image.
func (c *Collection) First() (*Image, error) {
	if len(c.images) == 0 {
		return nil, ErrEmptyCollection
	}
	return c.images[0], nil
}

func (c *Collection) filter(keep func(*Image) bool) *Collection {
	out := &Collection{}
	for _, im := range c.images {
		if keep(im) {
			out.images = append(out.images, im)
		}
	}
	return out
}

// FilterDate keeps images whose TimeStart lies in [start, end).
func (c *Collection) FilterDate(start, end time.Time) *Collection {
	return c.filter(func(im *Image) bool {
		return !im.TimeStart.Before(start) && im.TimeStart.Before(end)
	})
}

// FilterInterval keeps images acquired on any day of iv.
func (c *Collection) FilterInterval(iv temporal.Interval) *Collection {
	return c.filter(func(im *Image) bool { return iv.Contains(im.TimeStart) })
}

// FilterBounds keeps images whose footprint intersects b.
func (c *Collection) FilterBounds(b orb.Bound) *Collection {
	return c.filter(func(im *Image) bool { return im.Bounds.Intersects(b) })
}

// SortByTime orders images by TimeStart, keeping insertion order for equal times.
func (c *Collection) SortByTime() *Collection {
	out := New(c.images...)
	sort.SliceStable(out.images, func(i, j int) bool {
		return out.images[i].TimeStart.Before(out.images[j].TimeStart)
	})
	return out
}

// Map applies fn to every image.
func (c *Collection) Map(fn func(*Image) (*Image, error)) (*Collection, error) {
	out := &Collection{images: make([]*Image, 0, len(c.images))}
	for _, im := range c.images {
		n, err := fn(im)
		if err != nil {
			return nil, err
		}
		out.images = append(out.images, n)
	}
	return out, nil
}

// Select restricts every image to names.
func (c *Collection) Select(names ...string) (*Collection, error) {
	return c.Map(func(im *Image) (*Image, error) { return im.Select(names...) })
}

// RemoveBands drops names from every image, using the first image's band list.
func (c *Collection) RemoveBands(names ...string) (*Collection, error) {
	first, err := c.First()
	if err != nil {
		return nil, err
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []string
	for _, b := range first.BandNames() {
		if !drop[b] {
			keep = append(keep, b)
		}
	}
	return c.Select(keep...)
}

// checkFootprints reports the first image whose bounds differ from the first image's.
// Pixels are combined by index, so every image must cover the same ground.
func (c *Collection) checkFootprints() error {
	if len(c.images) == 0 {
		return nil
	}
	want := c.images[0].Bounds
	for _, im := range c.images[1:] {
		if im.Bounds != want {
			return fmt.Errorf("%w: image %s covers %v, image %s covers %v",
				ErrFootprintMismatch, im.ID, im.Bounds, c.images[0].ID, want)
		}
	}
	return nil
}

// Bands gathers one band from every image, checking the shapes and footprints agree.
func (c *Collection) Bands(name string) ([]*core.Grid, error) {
	if err := c.checkFootprints(); err != nil {
		return nil, err
	}
	grids := make([]*core.Grid, 0, len(c.images))
	for _, im := range c.images {
		g, err := im.Band(name)
		if err != nil {
			return nil, err
		}
		grids = append(grids, g)
	}
	if err := core.CheckShapes(grids...); err != nil {
		return nil, fmt.Errorf("band %s: %w", name, err)
	}
	return grids, nil
}

// Reduce collapses the collection per pixel with the named reducer. Output bands are
// named <band>_<reducer>.
func (c *Collection) Reduce(reducer string) (*Image, error) {
	return c.reduce(reducer, func(band string) string { return band + "_" + reducer })
}

// Median is Reduce("median") keeping the input band names.
func (c *Collection) Median() (*Image, error) {
	return c.reduce("median", func(band string) string { return band })
}

func (c *Collection) reduce(reducer string, name func(string) string) (*Image, error) {
	r, err := stats.Lookup(reducer)
	if err != nil {
		return nil, err
	}
	first, err := c.First()
	if err != nil {
		return nil, err
	}
	if err := c.checkFootprints(); err != nil {
		return nil, err
	}

	out := NewImage(reducer, time.Time{}, first.Bounds, first.Scale)
	for _, band := range first.BandNames() {
		grids, err := c.Bands(band)
		if err != nil {
			return nil, err
		}
		g, err := ReduceGrids(grids, r)
		if err != nil {
			return nil, err
		}
		if err := out.AddBand(name(band), g); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReduceGrids applies r to the valid observations of each pixel across grids. Pixels with
// no valid observation stay masked.
func ReduceGrids(grids []*core.Grid, r stats.Reducer) (*core.Grid, error) {
	if len(grids) == 0 {
		return nil, ErrEmptyCollection
	}
	if err := core.CheckShapes(grids...); err != nil {
		return nil, err
	}
	out := core.NewMaskedGrid(grids[0].R, grids[0].C)
	cols := out.C
	core.ParallelRows(out.R, func(rs, re int) {
		buf := make([]float64, 0, len(grids))
		for k := rs * cols; k < re*cols; k++ {
			buf = buf[:0]
			for _, g := range grids {
				if g.Valid[k] {
					buf = append(buf, g.Data[k])
				}
			}
			if len(buf) == 0 {
				continue
			}
			out.Data[k] = r(buf)
			out.Valid[k] = true
		}
	})
	return out, nil
}
