package collection

import (
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/chris010970/dynamicworld/pkg/core"
	"github.com/chris010970/dynamicworld/pkg/temporal"
)

var (
	ErrBandNotFound      = errors.New("band not found")
	ErrDuplicateBand     = errors.New("duplicate band")
	ErrEmptyCollection   = errors.New("empty collection")
	ErrRenameMismatch    = errors.New("rename needs one name per band")
	ErrFootprintMismatch = errors.New("images cover different footprints")
)

// Image is a set of equally shaped bands covering Bounds, acquired at TimeStart.
// Grids are shared between derived images and must not be mutated after AddBand.
type Image struct {
	ID        string
	TimeStart time.Time
	TimeEnd   time.Time
	Bounds    orb.Bound
	Scale     float64 // metres per pixel

	names []string
	bands map[string]*core.Grid
	props map[string]float64
}

// NewImage returns an image without bands.
func NewImage(id string, start time.Time, bounds orb.Bound, scale float64) *Image {
	return &Image{
		ID:        id,
		TimeStart: start,
		TimeEnd:   start,
		Bounds:    bounds,
		Scale:     scale,
		bands:     map[string]*core.Grid{},
		props:     map[string]float64{},
	}
}

func (im *Image) clone() *Image {
	n := *im
	n.names = append([]string(nil), im.names...)
	n.bands = make(map[string]*core.Grid, len(im.bands))
	for k, v := range im.bands {
		n.bands[k] = v
	}
	n.props = make(map[string]float64, len(im.props))
	for k, v := range im.props {
		n.props[k] = v
	}
	return &n
}

// withoutBands copies metadata and properties only.
func (im *Image) withoutBands() *Image {
	n := im.clone()
	n.names = nil
	n.bands = map[string]*core.Grid{}
	return n
}

// AddBand appends a band. Its shape must match existing bands.
func (im *Image) AddBand(name string, g *core.Grid) error {
	if _, ok := im.bands[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBand, name)
	}
	if len(im.names) > 0 && !im.bands[im.names[0]].SameShape(g) {
		return fmt.Errorf("band %s: %w", name, core.ErrShapeMismatch)
	}
	im.names = append(im.names, name)
	im.bands[name] = g
	return nil
}

// BandNames returns the band names in order.
func (im *Image) BandNames() []string { return append([]string(nil), im.names...) }

// HasBand reports whether the image carries name.
func (im *Image) HasBand(name string) bool { _, ok := im.bands[name]; return ok }

// Band returns the named band.
func (im *Image) Band(name string) (*core.Grid, error) {
	g, ok := im.bands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in image %s", ErrBandNotFound, name, im.ID)
	}
	return g, nil
}

// Shape returns the rows and columns shared by every band.
func (im *Image) Shape() (int, int) {
	if len(im.names) == 0 {
		return 0, 0
	}
	g := im.bands[im.names[0]]
	return g.R, g.C
}

// Select returns a copy of im restricted to names, in the given order.
func (im *Image) Select(names ...string) (*Image, error) {
	n := im.withoutBands()
	for _, name := range names {
		g, err := im.Band(name)
		if err != nil {
			return nil, err
		}
		if err := n.AddBand(name, g); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Rename returns a copy of im with its bands renamed positionally.
func (im *Image) Rename(names ...string) (*Image, error) {
	if len(names) != len(im.names) {
		return nil, fmt.Errorf("%w: %d bands, %d names", ErrRenameMismatch, len(im.names), len(names))
	}
	n := im.withoutBands()
	for i, name := range names {
		if err := n.AddBand(name, im.bands[im.names[i]]); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// SetProperty records a numeric property.
func (im *Image) SetProperty(key string, v float64) { im.props[key] = v }

// Property returns a numeric property.
func (im *Image) Property(key string) (float64, bool) {
	v, ok := im.props[key]
	return v, ok
}

// PixelCenter returns the lon/lat centre of pixel (r, c).
func (im *Image) PixelCenter(r, c int) orb.Point {
	rows, cols := im.Shape()
	dx := (im.Bounds.Max.X() - im.Bounds.Min.X()) / float64(cols)
	dy := (im.Bounds.Max.Y() - im.Bounds.Min.Y()) / float64(rows)
	return orb.Point{im.Bounds.Min.X() + (float64(c)+0.5)*dx, im.Bounds.Max.Y() - (float64(r)+0.5)*dy}
}

// PixelAt returns the pixel containing p.
func (im *Image) PixelAt(p orb.Point) (int, int, bool) {
	rows, cols := im.Shape()
	if rows == 0 || !im.Bounds.Contains(p) {
		return 0, 0, false
	}
	fx := (p.X() - im.Bounds.Min.X()) / (im.Bounds.Max.X() - im.Bounds.Min.X())
	fy := (im.Bounds.Max.Y() - p.Y()) / (im.Bounds.Max.Y() - im.Bounds.Min.Y())
	c := min(int(fx*float64(cols)), cols-1)
	r := min(int(fy*float64(rows)), rows-1)
	return r, c, true
}

// AddMetadata returns a copy of im stamped with the interval bounds.
func AddMetadata(im *Image, iv temporal.Interval) *Image {
	n := im.clone()
	n.TimeStart = iv.Start
	n.TimeEnd = iv.End
	return n
}
