package pipeline

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/chris010970/dynamicworld/pkg/collection"
)

// Schema lists the bands every image of a collection must carry.
type Schema struct {
	Bands []string
}

// Check reports the first image missing a band, or whose shape or footprint differs from
// the first image's.
func (s Schema) Check(c *collection.Collection) error {
	var (
		rows, cols int
		bounds     orb.Bound
	)
	for i, im := range c.Images() {
		for _, b := range s.Bands {
			if !im.HasBand(b) {
				return fmt.Errorf("image %s: %w: %s", im.ID, collection.ErrBandNotFound, b)
			}
		}
		r, cc := im.Shape()
		if i == 0 {
			rows, cols, bounds = r, cc, im.Bounds
			continue
		}
		if r != rows || cc != cols {
			return fmt.Errorf("image %s is %dx%d, first image is %dx%d", im.ID, r, cc, rows, cols)
		}
		if im.Bounds != bounds {
			return fmt.Errorf("image %s: %w", im.ID, collection.ErrFootprintMismatch)
		}
	}
	return nil
}
