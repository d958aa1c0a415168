// Package dynamicworld derives land-cover products from Dynamic World image
// collections: the temporal mode of the top-1 label and the argmax of the
// per-class median probabilities, each with a confidence score.
package dynamicworld

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/core"
	"github.com/chris010970/dynamicworld/pkg/landcover"
	xlog "github.com/chris010970/dynamicworld/pkg/log"
	"github.com/chris010970/dynamicworld/pkg/stats"
)

const (
	LabelBand      = "label"
	ConfidenceBand = "confidence"
)

// Source supplies Dynamic World scenes. Implementations return scenes whose footprint
// intersects bound and whose acquisition time lies in [start, end).
type Source interface {
	Scenes(ctx context.Context, bound orb.Bound, start, end time.Time) ([]*collection.Image, error)
}

// GetData collects the scenes over roi acquired in [start, end), ordered by time.
func GetData(ctx context.Context, src Source, roi orb.Geometry, start, end time.Time) (*collection.Collection, error) {
	bound := roi.Bound()
	scenes, err := src.Scenes(ctx, bound, start, end)
	if err != nil {
		return nil, fmt.Errorf("load scenes: %w", err)
	}
	c := collection.New(scenes...).FilterBounds(bound).FilterDate(start, end).SortByTime()
	xlog.FromContext(ctx, "dynamicworld").Debug().
		Int(xlog.FieldImages, c.Len()).
		Msg("collected scenes")
	return c, nil
}

// ModeLabel computes the most frequent label across the collection, with the share of
// valid observations agreeing with it as confidence.
func ModeLabel(c *collection.Collection) (*collection.Image, error) {
	labels, err := c.Select(LabelBand)
	if err != nil {
		return nil, err
	}
	reduced, err := labels.Reduce("mode")
	if err != nil {
		return nil, err
	}
	label, err := reduced.Rename(LabelBand)
	if err != nil {
		return nil, err
	}
	target, _ := label.Band(LabelBand)

	conf, err := ModeConfidence(c, LabelBand, target)
	if err != nil {
		return nil, err
	}
	if err := label.AddBand(ConfidenceBand, conf); err != nil {
		return nil, err
	}
	return label, nil
}

// ModeConfidence returns, per pixel, the percentage (0-100, truncated) of valid
// observations of band equal to target. Pixels with no valid observation are masked.
func ModeConfidence(c *collection.Collection, band string, target *core.Grid) (*core.Grid, error) {
	grids, err := c.Bands(band)
	if err != nil {
		return nil, err
	}
	if len(grids) == 0 {
		return nil, collection.ErrEmptyCollection
	}
	if !grids[0].SameShape(target) {
		return nil, core.ErrShapeMismatch
	}

	matches := make([]*core.Grid, len(grids))
	masks := make([]*core.Grid, len(grids))
	for i, g := range grids {
		if matches[i], err = core.Eq(g, target); err != nil {
			return nil, err
		}
		masks[i] = g.Mask()
	}
	matched, err := collection.ReduceGrids(matches, stats.Sum)
	if err != nil {
		return nil, err
	}
	observed, err := collection.ReduceGrids(masks, stats.Sum)
	if err != nil {
		return nil, err
	}

	out := core.NewMaskedGrid(target.R, target.C)
	for k := range out.Data {
		if !matched.Valid[k] || observed.Data[k] == 0 {
			continue
		}
		out.Data[k] = float64(int(matched.Data[k] / observed.Data[k] * 100))
		out.Valid[k] = true
	}
	return out, nil
}

// MaxMedianLabel labels each pixel with the class whose median probability is highest,
// and uses that median as confidence.
func MaxMedianLabel(c *collection.Collection) (*collection.Image, error) {
	probs, err := c.Select(landcover.ProbabilityBands...)
	if err != nil {
		return nil, err
	}
	median, err := probs.Median()
	if err != nil {
		return nil, err
	}

	grids := make([]*core.Grid, landcover.NumClasses)
	for i, b := range landcover.ProbabilityBands {
		grids[i], _ = median.Band(b)
	}
	r, cols := median.Shape()
	label := core.NewMaskedGrid(r, cols)
	core.ParallelRows(r, func(rs, re int) {
		for k := rs * cols; k < re*cols; k++ {
			var p landcover.Probabilities
			ok := true
			for i, g := range grids {
				if !g.Valid[k] {
					ok = false
					break
				}
				p[i] = g.Data[k]
			}
			if !ok {
				continue
			}
			label.Data[k] = float64(p.Argmax())
			label.Valid[k] = true
		}
	})

	out, err := median.Select()
	if err != nil {
		return nil, err
	}
	if err := out.AddBand(LabelBand, label); err != nil {
		return nil, err
	}
	conf, err := MaxMedianConfidence(grids)
	if err != nil {
		return nil, err
	}
	if err := out.AddBand(ConfidenceBand, conf); err != nil {
		return nil, err
	}
	return out, nil
}

// MaxMedianConfidence returns the per-pixel maximum of the class median probabilities
// as an integer percentage. A pixel missing any class is masked.
func MaxMedianConfidence(medians []*core.Grid) (*core.Grid, error) {
	if len(medians) == 0 {
		return nil, collection.ErrEmptyCollection
	}
	if err := core.CheckShapes(medians...); err != nil {
		return nil, err
	}
	out := core.NewMaskedGrid(medians[0].R, medians[0].C)
	for k := range out.Data {
		best, ok := 0.0, true
		for i, g := range medians {
			if !g.Valid[k] {
				ok = false
				break
			}
			if i == 0 || g.Data[k] > best {
				best = g.Data[k]
			}
		}
		if !ok {
			continue
		}
		out.Data[k] = float64(int(best * 100))
		out.Valid[k] = true
	}
	return out, nil
}
