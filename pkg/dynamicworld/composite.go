package dynamicworld

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/landcover"
	xlog "github.com/chris010970/dynamicworld/pkg/log"
	"github.com/chris010970/dynamicworld/pkg/telemetry"
	"github.com/chris010970/dynamicworld/pkg/temporal"
)

// Product names a label composite.
type Product string

const (
	ModeProduct      Product = "mode"
	MaxMedianProduct Product = "max_median"
)

// ParseProduct accepts mode, max_median or max-median.
func ParseProduct(s string) (Product, error) {
	switch s {
	case "mode":
		return ModeProduct, nil
	case "max_median", "max-median", "median":
		return MaxMedianProduct, nil
	}
	return "", fmt.Errorf("unknown product %q", s)
}

// Composite holds both label products for one interval.
type Composite struct {
	Interval  temporal.Interval
	Scenes    int
	Mode      *collection.Image
	MaxMedian *collection.Image
}

// Product returns the image for p.
func (c Composite) Product(p Product) *collection.Image {
	if p == MaxMedianProduct {
		return c.MaxMedian
	}
	return c.Mode
}

// Bands lists the bands a Dynamic World scene must carry.
func Bands() []string {
	return append([]string{LabelBand}, landcover.ProbabilityBands...)
}

// BuildComposites computes the mode and max-median products for every interval that
// contains at least one scene, preserving interval order.
func BuildComposites(ctx context.Context, c *collection.Collection, intervals []temporal.Interval) ([]Composite, error) {
	logger := xlog.FromContext(ctx, "composite")
	results := make([]*Composite, len(intervals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, iv := range intervals {
		i, iv := i, iv
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			comp, err := buildComposite(c, iv)
			if errors.Is(err, collection.ErrEmptyCollection) {
				telemetry.IntervalsSkipped.Inc()
				logger.Warn().
					Str(xlog.FieldIntervalStart, iv.StartDate()).
					Str(xlog.FieldIntervalEnd, iv.EndDate()).
					Msg("no scenes in interval, skipping")
				return nil
			}
			if err != nil {
				return fmt.Errorf("composite %s: %w", iv, err)
			}
			results[i] = comp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Composite
	for _, comp := range results {
		if comp != nil {
			out = append(out, *comp)
		}
	}
	logger.Info().
		Int(xlog.FieldIntervals, len(intervals)).
		Int(xlog.FieldImages, len(out)).
		Msg("built composites")
	return out, nil
}

func buildComposite(c *collection.Collection, iv temporal.Interval) (*Composite, error) {
	subset := c.FilterInterval(iv)
	if subset.Len() == 0 {
		return nil, collection.ErrEmptyCollection
	}

	mode, err := ModeLabel(subset)
	if err != nil {
		return nil, fmt.Errorf("mode label: %w", err)
	}
	telemetry.CompositesBuilt.WithLabelValues(string(ModeProduct)).Inc()

	maxMedian, err := MaxMedianLabel(subset)
	if err != nil {
		return nil, fmt.Errorf("max-median label: %w", err)
	}
	telemetry.CompositesBuilt.WithLabelValues(string(MaxMedianProduct)).Inc()

	mode = collection.AddMetadata(mode, iv)
	maxMedian = collection.AddMetadata(maxMedian, iv)
	mode.ID = iv.StartDate() + "/" + string(ModeProduct)
	maxMedian.ID = iv.StartDate() + "/" + string(MaxMedianProduct)

	return &Composite{Interval: iv, Scenes: subset.Len(), Mode: mode, MaxMedian: maxMedian}, nil
}
