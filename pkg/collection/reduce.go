package collection

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chris010970/dynamicworld/pkg/core"
	xlog "github.com/chris010970/dynamicworld/pkg/log"
	"github.com/chris010970/dynamicworld/pkg/telemetry"
	"github.com/chris010970/dynamicworld/pkg/temporal"
)

// MetaType selects how reduced images are stamped in time.
type MetaType string

const (
	// AggregationPeriod stamps the interval start and end.
	AggregationPeriod MetaType = "aggregation_period"
	// Midpoint stamps the instant halfway through the interval.
	Midpoint MetaType = "midpoint"
)

// ParseMetaType maps an empty string to AggregationPeriod.
func ParseMetaType(s string) (MetaType, error) {
	switch MetaType(s) {
	case "", AggregationPeriod:
		return AggregationPeriod, nil
	case Midpoint:
		return Midpoint, nil
	}
	return "", fmt.Errorf("unknown meta type %q", s)
}

// ReduceOptions configures ReduceToIntervals.
type ReduceOptions struct {
	Method      string   // reducer name, default median
	MetaType    MetaType // default aggregation_period
	Names       []string // optional output band names
	Concurrency int      // parallel intervals, default GOMAXPROCS
}

// ReduceToIntervals reduces the images acquired in each interval to one image. Intervals
// without images are skipped; the rest are returned in interval order.
func ReduceToIntervals(ctx context.Context, c *Collection, intervals []temporal.Interval, opts ReduceOptions) (*Collection, error) {
	if opts.Method == "" {
		opts.Method = "median"
	}
	if opts.MetaType == "" {
		opts.MetaType = AggregationPeriod
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	logger := xlog.FromContext(ctx, "reduce")

	results := make([]*Image, len(intervals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, iv := range intervals {
		i, iv := i, iv
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()
			im, err := reduceInterval(c, iv, opts)
			if errors.Is(err, ErrEmptyCollection) {
				telemetry.IntervalsSkipped.Inc()
				logger.Warn().
					Str(xlog.FieldIntervalStart, iv.StartDate()).
					Str(xlog.FieldIntervalEnd, iv.EndDate()).
					Msg("no images in interval, skipping")
				return nil
			}
			if err != nil {
				return fmt.Errorf("reduce interval %s: %w", iv, err)
			}
			telemetry.IntervalsReduced.Inc()
			telemetry.ReductionSeconds.Observe(time.Since(started).Seconds())
			results[i] = im
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Collection{}
	for _, im := range results {
		if im != nil {
			out.images = append(out.images, im)
		}
	}
	logger.Debug().
		Int(xlog.FieldIntervals, len(intervals)).
		Int(xlog.FieldImages, out.Len()).
		Str(xlog.FieldMethod, opts.Method).
		Msg("reduced collection to intervals")
	return out, nil
}

func reduceInterval(c *Collection, iv temporal.Interval, opts ReduceOptions) (*Image, error) {
	subset := c.FilterInterval(iv)
	if subset.Len() == 0 {
		return nil, ErrEmptyCollection
	}
	im, err := subset.Reduce(opts.Method)
	if err != nil {
		return nil, err
	}
	if opts.Names != nil {
		if im, err = im.Rename(opts.Names...); err != nil {
			return nil, err
		}
	}
	im.ID = iv.StartDate()

	switch opts.MetaType {
	case Midpoint:
		mid := iv.Midpoint()
		im.TimeStart, im.TimeEnd = mid, mid
	default:
		im = AddMetadata(im, iv)
	}
	return im, nil
}

// TimeDeltaBand is the band and property name written by AddTimeDeltaBand.
const TimeDeltaBand = "time_delta"

// AddTimeDeltaBand adds the time elapsed since baseline to every image, both as a
// property and as a constant band.
func AddTimeDeltaBand(c *Collection, baseline time.Time, unit temporal.Unit) (*Collection, error) {
	return c.Map(func(im *Image) (*Image, error) {
		delta := temporal.Difference(im.TimeStart, baseline, unit)
		n := im.clone()
		n.SetProperty(TimeDeltaBand, delta)
		r, cols := im.Shape()
		if err := n.AddBand(TimeDeltaBand, core.Constant(r, cols, float64(float32(delta)))); err != nil {
			return nil, err
		}
		return n, nil
	})
}
