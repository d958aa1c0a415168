// Package workflow runs the configured compositing steps end to end: collect scenes,
// build interval composites, then render and assess them.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/config"
	"github.com/chris010970/dynamicworld/pkg/dynamicworld"
	xlog "github.com/chris010970/dynamicworld/pkg/log"
	"github.com/chris010970/dynamicworld/pkg/pipeline"
	"github.com/chris010970/dynamicworld/pkg/temporal"
)

// World is the region used when no roi is configured.
var World = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// Runner executes a validated configuration against a scene source.
type Runner struct {
	Config *config.Config
	Source dynamicworld.Source
}

// New returns a Runner. cfg must already be validated.
func New(cfg *config.Config, src dynamicworld.Source) *Runner {
	return &Runner{Config: cfg, Source: src}
}

// Region returns the configured region of interest, or World.
func (r *Runner) Region() (orb.Geometry, error) {
	roi, err := r.Config.ROI()
	if err != nil {
		return nil, err
	}
	if roi == nil {
		return World, nil
	}
	return roi, nil
}

// Intervals generates the configured intervals over the date window.
func (r *Runner) Intervals() ([]temporal.Interval, error) {
	return temporal.GetIntervals(r.Config.Start, r.Config.End, r.Config.Frequency)
}

// Collection loads the scenes over the region for the whole window, checks they carry
// every Dynamic World band and, when a baseline is set, adds the time_delta band.
func (r *Runner) Collection(ctx context.Context) (*collection.Collection, error) {
	roi, err := r.Region()
	if err != nil {
		return nil, err
	}
	start, end, err := r.Config.Window()
	if err != nil {
		return nil, err
	}
	// the window end date is inclusive
	c, err := dynamicworld.GetData(ctx, r.Source, roi, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	p := pipeline.NewPipeline(pipeline.Validate(pipeline.Schema{Bands: dynamicworld.Bands()}))
	baseline, err := r.Config.BaselineTime()
	if err != nil {
		return nil, err
	}
	if !baseline.IsZero() {
		unit, err := temporal.ParseUnit(r.Config.TimeDeltaUnit)
		if err != nil {
			return nil, err
		}
		p.Then(pipeline.AddTimeDelta(baseline, unit))
	}
	return p.Run(ctx, c)
}

// Reduce reduces the label, probability and (when a baseline is set) time_delta bands of
// each interval with the configured reducer, the per-band counterpart of Composites.
func (r *Runner) Reduce(ctx context.Context) (*collection.Collection, error) {
	c, err := r.Collection(ctx)
	if err != nil {
		return nil, err
	}
	intervals, err := r.Intervals()
	if err != nil {
		return nil, err
	}
	meta, err := collection.ParseMetaType(r.Config.MetaType)
	if err != nil {
		return nil, err
	}
	bands := dynamicworld.Bands()
	if first, err := c.First(); err == nil && first.HasBand(collection.TimeDeltaBand) {
		bands = append(bands, collection.TimeDeltaBand)
	}
	sel, err := c.Select(bands...)
	if err != nil {
		return nil, err
	}

	began := time.Now()
	out, err := collection.ReduceToIntervals(ctx, sel, intervals, collection.ReduceOptions{
		Method:      r.Config.Method,
		MetaType:    meta,
		Concurrency: r.Config.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("reduce %s: %w", r.Config.Method, err)
	}
	xlog.FromContext(ctx, "workflow").Info().
		Str(xlog.FieldMethod, r.Config.Method).
		Str(xlog.FieldMetaType, string(meta)).
		Int(xlog.FieldIntervals, out.Len()).
		Dur("elapsed", time.Since(began)).
		Msg("reduced intervals")
	return out, nil
}

// Composites builds the mode and max-median label composites for every interval that
// holds at least one scene.
func (r *Runner) Composites(ctx context.Context) ([]dynamicworld.Composite, error) {
	c, err := r.Collection(ctx)
	if err != nil {
		return nil, err
	}
	intervals, err := r.Intervals()
	if err != nil {
		return nil, err
	}
	return dynamicworld.BuildComposites(ctx, c, intervals)
}
