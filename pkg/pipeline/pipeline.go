package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/temporal"
)

// Step transforms a collection.
type Step interface {
	Name() string
	Apply(ctx context.Context, c *collection.Collection) (*collection.Collection, error)
}

// Pipeline chains multiple steps.
type Pipeline struct {
	steps []Step
}

func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Then appends a step.
func (p *Pipeline) Then(s Step) *Pipeline {
	p.steps = append(p.steps, s)
	return p
}

// Run applies every step in order, stopping at the first error.
func (p *Pipeline) Run(ctx context.Context, c *collection.Collection) (*collection.Collection, error) {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		if c, err = step.Apply(ctx, c); err != nil {
			return nil, fmt.Errorf("step %s: %w", step.Name(), err)
		}
	}
	return c, nil
}

// StepFunc adapts a function to Step.
type StepFunc struct {
	Label string
	Fn    func(ctx context.Context, c *collection.Collection) (*collection.Collection, error)
}

func (s StepFunc) Name() string { return s.Label }

func (s StepFunc) Apply(ctx context.Context, c *collection.Collection) (*collection.Collection, error) {
	return s.Fn(ctx, c)
}

// FilterDate keeps images acquired in [start, end).
func FilterDate(start, end time.Time) Step {
	return StepFunc{Label: "filter_date", Fn: func(_ context.Context, c *collection.Collection) (*collection.Collection, error) {
		return c.FilterDate(start, end), nil
	}}
}

// FilterBounds keeps images intersecting b.
func FilterBounds(b orb.Bound) Step {
	return StepFunc{Label: "filter_bounds", Fn: func(_ context.Context, c *collection.Collection) (*collection.Collection, error) {
		return c.FilterBounds(b), nil
	}}
}

// RemoveBands drops the named bands. An empty collection passes through unchanged.
func RemoveBands(names ...string) Step {
	return StepFunc{Label: "remove_bands", Fn: func(_ context.Context, c *collection.Collection) (*collection.Collection, error) {
		if c.Len() == 0 {
			return c, nil
		}
		return c.RemoveBands(names...)
	}}
}

// AddTimeDelta adds the time_delta band relative to baseline.
func AddTimeDelta(baseline time.Time, unit temporal.Unit) Step {
	return StepFunc{Label: "time_delta", Fn: func(_ context.Context, c *collection.Collection) (*collection.Collection, error) {
		return collection.AddTimeDeltaBand(c, baseline, unit)
	}}
}

// Validate checks every image against schema.
func Validate(schema Schema) Step {
	return StepFunc{Label: "validate", Fn: func(_ context.Context, c *collection.Collection) (*collection.Collection, error) {
		return c, schema.Check(c)
	}}
}
