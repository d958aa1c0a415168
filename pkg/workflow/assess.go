package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/data"
	"github.com/chris010970/dynamicworld/pkg/dynamicworld"
	"github.com/chris010970/dynamicworld/pkg/landcover"
	xlog "github.com/chris010970/dynamicworld/pkg/log"
	"github.com/chris010970/dynamicworld/pkg/metrics"
)

// Assessment is the agreement between two label images of one interval.
type Assessment struct {
	Interval          string                   `json:"interval"`
	Reference         string                   `json:"reference"`
	Prediction        string                   `json:"prediction"`
	Samples           int64                    `json:"samples"`
	Accuracy          float64                  `json:"accuracy"`
	Kappa             float64                  `json:"kappa"`
	ProducersAccuracy []float64                `json:"producers_accuracy"`
	ConsumersAccuracy []float64                `json:"consumers_accuracy"`
	F1                []float64                `json:"f1"`
	Matrix            metrics.NormalisedMatrix `json:"matrix"`
}

func newAssessment(interval, reference, prediction string, m metrics.ErrorMatrix) Assessment {
	return Assessment{
		Interval:          interval,
		Reference:         reference,
		Prediction:        prediction,
		Samples:           m.Total(),
		Accuracy:          m.Accuracy(),
		Kappa:             m.Kappa(),
		ProducersAccuracy: m.ProducersAccuracy(),
		ConsumersAccuracy: m.ConsumersAccuracy(),
		F1:                m.F1(),
		Matrix:            m.Normalised(landcover.Labels()),
	}
}

// Compare assesses every composite and writes assessment.json. With reference points
// configured each product is scored against the points; otherwise the max-median product
// is scored against the mode product by stratified sampling. Intervals with no usable
// samples are left out.
func (r *Runner) Compare(ctx context.Context, comps []dynamicworld.Composite) ([]Assessment, error) {
	logger := xlog.FromContext(ctx, "workflow")

	var points []data.ReferencePoint
	if path := r.Config.Assessment.ReferencePoints; path != "" {
		var err error
		if points, err = data.ReadReferencePoints(ctx, path); err != nil {
			return nil, fmt.Errorf("reference points: %w", err)
		}
		logger.Info().Int(xlog.FieldSamples, len(points)).Str(xlog.FieldPath, path).Msg("loaded reference points")
	}

	roi, err := r.Region()
	if err != nil {
		return nil, err
	}
	region := roi.Bound()
	seed := r.Config.Assessment.Seed
	opts := metrics.SampleOptions{
		Region:  &region,
		Seed:    &seed,
		Scale:   r.Config.Assessment.Scale,
		NPoints: r.Config.Assessment.NPoints,
		Band:    dynamicworld.LabelBand,
	}

	var out []Assessment
	for _, comp := range comps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iv := comp.Interval.String()
		if points != nil {
			for _, p := range products {
				m, err := metrics.PointErrorMatrix(points, comp.Product(p), dynamicworld.LabelBand)
				if errors.Is(err, metrics.ErrNoSamples) {
					logger.Warn().Str(xlog.FieldIntervalStart, comp.Interval.StartDate()).Msg("no reference points over composite")
					continue
				}
				if err != nil {
					return nil, fmt.Errorf("assess %s %s: %w", iv, p, err)
				}
				out = append(out, newAssessment(iv, "reference_points", string(p), m))
			}
			continue
		}

		m, _, err := metrics.GetErrorMatrix(comp.Mode, comp.MaxMedian, opts)
		if errors.Is(err, metrics.ErrNoSamples) {
			logger.Warn().Str(xlog.FieldIntervalStart, comp.Interval.StartDate()).Msg("no samples drawn, skipping")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("assess %s: %w", iv, err)
		}
		a := newAssessment(iv, string(dynamicworld.ModeProduct), string(dynamicworld.MaxMedianProduct), m)
		logger.Info().
			Str(xlog.FieldIntervalStart, comp.Interval.StartDate()).
			Float64("accuracy", a.Accuracy).
			Float64("kappa", a.Kappa).
			Msg("assessed composite")
		out = append(out, a)
	}

	if err := os.MkdirAll(r.Config.Output, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := writeJSON(filepath.Join(r.Config.Output, AssessmentFile), out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChangeReport summarises land-cover change between the first and last composites.
type ChangeReport struct {
	Product     string           `json:"product"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	Pixels      int64            `json:"pixels"`
	Changed     float64          `json:"changed_fraction"`
	Transitions [][]int64        `json:"transitions"`
	Labels      []string         `json:"labels"`
	Before      metrics.Coverage `json:"before"`
	After       metrics.Coverage `json:"after"`
}

// Change compares the first and last composites of the configured product and writes
// change.json.
func (r *Runner) Change(ctx context.Context, comps []dynamicworld.Composite) (*ChangeReport, error) {
	c, p, err := r.productCollection(comps)
	if err != nil {
		return nil, err
	}
	if c.Len() < 2 {
		return nil, fmt.Errorf("change needs two composites, have %d: %w", c.Len(), collection.ErrEmptyCollection)
	}
	images := c.Images()
	first, last := images[0], images[len(images)-1]

	m, err := metrics.TransitionMatrix(first, last, dynamicworld.LabelBand)
	if err != nil {
		return nil, fmt.Errorf("transition %s to %s: %w", first.ID, last.ID, err)
	}
	// pad to the full legend so rows line up with Labels
	full := metrics.NewErrorMatrix(landcover.NumClasses)
	for i := range m.Counts {
		for j := range m.Counts[i] {
			if i < landcover.NumClasses && j < landcover.NumClasses {
				full.Counts[i][j] = m.Counts[i][j]
			}
		}
	}
	before, err := metrics.ClassCoverage(first, dynamicworld.LabelBand)
	if err != nil {
		return nil, err
	}
	after, err := metrics.ClassCoverage(last, dynamicworld.LabelBand)
	if err != nil {
		return nil, err
	}

	report := &ChangeReport{
		Product:     string(p),
		From:        first.ID,
		To:          last.ID,
		Pixels:      full.Total(),
		Changed:     metrics.ChangedFraction(full),
		Transitions: full.Counts,
		Labels:      landcover.Labels(),
		Before:      before,
		After:       after,
	}
	if err := os.MkdirAll(r.Config.Output, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := writeJSON(filepath.Join(r.Config.Output, ChangeFile), report); err != nil {
		return nil, err
	}
	xlog.FromContext(ctx, "workflow").Info().
		Str("from", report.From).
		Str("to", report.To).
		Float64("changed_fraction", report.Changed).
		Msg("computed change")
	return report, nil
}
